package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/xuri/excelize/v2"

	"docgen/internal/definition"
	"docgen/internal/excel"
	"docgen/internal/fo"
	"docgen/internal/template"
	"docgen/internal/transform"
	"docgen/sink"
	"docgen/sink/buffer"
)

// fakeEngine compiles stylesheets whose <out> element holds the literal
// output; "{param}" is replaced by the parameter and "{input}" by the tag of
// the input root. mode="invalid" fails the compile, mode="runfail" fails
// every run.
func fakeEngine() transform.Engine {
	return transform.EngineFunc(func(_ context.Context, _ string, doc *etree.Document) (transform.Factory, []transform.Diagnostic, error) {
		root := doc.Root()
		mode := root.SelectAttrValue("mode", "")
		if mode == "invalid" {
			return nil, []transform.Diagnostic{{Severity: transform.Error, Message: "bad template"}}, errors.New("compile failed")
		}
		out := ""
		if el := root.SelectElement("out"); el != nil {
			out = el.Text()
		}
		return fakeFactory{out: out, fail: mode == "runfail"}, nil, nil
	})
}

type fakeFactory struct {
	out  string
	fail bool
}

func (f fakeFactory) NewInvocation() transform.Invocation {
	return &fakeRun{f: f, params: map[string]string{}}
}

type fakeRun struct {
	f      fakeFactory
	params map[string]string
}

func (r *fakeRun) SetParameter(k, v string) { r.params[k] = v }

func (r *fakeRun) Run(_ context.Context, input *etree.Document, w io.Writer) error {
	if r.f.fail {
		return errors.New("xslt runtime error")
	}
	s := r.f.out
	for k, v := range r.params {
		s = strings.ReplaceAll(s, "{"+k+"}", v)
	}
	s = strings.ReplaceAll(s, "{input}", input.Root().Tag)
	_, err := io.WriteString(w, s)
	return err
}

func writeStylesheet(t *testing.T, dir, name, mode, out string) string {
	t.Helper()
	path := filepath.Join(dir, name+".xsl")
	src := fmt.Sprintf(`<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform" mode=%q><out><![CDATA[%s]]></out></xsl:stylesheet>`, mode, out)
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write stylesheet: %v", err)
	}
	return path
}

func build(t *testing.T, def *definition.Definition, mode, out string, renderer fo.Renderer) *Generator {
	t.Helper()
	def.Template = writeStylesheet(t, t.TempDir(), def.Name, mode, out)
	batch := template.NewBatch(1)
	g := NewGenerator(template.NewCache(fakeEngine()), batch, def, renderer)
	if err := batch.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	return g
}

func input(t *testing.T, xml string) *etree.Document {
	t.Helper()
	doc := etree.NewDocument()
	if err := doc.ReadFromString(xml); err != nil {
		t.Fatalf("input: %v", err)
	}
	return doc
}

type recordingDest struct {
	sink.Headers
	buf     bytes.Buffer
	opened  bool
	closed  bool
	aborted error
}

func (d *recordingDest) Writer() io.WriteCloser {
	d.opened = true
	return recordingWriter{d}
}

type recordingWriter struct{ d *recordingDest }

func (w recordingWriter) Write(p []byte) (int, error) { return w.d.buf.Write(p) }

func (w recordingWriter) Close() error {
	w.d.closed = true
	return nil
}

func (w recordingWriter) CloseWithError(err error) error {
	w.d.aborted = err
	return nil
}

func TestRender_PlainWithLanguageFallback(t *testing.T) {
	def := definition.New("letter")
	_ = def.Parameters.Set("", "greeting", "Hello")
	_ = def.Parameters.Set("", "name", "World")
	_ = def.Parameters.Set("de", "greeting", "Hallo")
	def.DownloadFilename = "letter.txt"
	g := build(t, def, "ok", "{greeting}, {name} from {input}", nil)

	dest := buffer.New()
	if err := g.Render(context.Background(), dest, input(t, "<order/>"), true, nil, "de"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	got, err := dest.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "Hallo, World from order" {
		t.Fatalf("output = %q", got)
	}
	if dest.ContentType != "text/plain; charset=UTF-8" || dest.Filename != "letter.txt" {
		t.Fatalf("headers = %q %q", dest.ContentType, dest.Filename)
	}

	dest = buffer.New()
	if err := g.Render(context.Background(), dest, input(t, "<order/>"), true, nil, "fr"); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got, _ := dest.Text(); got != "Hello, World from order" {
		t.Fatalf("fallback output = %q", got)
	}
}

func TestRender_DeclaredContentType(t *testing.T) {
	def := definition.New("page")
	def.ContentType = "text/html"
	g := build(t, def, "ok", "<p/>", nil)
	dest := buffer.New()
	if err := g.Render(context.Background(), dest, input(t, "<x/>"), true, nil, ""); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if mt, err := dest.MediaType(); err != nil || mt != "text/html" {
		t.Fatalf("media type = %q, %v", mt, err)
	}
}

func TestRender_DebugSkipsTransform(t *testing.T) {
	def := definition.New("debug")
	g := build(t, def, "runfail", "", nil)
	dest := buffer.New()
	if err := g.Render(context.Background(), dest, input(t, "<a><b>x</b></a>"), false, nil, ""); err != nil {
		t.Fatalf("Render: %v", err)
	}
	got, err := dest.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.HasPrefix(got, `<?xml version="1.0" encoding="UTF-8"?>`) || !strings.Contains(got, "<a>\n  <b>x</b>\n</a>") {
		t.Fatalf("debug output = %q", got)
	}
}

func TestRender_Identity(t *testing.T) {
	def := definition.New("echo")
	batch := template.NewBatch(1)
	g := NewGenerator(template.NewCache(fakeEngine()), batch, def, nil)
	if batch.Len() != 0 {
		t.Fatal("identity must not schedule a compile")
	}
	dest := buffer.New()
	if err := g.Render(context.Background(), dest, input(t, `<a k="v"/>`), true, nil, ""); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got, _ := dest.Text(); got != `<a k="v"/>` {
		t.Fatalf("identity output = %q", got)
	}
}

func TestRender_JSON(t *testing.T) {
	def := definition.New("data")
	def.Output = definition.OutputJSON
	g := build(t, def, "ok", "<r><a>1</a><a>2</a><s>x</s></r>", nil)

	dest := buffer.New()
	if err := g.Render(context.Background(), dest, input(t, "<x/>"), true, nil, ""); err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "{\n  \"r\": {\n    \"a\": [\n      1,\n      2\n    ],\n    \"s\": \"x\"\n  }\n}"
	if got, _ := dest.Text(); strings.TrimSpace(got) != want {
		t.Fatalf("json = %q", got)
	}
	if dest.ContentType != "application/json; charset=UTF-8" {
		t.Fatalf("content type = %q", dest.ContentType)
	}
}

func TestRender_JSONMalformedIntermediate(t *testing.T) {
	def := definition.New("data")
	def.Output = definition.OutputJSON
	g := build(t, def, "ok", "<r><unclosed></r>", nil)

	dest := &recordingDest{}
	err := g.Render(context.Background(), dest, input(t, "<x/>"), true, nil, "")
	var ce *ConversionError
	if !errors.As(err, &ce) || ce.Conversion != "xmlToJson" {
		t.Fatalf("err = %v, want ConversionError", err)
	}
	if dest.aborted == nil || dest.closed {
		t.Fatal("destination must be aborted, not closed")
	}
}

type fakeRenderer struct {
	root string
	opts fo.Options
	err  error
}

func (r *fakeRenderer) Render(_ context.Context, doc *etree.Document, opts fo.Options, out io.Writer) error {
	if r.err != nil {
		return r.err
	}
	r.root, r.opts = doc.Root().Tag, opts
	_, err := io.WriteString(out, "%PDF-1.4")
	return err
}

func TestRender_PDF(t *testing.T) {
	def := definition.New("invoice")
	def.Output = definition.OutputPDF
	def.FOP = definition.FOP{FontBase: "/fonts", ResourceBase: "/img"}
	r := &fakeRenderer{}
	g := build(t, def, "ok", `<fo:root xmlns:fo="http://www.w3.org/1999/XSL/Format"/>`, r)

	resolver := fo.ResolverFunc(func(context.Context, string) (io.ReadCloser, error) { return nil, nil })
	dest := buffer.New()
	if err := g.Render(context.Background(), dest, input(t, "<x/>"), true, resolver, ""); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if string(dest.Bytes()) != "%PDF-1.4" || dest.ContentType != definition.ContentTypePDF {
		t.Fatalf("pdf = %q %q", dest.Bytes(), dest.ContentType)
	}
	if r.root != "root" || r.opts.FontBase != "/fonts" || r.opts.ResourceBase != "/img" || r.opts.Resolver == nil {
		t.Fatalf("renderer saw root %q opts %+v", r.root, r.opts)
	}
}

func TestRender_PDFFailures(t *testing.T) {
	for name, renderer := range map[string]fo.Renderer{
		"no renderer": nil,
		"render fail": &fakeRenderer{err: errors.New("fop exited 1")},
	} {
		def := definition.New("invoice")
		def.Output = definition.OutputPDF
		g := build(t, def, "ok", `<fo:root xmlns:fo="http://www.w3.org/1999/XSL/Format"/>`, renderer)
		dest := &recordingDest{}
		err := g.Render(context.Background(), dest, input(t, "<x/>"), true, nil, "")
		var ce *ConversionError
		if !errors.As(err, &ce) {
			t.Errorf("%s: err = %v, want ConversionError", name, err)
		}
		if dest.aborted == nil {
			t.Errorf("%s: destination not aborted", name)
		}
	}
}

func TestRender_Excel(t *testing.T) {
	def := definition.New("sheet")
	def.Output = definition.OutputExcel
	def.DecimalSeparator = excel.Comma
	g := build(t, def, "ok", `<html><body><table><tr><td>Name</td><td>1.234,50</td></tr></table></body></html>`, nil)

	dest := buffer.New()
	if err := g.Render(context.Background(), dest, input(t, "<x/>"), true, nil, ""); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if dest.ContentType != definition.ContentTypeExcel {
		t.Fatalf("content type = %q", dest.ContentType)
	}
	f, err := excelize.OpenReader(bytes.NewReader(dest.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue("Report", "A1"); v != "Name" {
		t.Fatalf("A1 = %q", v)
	}
	if v, _ := f.GetCellValue("Report", "B1", excelize.Options{RawCellValue: true}); v != "1234.5" {
		t.Fatalf("B1 = %q", v)
	}
}

func TestRender_ExcelFailures(t *testing.T) {
	def := definition.New("sheet")
	def.Output = definition.OutputExcel
	g := build(t, def, "ok", `<table><tr><td>1</td>`, nil)
	dest := &recordingDest{}
	err := g.Render(context.Background(), dest, input(t, "<x/>"), true, nil, "")
	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Fatalf("truncated output: err = %v, want ConversionError", err)
	}
	if dest.aborted == nil || dest.buf.Len() != 0 {
		t.Fatal("failed spreadsheet must abort without output")
	}

	def = definition.New("sheet")
	def.Output = definition.OutputExcel
	g = build(t, def, "runfail", "", nil)
	err = g.Render(context.Background(), &recordingDest{}, input(t, "<x/>"), true, nil, "")
	var te *TransformError
	if !errors.As(err, &te) {
		t.Fatalf("run failure: err = %v, want TransformError", err)
	}
}

func TestRender_TransformFailure(t *testing.T) {
	def := definition.New("plain")
	g := build(t, def, "runfail", "", nil)
	dest := &recordingDest{}
	err := g.Render(context.Background(), dest, input(t, "<x/>"), true, nil, "")
	var te *TransformError
	if !errors.As(err, &te) || te.Document != "plain" {
		t.Fatalf("err = %v, want TransformError", err)
	}
	if dest.aborted == nil {
		t.Fatal("destination not aborted")
	}
}

func TestRender_InvalidTemplate(t *testing.T) {
	def := definition.New("broken")
	g := build(t, def, "invalid", "", nil)

	var invalid *template.TemplateInvalidError
	if err := g.AssertTemplateValid(); !errors.As(err, &invalid) || !strings.Contains(invalid.Diagnostic, "ERROR: bad template") {
		t.Fatalf("AssertTemplateValid = %v", err)
	}
	dest := &recordingDest{}
	if err := g.Render(context.Background(), dest, input(t, "<x/>"), true, nil, ""); !errors.As(err, &invalid) {
		t.Fatalf("Render = %v", err)
	}
	if dest.opened {
		t.Fatal("no output must be opened for an invalid template")
	}
}

func TestNewGenerator_MissingTemplate(t *testing.T) {
	def := definition.New("gone")
	def.Template = filepath.Join(t.TempDir(), "absent.xsl")
	g := NewGenerator(template.NewCache(fakeEngine()), template.NewBatch(1), def, nil)
	var invalid *template.TemplateInvalidError
	if err := g.AssertTemplateValid(); !errors.As(err, &invalid) || !strings.Contains(err.Error(), "cannot read template") {
		t.Fatalf("AssertTemplateValid = %v", err)
	}
}

func TestRender_InvalidFilename(t *testing.T) {
	def := definition.New("letter")
	def.DownloadFilename = "bad name.txt"
	g := build(t, def, "ok", "x", nil)
	var ce *definition.ConfigurationError
	if err := g.Render(context.Background(), buffer.New(), input(t, "<x/>"), true, nil, ""); !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestOutcome(t *testing.T) {
	for want, err := range map[string]error{
		"ok":               nil,
		"template_invalid": &template.TemplateInvalidError{Diagnostic: "x"},
		"transform":        &TransformError{Err: io.EOF},
		"conversion":       fmt.Errorf("wrapped: %w", &ConversionError{Err: io.EOF}),
		"configuration":    definition.Errorf("x", "y"),
		"io":               io.ErrShortWrite,
	} {
		if got := outcome(err); got != want {
			t.Errorf("outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestParseInput(t *testing.T) {
	doc, err := ParseInput("application/xml", strings.NewReader(`<order id="1"/>`))
	if err != nil || doc.Root().Tag != "order" {
		t.Fatalf("xml: %v", err)
	}
	doc, err = ParseInput("application/json; charset=utf-8", strings.NewReader(`{"id": 7}`))
	if err != nil || doc.Root().Tag != InputRoot || doc.Root().SelectElement("id").Text() != "7" {
		t.Fatalf("json: %v", err)
	}
	latin1 := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><n>caf\xe9</n>"
	doc, err = ParseInput("", strings.NewReader(latin1))
	if err != nil || doc.Root().Text() != "café" {
		t.Fatalf("latin1: %v", err)
	}
	for ct, body := range map[string]string{
		"text/xml":                 "<a>",
		"":                         "",
		"application/problem+json": "{",
	} {
		if _, err := ParseInput(ct, strings.NewReader(body)); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("ParseInput(%q, %q) = %v, want ErrInvalidInput", ct, body, err)
		}
	}
}
