// Package pipeline turns document definitions into generators and feeds them
// render requests.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/sync/errgroup"

	"docgen/internal/definition"
	"docgen/internal/excel"
	"docgen/internal/fo"
	"docgen/internal/jsonxml"
	"docgen/internal/logging"
	"docgen/internal/telemetry"
	"docgen/internal/template"
	"docgen/sink"
)

var errNoRenderer = errors.New("no page renderer configured")

// Generator renders one document definition.
type Generator struct {
	def      *definition.Definition
	handle   *template.Handle
	renderer fo.Renderer
}

// NewGenerator asks cache for the definition's template, scheduling a
// compile on batch when needed. A template that cannot even be scheduled
// yields a generator whose template is invalid.
func NewGenerator(cache *template.Cache, batch *template.Batch, def *definition.Definition, renderer fo.Renderer) *Generator {
	return &Generator{def: def, handle: schedule(cache, batch, def), renderer: renderer}
}

func schedule(cache *template.Cache, batch *template.Batch, def *definition.Definition) *template.Handle {
	if def.Template == "" {
		return template.Identity()
	}
	src, err := template.NewFileSource(def.Template)
	if err == nil {
		var h *template.Handle
		if h, err = cache.GetOrSchedule(batch, def.Name, src); err == nil {
			return h
		}
	}
	logging.L().Error("pipeline: template cannot be scheduled", "document", def.Name, "err", err)
	return template.Invalid(err.Error())
}

func (g *Generator) Name() string { return g.def.Name }

func (g *Generator) Definition() *definition.Definition { return g.def }

// AssertTemplateValid is nil once the template compiled successfully.
func (g *Generator) AssertTemplateValid() error { return g.handle.AssertValid() }

// Render writes the document generated from input to dest. With transform
// false the input itself is written back, indented, for debugging. Parameters
// are resolved for language. The writer obtained from dest is closed on
// success and on failure.
func (g *Generator) Render(ctx context.Context, dest sink.Destination, input *etree.Document, transform bool, resolver fo.Resolver, language string) (err error) {
	conversion := g.def.Output.String()
	if !transform {
		conversion = "debug"
	}
	start := time.Now()
	defer logging.Timer("pipeline: render", "document", g.def.Name, "conversion", conversion)()
	defer func() {
		telemetry.Renders.WithLabelValues(conversion, outcome(err)).Inc()
		telemetry.RenderSeconds.WithLabelValues(conversion).Observe(time.Since(start).Seconds())
	}()

	if !transform {
		return g.debug(dest, input)
	}

	inv, err := g.handle.NewInvocation()
	if err != nil {
		return err
	}
	for name, value := range g.def.Parameters.Resolve(language) {
		inv.SetParameter(name, value)
	}
	if g.def.DownloadFilename != "" {
		if err := dest.SetContentDispositionFilename(g.def.DownloadFilename); err != nil {
			return err
		}
	}

	switch g.def.Output {
	case definition.OutputJSON:
		return g.json(ctx, inv, dest, input)
	case definition.OutputPDF:
		return g.pdf(ctx, inv, dest, input, resolver)
	case definition.OutputExcel:
		return g.excel(ctx, inv, dest, input)
	default:
		dest.SetContentType(g.def.ContentTypeOr(definition.ContentTypeText) + "; charset=UTF-8")
		w := dest.Writer()
		return finish(w, g.transformErr(inv.Run(ctx, input, w)))
	}
}

func (g *Generator) debug(dest sink.Destination, input *etree.Document) error {
	dest.SetContentType(definition.ContentTypeText + "; charset=UTF-8")
	w := dest.Writer()

	out := etree.NewDocument()
	out.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	if root := input.Root(); root != nil {
		out.SetRoot(root.Copy())
	}
	out.Indent(2)
	_, err := out.WriteTo(w)
	return finish(w, err)
}

type invocation interface {
	Run(ctx context.Context, input *etree.Document, out io.Writer) error
}

func (g *Generator) json(ctx context.Context, inv invocation, dest sink.Destination, input *etree.Document) error {
	dest.SetContentType(g.def.ContentTypeOr(definition.ContentTypeJSON) + "; charset=UTF-8")
	w := dest.Writer()

	var buf bytes.Buffer
	if err := inv.Run(ctx, input, &buf); err != nil {
		return finish(w, g.transformErr(err))
	}
	out, err := jsonxml.XMLToJSON(&buf)
	if err != nil {
		return finish(w, g.conversionErr(err))
	}
	_, err = w.Write(out)
	return finish(w, err)
}

func (g *Generator) pdf(ctx context.Context, inv invocation, dest sink.Destination, input *etree.Document, resolver fo.Resolver) error {
	dest.SetContentType(g.def.ContentTypeOr(definition.ContentTypePDF))
	w := dest.Writer()

	var buf bytes.Buffer
	if err := inv.Run(ctx, input, &buf); err != nil {
		return finish(w, g.transformErr(err))
	}
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(&buf); err != nil {
		return finish(w, g.conversionErr(err))
	}
	if doc.Root() == nil {
		return finish(w, g.conversionErr(errors.New("transform produced no XSL-FO document")))
	}
	if g.renderer == nil {
		return finish(w, g.conversionErr(errNoRenderer))
	}
	opts := fo.Options{
		FontBase:     g.def.FOP.FontBase,
		Config:       g.def.FOP.Config,
		ResourceBase: g.def.FOP.ResourceBase,
		Resolver:     resolver,
	}
	if err := g.renderer.Render(ctx, doc, opts, w); err != nil {
		return finish(w, g.conversionErr(err))
	}
	return finish(w, nil)
}

// excel streams the transform output through a pipe into the spreadsheet
// converter, which writes the workbook to the destination once complete.
func (g *Generator) excel(ctx context.Context, inv invocation, dest sink.Destination, input *etree.Document) error {
	dest.SetContentType(g.def.ContentTypeOr(definition.ContentTypeExcel))
	w := dest.Writer()

	wb, err := excel.NewWorkbook(w)
	if err != nil {
		return finish(w, g.conversionErr(err))
	}
	pr, pw := io.Pipe()
	var eg errgroup.Group
	eg.Go(func() error {
		err := inv.Run(ctx, input, pw)
		pw.CloseWithError(err)
		return err
	})
	convErr := excel.Convert(pr, g.def.DecimalSeparator, wb)
	if convErr != nil {
		_ = wb.Discard()
	}
	pr.CloseWithError(convErr)
	runErr := eg.Wait()

	switch {
	case runErr != nil && (convErr == nil || errors.Is(convErr, runErr)):
		return finish(w, g.transformErr(runErr))
	case convErr != nil:
		return finish(w, g.conversionErr(convErr))
	}
	return finish(w, nil)
}

func (g *Generator) transformErr(err error) error {
	if err == nil {
		return nil
	}
	return &TransformError{Document: g.def.Name, Err: err}
}

func (g *Generator) conversionErr(err error) error {
	return &ConversionError{Document: g.def.Name, Conversion: g.def.Output.String(), Err: err}
}

// finish closes w, or aborts it when err is set. Close errors are returned
// as they are.
func finish(w io.WriteCloser, err error) error {
	if err == nil {
		return w.Close()
	}
	if a, ok := w.(sink.Aborter); ok {
		_ = a.CloseWithError(err)
	} else {
		_ = w.Close()
	}
	return err
}

func outcome(err error) string {
	var (
		invalid *template.TemplateInvalidError
		terr    *TransformError
		cerr    *ConversionError
		config  *definition.ConfigurationError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &invalid), errors.Is(err, template.ErrPending):
		return "template_invalid"
	case errors.As(err, &terr):
		return "transform"
	case errors.As(err, &cerr):
		return "conversion"
	case errors.As(err, &config):
		return "configuration"
	}
	return "io"
}
