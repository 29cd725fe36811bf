package template

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beevik/etree"

	"docgen/internal/definition"
	"docgen/internal/transform"
)

// fakeEngine compiles any stylesheet whose root carries mode="ok"; invocations
// write "<name>:<param greeting>". Other modes fail or panic.
type fakeEngine struct {
	compiles atomic.Int32
}

func (e *fakeEngine) Compile(_ context.Context, name string, doc *etree.Document) (transform.Factory, []transform.Diagnostic, error) {
	e.compiles.Add(1)
	switch doc.Root().SelectAttrValue("mode", "ok") {
	case "fail":
		return nil, []transform.Diagnostic{{Severity: transform.Error, Message: "boom"}}, errors.New("compile failed")
	case "bare":
		return nil, nil, errors.New("no diagnostics")
	case "panic":
		panic("engine exploded")
	}
	return fakeFactory{name: name}, nil, nil
}

type fakeFactory struct{ name string }

func (f fakeFactory) NewInvocation() transform.Invocation {
	return &fakeRun{name: f.name, params: map[string]string{}}
}

type fakeRun struct {
	name   string
	params map[string]string
}

func (r *fakeRun) SetParameter(k, v string) { r.params[k] = v }

func (r *fakeRun) Run(_ context.Context, _ *etree.Document, out io.Writer) error {
	_, err := fmt.Fprintf(out, "%s:%s", r.name, r.params["greeting"])
	return err
}

func sheet(mode, body string) Source {
	return NewBytesSource(mode, []byte(fmt.Sprintf(
		`<xsl:stylesheet xmlns:xsl="http://www.w3.org/1999/XSL/Transform" mode=%q>%s</xsl:stylesheet>`, mode, body)))
}

func TestCache_DeduplicatesWithinBatch(t *testing.T) {
	eng := &fakeEngine{}
	c := NewCache(eng)
	b := NewBatch(2)

	h1, err := c.GetOrSchedule(b, "first", sheet("ok", "a"))
	if err != nil {
		t.Fatalf("GetOrSchedule: %v", err)
	}
	h2, err := c.GetOrSchedule(b, "second", sheet("ok", "a"))
	if err != nil {
		t.Fatalf("GetOrSchedule: %v", err)
	}
	if h1 != h2 {
		t.Fatal("identical sources must share a handle")
	}
	if b.Len() != 1 {
		t.Fatalf("batch jobs = %d, want 1", b.Len())
	}
	if err := h1.AssertValid(); !errors.Is(err, ErrPending) {
		t.Fatalf("before Execute: %v, want ErrPending", err)
	}
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := h1.AssertValid(); err != nil {
		t.Fatalf("AssertValid: %v", err)
	}
	if n := eng.compiles.Load(); n != 1 {
		t.Fatalf("compiles = %d, want 1", n)
	}

	// A later batch reuses the live handle without compiling.
	b2 := NewBatch(1)
	h3, err := c.GetOrSchedule(b2, "third", sheet("ok", "a"))
	if err != nil {
		t.Fatalf("GetOrSchedule: %v", err)
	}
	if h3 != h1 || b2.Len() != 0 {
		t.Fatal("expected cache hit")
	}
	if c.Len() != 1 {
		t.Fatalf("cache len = %d", c.Len())
	}
}

func TestCache_FailureIsolation(t *testing.T) {
	c := NewCache(&fakeEngine{})
	b := NewBatch(3)
	good, _ := c.GetOrSchedule(b, "good", sheet("ok", ""))
	bad, _ := c.GetOrSchedule(b, "bad", sheet("fail", ""))
	bare, _ := c.GetOrSchedule(b, "bare", sheet("bare", ""))
	boom, _ := c.GetOrSchedule(b, "boom", sheet("panic", ""))
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := good.AssertValid(); err != nil {
		t.Fatalf("good: %v", err)
	}
	cases := map[*Handle]string{
		bad:  "bad: ERROR: boom",
		bare: "bare: no diagnostics",
		boom: "boom: engine panic: engine exploded",
	}
	for h, want := range cases {
		_, err := h.NewInvocation()
		var tie *TemplateInvalidError
		if !errors.As(err, &tie) {
			t.Fatalf("want *TemplateInvalidError, got %v", err)
		}
		if tie.Diagnostic != want {
			t.Fatalf("diagnostic = %q, want %q", tie.Diagnostic, want)
		}
		if h.AssertValid() != err {
			t.Fatal("sticky error must be returned every time")
		}
	}
	if c.Len() != 4 {
		t.Fatalf("failed handles are cached too, len = %d", c.Len())
	}
}

func TestCache_ParseFailureSchedulesNothing(t *testing.T) {
	c := NewCache(&fakeEngine{})
	b := NewBatch(1)
	_, err := c.GetOrSchedule(b, "broken", NewBytesSource("broken", []byte("<xsl:stylesheet")))
	var ce *definition.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("want *definition.ConfigurationError, got %v", err)
	}
	if b.Len() != 0 {
		t.Fatal("nothing should be scheduled")
	}
}

func TestBatch_CancelledContext(t *testing.T) {
	eng := &fakeEngine{}
	c := NewCache(eng)
	b := NewBatch(1)
	h, _ := c.GetOrSchedule(b, "late", sheet("ok", ""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute = %v", err)
	}
	var tie *TemplateInvalidError
	if !errors.As(h.AssertValid(), &tie) {
		t.Fatal("unstarted job must fail its handle")
	}
	if eng.compiles.Load() != 0 || c.Len() != 0 {
		t.Fatal("cancelled job must not compile or be cached")
	}
}

func TestHandle_IdentityAndInvalid(t *testing.T) {
	inv, err := Identity().NewInvocation()
	if err != nil {
		t.Fatalf("NewInvocation: %v", err)
	}
	doc := etree.NewDocument()
	doc.CreateElement("report").SetText("x")
	var out strings.Builder
	if err := inv.Run(context.Background(), doc, &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "<report>x</report>" {
		t.Fatalf("identity output = %q", out.String())
	}

	var tie *TemplateInvalidError
	if _, err := Invalid("nope").NewInvocation(); !errors.As(err, &tie) || tie.Diagnostic != "nope" {
		t.Fatalf("Invalid: %v", err)
	}
}

func TestHandle_ConcurrentInvocations(t *testing.T) {
	c := NewCache(&fakeEngine{})
	b := NewBatch(1)
	h, _ := c.GetOrSchedule(b, "greet", sheet("ok", ""))
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := h.NewInvocation()
			if err != nil {
				errs <- err
				return
			}
			inv.SetParameter("greeting", fmt.Sprint(i))
			var out strings.Builder
			if err := inv.Run(context.Background(), etree.NewDocument(), &out); err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("greet:%d", i); out.String() != want {
				errs <- fmt.Errorf("output %q, want %q", out.String(), want)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}

// scheduleAndDrop compiles src and lets the handle go out of scope.
func scheduleAndDrop(t *testing.T, c *Cache, src Source) {
	t.Helper()
	b := NewBatch(1)
	h, err := c.GetOrSchedule(b, "transient", src)
	if err != nil {
		t.Fatalf("GetOrSchedule: %v", err)
	}
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := h.AssertValid(); err != nil {
		t.Fatalf("AssertValid: %v", err)
	}
}

func TestCache_ReleasesUnreferencedHandles(t *testing.T) {
	eng := &fakeEngine{}
	c := NewCache(eng)
	src := sheet("ok", "transient")
	scheduleAndDrop(t, c, src)

	for i := 0; i < 50 && c.Len() != 0; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if c.Len() != 0 {
		t.Fatal("unreferenced handle was not released")
	}

	scheduleAndDrop(t, c, src)
	if n := eng.compiles.Load(); n != 2 {
		t.Fatalf("compiles = %d, want a recompile after release", n)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.xslt")
	content := `<xsl:stylesheet version="2.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform">
  <xsl:import-schema namespace="urn:x" schema-location="x.xsd"/>
  <xsl:template match="/"><xsl:result-document href="out.xml" method="xml"><r/></xsl:result-document></xsl:template>
</xsl:stylesheet>`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := NewFileSource(path)
	if err != nil {
		t.Fatalf("NewFileSource: %v", err)
	}
	if src.CacheKey() != NewBytesSource("other", []byte(content)).CacheKey() {
		t.Fatal("cache key must depend on content only")
	}
	if src.CacheKey() == NewBytesSource("other", []byte(content+" ")).CacheKey() {
		t.Fatal("different content must produce a different key")
	}

	doc, err := src.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.FindElements("//xsl:import-schema")) != 0 {
		t.Fatal("import-schema not removed")
	}
	rd := doc.FindElement("//xsl:result-document")
	if rd == nil {
		t.Fatal("result-document missing")
	}
	if rd.SelectAttr("href") != nil || rd.SelectAttrValue("method", "") != "xml" {
		t.Fatalf("result-document attributes = %v", rd.Attr)
	}

	_, err = NewFileSource(filepath.Join(dir, "missing.xslt"))
	var ce *definition.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("missing file: want ConfigurationError, got %v", err)
	}
}

// slowSource blocks in Parse until release is closed.
type slowSource struct {
	Source
	parsing chan struct{}
	release chan struct{}
}

func (s *slowSource) Parse() (*etree.Document, error) {
	s.parsing <- struct{}{}
	<-s.release
	return s.Source.Parse()
}

func TestCache_ParsesOutsideLock(t *testing.T) {
	c := NewCache(&fakeEngine{})
	b := NewBatch(1)
	slow := &slowSource{Source: sheet("ok", "slow"), parsing: make(chan struct{}, 2), release: make(chan struct{})}

	handles := make(chan *Handle, 2)
	for range 2 {
		go func() {
			h, err := c.GetOrSchedule(b, "slow", slow)
			if err != nil {
				t.Error(err)
			}
			handles <- h
		}()
	}
	<-slow.parsing
	<-slow.parsing

	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrSchedule(NewBatch(1), "fast", sheet("ok", "fast"))
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("fast lookup: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("a slow parse blocked an unrelated lookup")
	}

	close(slow.release)
	h1, h2 := <-handles, <-handles
	if h1 == nil || h1 != h2 {
		t.Fatal("concurrent requests for one stylesheet must share a handle")
	}
	if b.Len() != 1 {
		t.Fatalf("batch jobs = %d, want 1", b.Len())
	}
}

func TestCache_XsltprocDiagnosticsInvalidateTemplate(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "xsltproc")
	script := "#!/bin/sh\necho 'compilation error: element no-such-instruction' >&2\nexit 5\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake xsltproc: %v", err)
	}
	c := NewCache(&transform.Xsltproc{Path: bin, Dir: t.TempDir()})
	b := NewBatch(1)
	h, err := c.GetOrSchedule(b, "report", NewBytesSource("report", []byte(
		`<xsl:stylesheet version="1.0" xmlns:xsl="http://www.w3.org/1999/XSL/Transform"/>`)))
	if err != nil {
		t.Fatalf("GetOrSchedule: %v", err)
	}
	if err := b.Execute(context.Background()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var tie *TemplateInvalidError
	if !errors.As(h.AssertValid(), &tie) {
		t.Fatalf("AssertValid = %v, want *TemplateInvalidError", h.AssertValid())
	}
	if want := "report: ERROR: compilation error: element no-such-instruction"; tie.Diagnostic != want {
		t.Fatalf("diagnostic = %q, want %q", tie.Diagnostic, want)
	}
}
