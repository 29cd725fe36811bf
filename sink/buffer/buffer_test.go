package buffer

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"docgen/internal/definition"
	"docgen/sink"
)

var _ sink.Destination = (*Destination)(nil)

func TestDestination_Text(t *testing.T) {
	d := New()
	d.SetContentType("application/json; charset=UTF-8")
	w := d.Writer()
	if _, err := io.WriteString(w, `{"a":1}`); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	s, err := d.Text()
	if err != nil || s != `{"a":1}` {
		t.Fatalf("Text = %q, %v", s, err)
	}
	mt, err := d.MediaType()
	if err != nil || mt != "application/json" {
		t.Fatalf("MediaType = %q, %v", mt, err)
	}
}

func TestDestination_TextRequiresUTF8(t *testing.T) {
	d := New()
	d.SetContentType("application/pdf")
	_, _ = io.WriteString(d.Writer(), "%PDF")
	if _, err := d.Text(); err == nil {
		t.Fatal("expected error for a content type without charset")
	}
	if string(d.Bytes()) != "%PDF" {
		t.Fatalf("Bytes = %q", d.Bytes())
	}
}

func TestDestination_Filename(t *testing.T) {
	d := New()
	var ce *definition.ConfigurationError
	if err := d.SetContentDispositionFilename("../etc/passwd"); !errors.As(err, &ce) {
		t.Fatalf("want ConfigurationError, got %v", err)
	}
	if err := d.SetContentDispositionFilename("report-2024.pdf"); err != nil {
		t.Fatalf("valid filename: %v", err)
	}
	if d.Filename != "report-2024.pdf" {
		t.Fatalf("Filename = %q", d.Filename)
	}
}

func TestDestination_Deliver(t *testing.T) {
	d := New()
	d.SetContentType("application/pdf")
	_ = d.SetContentDispositionFilename("a.pdf")
	_, _ = io.WriteString(d.Writer(), "%PDF")

	rec := httptest.NewRecorder()
	if err := d.Deliver(rec, http.StatusOK); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.String() != "%PDF" {
		t.Fatalf("response = %d %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="a.pdf"` {
		t.Fatalf("Content-Disposition = %q", got)
	}

	rec = httptest.NewRecorder()
	_ = New().Deliver(rec, http.StatusNotFound)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unwritten destination status = %d", rec.Code)
	}
}
