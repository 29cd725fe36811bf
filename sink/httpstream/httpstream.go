// Package httpstream is a Destination writing straight into an HTTP
// response.
package httpstream

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"docgen/internal/definition"
)

// ErrOutputStarted is returned when a header is set after the body began.
var ErrOutputStarted = errors.New("httpstream: cannot set headers after content started")

type Destination struct {
	w       http.ResponseWriter
	started bool
	late    error
}

func New(w http.ResponseWriter) *Destination { return &Destination{w: w} }

// SetContentType sets the response content type. Once the body has begun
// the call is recorded as an error that closing the writer reports.
func (d *Destination) SetContentType(ct string) {
	if d.started {
		d.late = ErrOutputStarted
		return
	}
	d.w.Header().Set("Content-Type", ct)
}

// SetContentDispositionFilename marks the response as a download, named
// filename when it is not empty.
func (d *Destination) SetContentDispositionFilename(filename string) error {
	if d.started {
		return ErrOutputStarted
	}
	if filename == "" {
		d.w.Header().Set("Content-Disposition", "attachment")
		return nil
	}
	if err := definition.ValidateFilename(filename); err != nil {
		return err
	}
	d.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	return nil
}

// Started reports whether the body has been handed out.
func (d *Destination) Started() bool { return d.started }

func (d *Destination) Writer() io.WriteCloser {
	d.started = true
	return writer{d}
}

type writer struct{ d *Destination }

func (w writer) Write(p []byte) (int, error) { return w.d.w.Write(p) }

func (w writer) Close() error {
	if f, ok := w.d.w.(http.Flusher); ok {
		f.Flush()
	}
	return w.d.late
}
