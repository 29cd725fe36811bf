// Package buffer is a Destination keeping the document in memory so it can
// be read any number of times.
package buffer

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"

	"docgen/sink"
)

var charsetSuffix = regexp.MustCompile(`(?i); charset=utf-8`)

type Destination struct {
	sink.Headers
	body   bytes.Buffer
	opened bool
}

func New() *Destination { return &Destination{} }

func (d *Destination) Writer() io.WriteCloser {
	d.opened = true
	d.body.Reset()
	return writer{d}
}

type writer struct{ d *Destination }

func (w writer) Write(p []byte) (int, error) { return w.d.body.Write(p) }
func (w writer) Close() error                { return nil }

// Bytes is the document written so far.
func (d *Destination) Bytes() []byte { return d.body.Bytes() }

// Text returns the document as text. The content type must declare UTF-8.
func (d *Destination) Text() (string, error) {
	if !charsetSuffix.MatchString(d.ContentType) {
		return "", fmt.Errorf("buffer: content type %q does not contain %q", d.ContentType, "; charset=utf-8")
	}
	return d.body.String(), nil
}

// MediaType is the content type without its UTF-8 charset suffix.
func (d *Destination) MediaType() (string, error) {
	if !charsetSuffix.MatchString(d.ContentType) {
		return "", fmt.Errorf("buffer: content type %q does not contain %q", d.ContentType, "; charset=utf-8")
	}
	return charsetSuffix.ReplaceAllString(d.ContentType, ""), nil
}

// Deliver writes the buffered document as an HTTP response with the given
// status. A destination that was never written is answered with the bare
// status.
func (d *Destination) Deliver(w http.ResponseWriter, status int) error {
	if !d.opened {
		http.Error(w, http.StatusText(status), status)
		return nil
	}
	if d.ContentType != "" {
		w.Header().Set("Content-Type", d.ContentType)
	}
	if d.Filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.Filename))
	}
	w.WriteHeader(status)
	_, err := w.Write(d.body.Bytes())
	return err
}
