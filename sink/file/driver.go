// Package file writes documents into a directory, or to stdout.
package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"

	"docgen/internal/definition"
	"docgen/internal/logging"
	"docgen/sink"
)

// Stdout as Config.Path streams every document to standard output.
const Stdout = "-"

type Config struct {
	// Path is a directory, a file path ending in the document's extension
	// or Stdout.
	Path string `koanf:"path"`
}

type driver struct {
	cfg    Config
	stdout io.Writer
}

func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("file-sink: expected Config, got %T", raw)
	}
	if c.Path == "" {
		c.Path = Stdout
	}
	d.cfg = c
	return nil
}

func (d *driver) NewDestination(_ context.Context, document string) (sink.Destination, error) {
	return &destination{drv: d, document: document}, nil
}

func (d *driver) Close() error { return nil }

type destination struct {
	sink.Headers
	drv      *driver
	document string
}

func (dst *destination) Writer() io.WriteCloser {
	if dst.drv.cfg.Path == Stdout {
		out := dst.drv.stdout
		if out == nil {
			out = os.Stdout
		}
		return nopCloser{out}
	}
	target := dst.target()
	f, err := os.CreateTemp(filepath.Dir(target), ".docgen-*")
	if err != nil {
		return &failed{err: err}
	}
	return &fileWriter{f: f, target: target}
}

// target is Path itself unless Path is a directory, in which case the
// download filename or the document name plus an extension for the content
// type is used inside it.
func (dst *destination) target() string {
	p := dst.drv.cfg.Path
	if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
		return p
	}
	name := dst.Filename
	if name == "" {
		name = dst.document + extension(dst.ContentType)
	}
	return filepath.Join(p, name)
}

var extensions = map[string]string{
	definition.ContentTypeText:  ".txt",
	definition.ContentTypeJSON:  ".json",
	definition.ContentTypePDF:   ".pdf",
	definition.ContentTypeExcel: ".xlsx",
	"text/xml":                  ".xml",
	"application/xml":           ".xml",
	"text/html":                 ".html",
}

func extension(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".out"
	}
	if ext, ok := extensions[mt]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mt); len(exts) > 0 {
		return exts[0]
	}
	return ".out"
}

// fileWriter writes to a temporary file renamed into place on Close, so a
// failed render never leaves a partial document behind.
type fileWriter struct {
	f      *os.File
	target string
	done   bool
}

func (w *fileWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

func (w *fileWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.f.Name())
		return err
	}
	if err := os.Rename(w.f.Name(), w.target); err != nil {
		_ = os.Remove(w.f.Name())
		return err
	}
	logging.L().Info("file-sink: wrote document", "path", w.target)
	return nil
}

func (w *fileWriter) CloseWithError(error) error {
	if w.done {
		return nil
	}
	w.done = true
	return errors.Join(w.f.Close(), os.Remove(w.f.Name()))
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

type failed struct{ err error }

func (f *failed) Write([]byte) (int, error) { return 0, f.err }
func (f *failed) Close() error              { return f.err }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("file", func() sink.Adapter { return &driver{} })
}
