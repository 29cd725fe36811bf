// Package fo renders XSL-FO documents to PDF.
package fo

import (
	"context"
	"io"

	"github.com/beevik/etree"
)

// Namespace of XSL-FO elements.
const Namespace = "http://www.w3.org/1999/XSL/Format"

// Resolver supplies resources referenced from a document, typically images
// generated per request. Returning a nil reader and nil error leaves the
// reference to the renderer's own resolution.
type Resolver interface {
	Resolve(ctx context.Context, href string) (io.ReadCloser, error)
}

type ResolverFunc func(ctx context.Context, href string) (io.ReadCloser, error)

func (f ResolverFunc) Resolve(ctx context.Context, href string) (io.ReadCloser, error) {
	return f(ctx, href)
}

// Options are the per-definition renderer locations. Empty fields use the
// renderer defaults.
type Options struct {
	// FontBase is the directory relative font paths resolve against.
	FontBase string
	// Config is a renderer configuration file.
	Config string
	// ResourceBase is the directory relative resource paths resolve against.
	ResourceBase string
	Resolver     Resolver
}

// Renderer writes the PDF for an XSL-FO document to out. Nothing is
// written when rendering fails.
type Renderer interface {
	Render(ctx context.Context, doc *etree.Document, opts Options, out io.Writer) error
}
