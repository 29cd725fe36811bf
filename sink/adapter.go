package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"docgen/internal/definition"
)

// Destination receives one generated document. Headers are set before
// Writer is called; the generator closes the writer when it is done, on
// success and on failure alike.
type Destination interface {
	SetContentType(contentType string)
	// SetContentDispositionFilename asks for the document to be saved as
	// filename. Empty means no preferred name.
	SetContentDispositionFilename(filename string) error
	Writer() io.WriteCloser
}

// Aborter is implemented by writers that must discard their output when
// generation fails. The generator calls CloseWithError instead of Close.
type Aborter interface {
	CloseWithError(err error) error
}

// Adapter is the common behaviour every sink driver exposes: a configured
// target handing out one Destination per document.
type Adapter interface {
	Configure(any) error // driver-specific config struct
	NewDestination(ctx context.Context, document string) (Destination, error)
	Close() error // idempotent
}

// Headers implements the header half of Destination; drivers embed it.
type Headers struct {
	ContentType string
	Filename    string
}

func (h *Headers) SetContentType(ct string) { h.ContentType = ct }

func (h *Headers) SetContentDispositionFilename(name string) error {
	if name != "" {
		if err := definition.ValidateFilename(name); err != nil {
			return err
		}
	}
	h.Filename = name
	return nil
}

type correlationKey struct{}

// WithCorrelationID tags ctx with the id of the request a document answers.
// Destinations that can carry metadata pass it on.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

/*──────── registry ───────*/

type factory = func() Adapter

var (
	mu  sync.RWMutex
	reg = map[string]factory{}
)

func Register(name string, f factory) {
	mu.Lock()
	defer mu.Unlock()
	reg[name] = f
}

func NewAdapter(name string) (Adapter, error) {
	mu.RLock()
	f, ok := reg[name]
	mu.RUnlock()
	if ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
