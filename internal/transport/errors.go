package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"

	"docgen/internal/definition"
	"docgen/internal/pipeline"
	"docgen/internal/template"
)

// Documents is the part of the pipeline runner the listeners need.
type Documents interface {
	Names() []string
	Generator(name string) (*pipeline.Generator, bool)
}

type unknownDocumentError struct{ name string }

func (e unknownDocumentError) Error() string { return fmt.Sprintf("unknown document %q", e.name) }

var (
	errBadTransform = errors.New("transform must be a boolean")
	errBadFragment  = errors.New("fragment must be a boolean")
)

// classify maps a render failure to the status reported to the caller.
// Caller mistakes are distinguished from documents the service cannot
// currently produce.
func classify(err error) (codes.Code, int) {
	var (
		unknown unknownDocumentError
		invalid *template.TemplateInvalidError
		config  *definition.ConfigurationError
		tooBig  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &unknown):
		return codes.NotFound, http.StatusNotFound
	case errors.As(err, &tooBig):
		return codes.ResourceExhausted, http.StatusRequestEntityTooLarge
	case errors.Is(err, pipeline.ErrInvalidInput), errors.Is(err, errBadTransform), errors.Is(err, errBadFragment):
		return codes.InvalidArgument, http.StatusBadRequest
	case errors.As(err, &invalid), errors.Is(err, template.ErrPending), errors.As(err, &config):
		return codes.FailedPrecondition, http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded, http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return codes.Canceled, http.StatusServiceUnavailable
	}
	return codes.Internal, http.StatusInternalServerError
}
