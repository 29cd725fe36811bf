package pipeline

import "fmt"

// TransformError wraps a failure of the transform engine while running a
// document's stylesheet.
type TransformError struct {
	Document string
	Err      error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform %s: %v", e.Document, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// ConversionError wraps a failure turning transform output into the target
// format: malformed intermediate XML, JSON mapping, spreadsheet or page
// rendering.
type ConversionError struct {
	Document   string
	Conversion string
	Err        error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s conversion of %s: %v", e.Conversion, e.Document, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }
