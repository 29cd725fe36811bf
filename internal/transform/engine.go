package transform

import (
	"context"
	"io"
	"strings"

	"github.com/beevik/etree"
)

// XSLTNamespace is the namespace of a stylesheet root element.
const XSLTNamespace = "http://www.w3.org/1999/XSL/Transform"

type Severity int

const (
	Warning Severity = iota
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "WARN"
	case Fatal:
		return "FATAL"
	default:
		return "ERROR"
	}
}

// Diagnostic is one message an engine reported while compiling.
type Diagnostic struct {
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string { return d.Severity.String() + ": " + d.Message }

// Join renders diagnostics one per line.
func Join(diags []Diagnostic) string {
	lines := make([]string, len(diags))
	for i, d := range diags {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// Engine compiles a parsed stylesheet. Diagnostics may be returned alongside
// both success and failure.
type Engine interface {
	Compile(ctx context.Context, name string, stylesheet *etree.Document) (Factory, []Diagnostic, error)
}

// Factory produces independent invocations of one compiled stylesheet. It must
// be safe for concurrent use.
type Factory interface {
	NewInvocation() Invocation
}

// Invocation is a single run of a compiled stylesheet. It is not safe for
// concurrent use.
type Invocation interface {
	SetParameter(name, value string)
	Run(ctx context.Context, input *etree.Document, out io.Writer) error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, name string, stylesheet *etree.Document) (Factory, []Diagnostic, error)

func (f EngineFunc) Compile(ctx context.Context, name string, stylesheet *etree.Document) (Factory, []Diagnostic, error) {
	return f(ctx, name, stylesheet)
}
