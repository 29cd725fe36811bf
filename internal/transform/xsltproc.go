package transform

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"strings"

	"github.com/beevik/etree"

	"docgen/internal/logging"
)

// Exit codes xsltproc uses for a stylesheet that does not compile.
const (
	exitStylesheetParse = 4
	exitStylesheetError = 5
)

// Xsltproc runs stylesheets through the libxslt command line processor.
// Compiling writes the stylesheet to a file under Dir and checks it once
// against an empty document; the file is removed when the Factory becomes
// unreachable.
type Xsltproc struct {
	// Path of the binary; "xsltproc" (looked up in PATH) when empty.
	Path string
	// Dir receives compiled stylesheets; the system temp dir when empty.
	Dir string
}

func (x *Xsltproc) bin() string {
	if x.Path == "" {
		return "xsltproc"
	}
	return x.Path
}

func (x *Xsltproc) Compile(ctx context.Context, name string, stylesheet *etree.Document) (Factory, []Diagnostic, error) {
	root := stylesheet.Root()
	if root == nil {
		return nil, nil, errors.New("stylesheet has no root element")
	}
	if root.NamespaceURI() != XSLTNamespace || (root.Tag != "stylesheet" && root.Tag != "transform") {
		return nil, nil, fmt.Errorf("root element <%s> is not an XSLT stylesheet", root.FullTag())
	}

	f, err := os.CreateTemp(x.Dir, "docgen-*.xsl")
	if err != nil {
		return nil, nil, err
	}
	path := f.Name()
	_, werr := stylesheet.WriteTo(f)
	if err := errors.Join(werr, f.Close()); err != nil {
		_ = os.Remove(path)
		return nil, nil, err
	}

	diags, err := x.check(ctx, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, diags, err
	}

	fac := &xsltprocFactory{bin: x.bin(), path: path}
	runtime.AddCleanup(fac, func(p string) {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.L().Warn("xsltproc: remove compiled stylesheet", "path", p, "err", err)
		}
	}, path)
	logging.L().Debug("xsltproc: compiled", "name", name, "path", path)
	return fac, diags, nil
}

// check runs the stylesheet over a one-element document. Only the stylesheet
// exit codes count as a compile failure; anything else the stylesheet does
// with the dummy input is a runtime matter.
func (x *Xsltproc) check(ctx context.Context, path string) ([]Diagnostic, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, x.bin(), "--nonet", "--nowrite", "--noout", path, "-")
	cmd.Stdin = strings.NewReader("<docgen/>")
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exit *exec.ExitError
	if err != nil && !errors.As(err, &exit) {
		return nil, fmt.Errorf("xsltproc: %w", err)
	}
	diags := parseDiagnostics(&stderr)
	if exit != nil && (exit.ExitCode() == exitStylesheetParse || exit.ExitCode() == exitStylesheetError) {
		return diags, fmt.Errorf("xsltproc: stylesheet does not compile (exit status %d)", exit.ExitCode())
	}
	var warnings []Diagnostic
	for _, d := range diags {
		if d.Severity == Warning {
			warnings = append(warnings, d)
		}
	}
	return warnings, nil
}

func parseDiagnostics(r io.Reader) []Diagnostic {
	var diags []Diagnostic
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		sev := Error
		switch lower := strings.ToLower(line); {
		case strings.Contains(lower, "warning"):
			sev = Warning
		case strings.Contains(lower, "failed to parse"), strings.Contains(lower, "failed to compile"):
			sev = Fatal
		}
		diags = append(diags, Diagnostic{Severity: sev, Message: line})
	}
	return diags
}

// paramArgs passes value as a string parameter. xsltproc quotes a
// --stringparam value with whichever of ' and " it lacks, so a value holding
// both is passed as a concat() expression instead.
func paramArgs(name, value string) []string {
	if !strings.Contains(value, "'") || !strings.Contains(value, `"`) {
		return []string{"--stringparam", name, value}
	}
	parts := strings.Split(value, "'")
	expr := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			expr = append(expr, `"'"`)
		}
		if p != "" {
			expr = append(expr, "'"+p+"'")
		}
	}
	return []string{"--param", name, "concat(" + strings.Join(expr, ", ") + ", '')"}
}

type xsltprocFactory struct {
	bin  string
	path string
}

func (f *xsltprocFactory) NewInvocation() Invocation {
	return &xsltprocRun{f: f, params: map[string]string{}}
}

type xsltprocRun struct {
	f      *xsltprocFactory
	params map[string]string
}

func (r *xsltprocRun) SetParameter(name, value string) { r.params[name] = value }

func (r *xsltprocRun) Run(ctx context.Context, input *etree.Document, out io.Writer) error {
	args := []string{"--nonet"}
	for _, k := range slices.Sorted(maps.Keys(r.params)) {
		args = append(args, paramArgs(k, r.params[k])...)
	}
	args = append(args, r.f.path, "-")

	var in, stderr bytes.Buffer
	if _, err := input.WriteTo(&in); err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, r.f.bin, args...)
	cmd.Stdin = &in
	cmd.Stdout = out
	cmd.Stderr = &stderr
	err := cmd.Run()
	runtime.KeepAlive(r.f)
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("xsltproc: %w: %s", err, msg)
		}
		return fmt.Errorf("xsltproc: %w", err)
	}
	return nil
}
