package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"docgen/internal/config"
	"docgen/internal/definition"
	"docgen/internal/fo"
	"docgen/internal/logging"
	"docgen/internal/template"
	"docgen/sink"
	"docgen/source/kafka"
)

type Options struct {
	// Workers bounds parallel compiles; GOMAXPROCS when 0.
	Workers  int
	Renderer fo.Renderer
}

// Runner holds one Generator per catalogue document and, once a source and
// a sink are set, renders the requests the source delivers.
type Runner struct {
	catalogue  *config.Catalogue
	generators map[string]*Generator
	problems   []error

	source kafka.Adapter
	sink   sink.Adapter
}

// Compile loads the catalogue at path, schedules every document's template
// on one batch and blocks until the batch has run. Broken catalogue entries
// and invalid templates do not fail the compile; they are listed by
// Problems.
func Compile(ctx context.Context, path string, cache *template.Cache, opts Options) (*Runner, error) {
	cat, err := config.LoadCatalogue(path)
	if cat == nil {
		return nil, err
	}
	r := &Runner{catalogue: cat, generators: make(map[string]*Generator, len(cat.Definitions))}
	if err != nil {
		r.addProblems(err)
	}

	batch := template.NewBatch(opts.Workers)
	for _, def := range cat.Definitions {
		r.generators[def.Name] = NewGenerator(cache, batch, def, opts.Renderer)
	}
	logging.L().Info("pipeline: compiling templates", "catalogue", path, "documents", len(cat.Definitions), "jobs", batch.Len())
	if err := batch.Execute(ctx); err != nil {
		return nil, err
	}

	for _, name := range r.Names() {
		if err := r.generators[name].AssertTemplateValid(); err != nil {
			r.problems = append(r.problems, fmt.Errorf("%s: %w", name, err))
		}
	}
	for _, p := range r.problems {
		logging.L().Warn("pipeline: document unavailable", "err", p)
	}
	return r, nil
}

func (r *Runner) addProblems(err error) {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		r.problems = append(r.problems, j.Unwrap()...)
		return
	}
	r.problems = append(r.problems, err)
}

// Names lists the documents in catalogue order.
func (r *Runner) Names() []string { return r.catalogue.Names() }

func (r *Runner) Generator(name string) (*Generator, bool) {
	g, ok := r.generators[name]
	return g, ok
}

// Problems lists broken catalogue entries and templates that failed to
// compile.
func (r *Runner) Problems() []error { return r.problems }

func (r *Runner) SetSource(s kafka.Adapter) { r.source = s }
func (r *Runner) SetSink(s sink.Adapter)    { r.sink = s }

// Start consumes requests in the background until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if r.source == nil {
		return errors.New("runner: no source configured")
	}
	if r.sink == nil {
		return errors.New("runner: no sink configured")
	}
	go func() {
		if err := r.source.Run(ctx, r.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logging.L().Error("runner: source stopped", "err", err)
		}
	}()
	return nil
}

// Handle renders one request into a destination of the sink.
func (r *Runner) Handle(ctx context.Context, req *kafka.Request) error {
	g, ok := r.Generator(req.Document)
	if !ok {
		return definition.Errorf(req.Document, "unknown document")
	}
	input, err := ParseInput(req.ContentType, bytes.NewReader(req.Input))
	if err != nil {
		return err
	}
	ctx = sink.WithCorrelationID(ctx, req.CorrelationID)
	dest, err := r.sink.NewDestination(ctx, req.Document)
	if err != nil {
		return err
	}
	return g.Render(ctx, dest, input, req.Transform, nil, req.Language)
}

// Close stops the source and then the sink.
func (r *Runner) Close() error {
	var errs []error
	if r.source != nil {
		errs = append(errs, r.source.Close())
	}
	if r.sink != nil {
		errs = append(errs, r.sink.Close())
	}
	return errors.Join(errs...)
}
