package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"docgen/internal/logging"
	"docgen/internal/pipeline"
	"docgen/internal/transport"
)

const shutdownGrace = 10 * time.Second

// Engine owns the compiled documents and the listeners serving them.
type Engine struct {
	runner *pipeline.Runner

	grpc    *transport.Server
	http    *http.Server
	httpLis net.Listener
	metrics *http.Server
}

// Runner is the compiled catalogue.
func (e *Engine) Runner() *pipeline.Runner { return e.runner }

// Run serves until ctx is cancelled or a listener fails, then stops the
// listeners and the kafka source and sink.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if e.grpc != nil {
		g.Go(e.grpc.Serve)
	}
	if e.http != nil {
		g.Go(func() error {
			if err := e.http.Serve(e.httpLis); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return e.shutdown()
	})
	err := g.Wait()
	logging.L().Info("engine: stopped", "err", err)
	return err
}

func (e *Engine) shutdown() error {
	var errs []error
	if e.grpc != nil {
		e.grpc.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if e.http != nil {
		errs = append(errs, e.http.Shutdown(ctx))
	}
	if e.metrics != nil {
		errs = append(errs, e.metrics.Shutdown(ctx))
	}
	errs = append(errs, e.runner.Close())
	return errors.Join(errs...)
}
