// Command docgen serves and renders the documents of a catalogue.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docgen/internal/config"
	"docgen/internal/engine"
	"docgen/internal/fo"
	"docgen/internal/logging"
	"docgen/internal/pipeline"
	"docgen/internal/template"
	"docgen/internal/transform"
)

type globals struct {
	configPath string
	catalogue  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:          "docgen",
		Short:        "Generate documents from XML or JSON input with XSLT templates",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "docgen.yml", "Server configuration file (optional)")
	root.PersistentFlags().StringVar(&g.catalogue, "catalogue", "", "Document catalogue, overrides the configured one")

	root.AddCommand(newServeCmd(g), newRenderCmd(g), newCheckCmd(g))
	return root
}

func (g *globals) load() (config.Server, error) {
	cfg, err := config.LoadServer(g.configPath)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	if g.catalogue != "" {
		cfg.Catalogue = g.catalogue
	}
	logging.Configure(cfg.Log)
	return cfg, nil
}

// compile builds the catalogue the way the server does.
func compile(ctx context.Context, cfg config.Server) (*pipeline.Runner, error) {
	cache := template.NewCache(&transform.Xsltproc{Path: cfg.Xsltproc.Path})
	return pipeline.Compile(ctx, cfg.Catalogue, cache, pipeline.Options{
		Workers:  cfg.CompileWorkers,
		Renderer: &fo.FOP{Path: cfg.FOP.Path},
	})
}

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalogue over HTTP and gRPC and consume kafka render requests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			e, err := engine.Bootstrap(ctx, cfg)
			if err != nil {
				return fmt.Errorf("bootstrap: %w", err)
			}
			return e.Run(ctx)
		},
	}
}

var errProblems = errors.New("catalogue has problems")

func newCheckCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Compile every template of the catalogue and report broken documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			r, err := compile(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range r.Names() {
				gen, _ := r.Generator(name)
				if err := gen.AssertTemplateValid(); err != nil {
					fmt.Fprintf(out, "FAIL %s\n", name)
					continue
				}
				fmt.Fprintf(out, "ok   %s (%s)\n", name, gen.Definition().Output)
			}
			for _, p := range r.Problems() {
				fmt.Fprintf(out, "problem: %v\n", p)
			}
			if len(r.Problems()) > 0 {
				return fmt.Errorf("%w: %d", errProblems, len(r.Problems()))
			}
			return nil
		},
	}
}
