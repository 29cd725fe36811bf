package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docgen/internal/pipeline"
	"docgen/internal/transport"
	"docgen/sink"
	sinkfile "docgen/sink/file"
)

type renderFlags struct {
	language    string
	contentType string
	output      string
	server      string
	debug       bool
}

func newRenderCmd(g *globals) *cobra.Command {
	f := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render <document> [input]",
		Short: "Render one document from an input file or stdin",
		Long: `Render one document of the catalogue. The input is read from the given
file or from stdin; a .json file or --content-type application/json is
converted to XML first. The document is written to --output, a file or a
directory, or to stdout.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			ct := f.contentType
			if ct == "" && len(args) == 2 && strings.EqualFold(filepath.Ext(args[1]), ".json") {
				ct = "application/json"
			}
			dest, err := f.destination(cmd, args[0])
			if err != nil {
				return err
			}
			if f.server != "" {
				return f.remote(cmd.Context(), dest, args[0], ct, in)
			}
			return f.local(cmd.Context(), g, dest, args[0], ct, in)
		},
	}
	cmd.Flags().StringVarP(&f.language, "language", "l", "", "Language the parameters are resolved for")
	cmd.Flags().StringVar(&f.contentType, "content-type", "", "Media type of the input (default: from the file extension, else XML)")
	cmd.Flags().StringVarP(&f.output, "output", "o", sinkfile.Stdout, "Output file or directory")
	cmd.Flags().StringVar(&f.server, "server", "", "Render on a docgen server at this gRPC address instead of locally")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "Write the input back without transforming it")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) < 2 || args[1] == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(args[1])
}

// destination writes into the file sink; stdout goes to the command's
// output stream.
func (f *renderFlags) destination(cmd *cobra.Command, document string) (sink.Destination, error) {
	if f.output == sinkfile.Stdout {
		return &stdoutDest{w: cmd.OutOrStdout()}, nil
	}
	s, err := sink.NewAdapter("file")
	if err != nil {
		return nil, err
	}
	if err := s.Configure(sinkfile.Config{Path: f.output}); err != nil {
		return nil, err
	}
	return s.NewDestination(cmd.Context(), document)
}

func (f *renderFlags) local(ctx context.Context, g *globals, dest sink.Destination, document, contentType string, in []byte) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	r, err := compile(ctx, cfg)
	if err != nil {
		return err
	}
	gen, ok := r.Generator(document)
	if !ok {
		return fmt.Errorf("unknown document %q", document)
	}
	input, err := pipeline.ParseInput(contentType, bytes.NewReader(in))
	if err != nil {
		return err
	}
	return gen.Render(ctx, dest, input, !f.debug, nil, f.language)
}

func (f *renderFlags) remote(ctx context.Context, dest sink.Destination, document, contentType string, in []byte) error {
	c, err := transport.Dial(f.server)
	if err != nil {
		return err
	}
	defer c.Close()

	doc, err := c.Render(ctx, transport.Request{
		Document:    document,
		Language:    f.language,
		ContentType: contentType,
		Input:       in,
		Transform:   !f.debug,
	})
	if err != nil {
		return err
	}
	dest.SetContentType(doc.ContentType)
	if err := dest.SetContentDispositionFilename(doc.Filename); err != nil {
		return err
	}
	w := dest.Writer()
	if _, err := w.Write(doc.Body); err != nil {
		if a, ok := w.(sink.Aborter); ok {
			_ = a.CloseWithError(err)
		}
		return err
	}
	return w.Close()
}

type stdoutDest struct {
	sink.Headers
	w io.Writer
}

func (d *stdoutDest) Writer() io.WriteCloser { return nopCloser{d.w} }

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
