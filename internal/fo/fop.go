package fo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"

	"docgen/internal/logging"
)

// FOP renders through the Apache FOP command line. Each render works in a
// private temporary directory holding the effective configuration and any
// resolved resources.
type FOP struct {
	// Path of the fop launcher; "fop" (looked up in PATH) when empty.
	Path string
	// Dir is where the per-render directories are created; the system temp
	// dir when empty.
	Dir string
}

func (f *FOP) bin() string {
	if f.Path == "" {
		return "fop"
	}
	return f.Path
}

func (f *FOP) Render(ctx context.Context, doc *etree.Document, opts Options, out io.Writer) error {
	defer logging.Timer("create PDF from XSL-FO")()

	work, err := os.MkdirTemp(f.Dir, "docgen-fop-*")
	if err != nil {
		return fmt.Errorf("fop: %w", err)
	}
	defer os.RemoveAll(work)

	if opts.Resolver != nil {
		doc = doc.Copy()
		if err := resolveResources(ctx, doc, opts.Resolver, work); err != nil {
			return fmt.Errorf("fop: %w", err)
		}
	}

	var args []string
	if opts.Config != "" || opts.FontBase != "" || opts.ResourceBase != "" {
		cfg, err := buildConfig(opts)
		if err != nil {
			return fmt.Errorf("fop: %w", err)
		}
		path := filepath.Join(work, "fop.xconf")
		if err := cfg.WriteToFile(path); err != nil {
			return fmt.Errorf("fop: %w", err)
		}
		args = append(args, "-c", path)
	}
	args = append(args, "-fo", "-", "-pdf", "-")

	var in, pdf, stderr bytes.Buffer
	if _, err := doc.WriteTo(&in); err != nil {
		return fmt.Errorf("fop: %w", err)
	}
	cmd := exec.CommandContext(ctx, f.bin(), args...)
	cmd.Dir = work
	cmd.Stdin = &in
	cmd.Stdout = &pdf
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("fop: %w: %s", err, msg)
		}
		return fmt.Errorf("fop: %w", err)
	}
	_, err = pdf.WriteTo(out)
	return err
}

// buildConfig loads opts.Config, or starts an empty configuration, and sets
// the base and font-base directories.
func buildConfig(opts Options) (*etree.Document, error) {
	cfg := etree.NewDocument()
	if opts.Config != "" {
		if err := cfg.ReadFromFile(opts.Config); err != nil {
			return nil, fmt.Errorf("config %s: %w", opts.Config, err)
		}
	}
	root := cfg.Root()
	if root == nil {
		root = cfg.CreateElement("fop")
		root.CreateAttr("version", "1.0")
	}
	if opts.ResourceBase != "" {
		setChild(root, "base", dirURL(opts.ResourceBase))
	}
	if opts.FontBase != "" {
		setChild(root, "font-base", dirURL(opts.FontBase))
	}
	return cfg, nil
}

func setChild(parent *etree.Element, tag, text string) {
	el := parent.SelectElement(tag)
	if el == nil {
		el = etree.NewElement(tag)
		parent.InsertChildAt(0, el)
	}
	el.SetText(text)
}

func dirURL(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(dir) + "/"}
	return u.String()
}

// resolveResources hands every fo:external-graphic source to r and points
// the element at a local copy of what r returned.
func resolveResources(ctx context.Context, doc *etree.Document, r Resolver, dir string) error {
	n := 0
	for _, el := range doc.FindElements("//*") {
		if el.Tag != "external-graphic" || el.NamespaceURI() != Namespace {
			continue
		}
		attr := el.SelectAttr("src")
		if attr == nil {
			continue
		}
		href := unwrapURI(attr.Value)
		rc, err := r.Resolve(ctx, href)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", href, err)
		}
		if rc == nil {
			continue
		}
		n++
		path := filepath.Join(dir, fmt.Sprintf("resource-%d", n))
		if err := writeFile(path, rc); err != nil {
			return fmt.Errorf("resolve %s: %w", href, err)
		}
		attr.Value = "url('" + (&url.URL{Scheme: "file", Path: filepath.ToSlash(path)}).String() + "')"
	}
	return nil
}

// unwrapURI strips the url(...) notation and quotes from an FO URI value.
func unwrapURI(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "url(") && strings.HasSuffix(v, ")") {
		v = strings.TrimSpace(v[len("url(") : len(v)-1])
	}
	return strings.Trim(v, `'"`)
}

func writeFile(path string, rc io.ReadCloser) error {
	defer rc.Close()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
