// Package config loads the document catalogue and the server settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"docgen/internal/definition"
	"docgen/internal/excel"
)

const SupportedSchema = "v1"

type parameterSpec struct {
	Name     string `yaml:"name"`
	Value    string `yaml:"value"`
	Language string `yaml:"language"`
}

type fopSpec struct {
	FontBase     string `yaml:"font_base"`
	Config       string `yaml:"config"`
	ResourceBase string `yaml:"resource_base"`
}

type documentSpec struct {
	Name string `yaml:"name"`

	// LegacyFile points at a <document-output-definition> XML file; the
	// remaining fields are ignored when it is set.
	LegacyFile string `yaml:"legacy_file"`

	XSLTFile      string `yaml:"xslt_file"`
	XSLTDirectory string `yaml:"xslt_directory"` // <dir>/report.xslt

	ContentType      string          `yaml:"content_type"`
	DownloadFilename string          `yaml:"download_filename"`
	Output           string          `yaml:"output"`
	DecimalSeparator string          `yaml:"input_decimal_separator"`
	MagicNumbers     bool            `yaml:"magic_numbers"` // deprecated, use input_decimal_separator: magic
	Parameters       []parameterSpec `yaml:"parameters"`
	FOP              fopSpec         `yaml:"fop"`
}

type catalogueFile struct {
	SchemaVersion string         `yaml:"schema_version"`
	TemplateDir   string         `yaml:"template_dir"`
	Documents     []documentSpec `yaml:"documents"`
}

// Catalogue is the set of document definitions served by one process.
type Catalogue struct {
	Path        string
	TemplateDir string
	Definitions []*definition.Definition
}

// Names lists the definitions in catalogue order.
func (c *Catalogue) Names() []string {
	out := make([]string, len(c.Definitions))
	for i, d := range c.Definitions {
		out[i] = d.Name
	}
	return out
}

// LoadCatalogue parses the catalogue at path. An unreadable file or an
// unsupported schema fails the whole load. A broken document entry is
// left out and reported in the returned error, joined with the others,
// while every valid entry is still returned.
func LoadCatalogue(path string) (*Catalogue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &definition.ConfigurationError{Subject: path, Msg: "cannot read catalogue", Err: err}
	}
	var f catalogueFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, &definition.ConfigurationError{Subject: path, Msg: "malformed catalogue", Err: err}
	}
	if f.SchemaVersion == "" {
		f.SchemaVersion = SupportedSchema
	}
	if f.SchemaVersion != SupportedSchema {
		return nil, definition.Errorf(path, "catalogue schema_version %q not supported (want %q)", f.SchemaVersion, SupportedSchema)
	}

	base, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cat := &Catalogue{Path: path, TemplateDir: base}
	if f.TemplateDir != "" {
		cat.TemplateDir = resolve(base, f.TemplateDir)
	}

	var errs []error
	seen := map[string]bool{}
	for i, spec := range f.Documents {
		if spec.Name == "" {
			errs = append(errs, definition.Errorf(fmt.Sprintf("documents[%d]", i), "document has no name"))
			continue
		}
		if seen[spec.Name] {
			errs = append(errs, definition.Errorf(spec.Name, "duplicate document name"))
			continue
		}
		seen[spec.Name] = true

		def, err := buildDefinition(base, cat.TemplateDir, spec)
		if err != nil {
			errs = append(errs, about(spec.Name, err))
			continue
		}
		cat.Definitions = append(cat.Definitions, def)
	}
	return cat, errors.Join(errs...)
}

func buildDefinition(base, templateDir string, spec documentSpec) (*definition.Definition, error) {
	if spec.LegacyFile != "" {
		p := resolve(base, spec.LegacyFile)
		f, err := os.Open(p)
		if err != nil {
			return nil, &definition.ConfigurationError{Subject: spec.Name, Msg: "cannot read legacy definition", Err: err}
		}
		defer f.Close()
		return ParseLegacyDefinition(f, spec.Name, templateDir)
	}

	def := definition.New(spec.Name)
	fail := func(format string, args ...any) (*definition.Definition, error) {
		return nil, definition.Errorf(spec.Name, format, args...)
	}

	var err error
	switch {
	case spec.XSLTFile != "":
		def.Template, err = templateFile(templateDir, spec.XSLTFile)
	case spec.XSLTDirectory != "":
		def.Template, err = templateFile(templateDir, filepath.Join(spec.XSLTDirectory, "report.xslt"))
	}
	if err != nil {
		return fail("%v", err)
	}

	if def.Output, err = definition.ParseOutputConversion(spec.Output); err != nil {
		return fail("%v", err)
	}
	if spec.MagicNumbers {
		def.DecimalSeparator = excel.Magic
	}
	if spec.DecimalSeparator != "" {
		if def.DecimalSeparator, err = excel.ParseDecimalSeparator(spec.DecimalSeparator); err != nil {
			return fail("%v", err)
		}
	}
	if spec.DownloadFilename != "" {
		if err := definition.ValidateFilename(spec.DownloadFilename); err != nil {
			return nil, err
		}
	}
	def.DownloadFilename = spec.DownloadFilename
	def.ContentType = spec.ContentType

	for _, p := range spec.Parameters {
		if err := def.Parameters.Set(p.Language, p.Name, p.Value); err != nil {
			return nil, err
		}
	}
	def.FOP = definition.FOP{
		FontBase:     resolve(base, spec.FOP.FontBase),
		Config:       resolve(base, spec.FOP.Config),
		ResourceBase: resolve(base, spec.FOP.ResourceBase),
	}
	return def, nil
}

// about attributes err to the named document.
func about(name string, err error) error {
	var ce *definition.ConfigurationError
	if !errors.As(err, &ce) {
		return &definition.ConfigurationError{Subject: name, Err: err}
	}
	if ce.Subject == name {
		return ce
	}
	subject := name
	if ce.Subject != "" {
		subject += ": " + ce.Subject
	}
	return &definition.ConfigurationError{Subject: subject, Msg: ce.Msg, Err: ce.Err}
}

// templateFile joins name onto dir and checks it is a regular file.
func templateFile(dir, name string) (string, error) {
	p := resolve(dir, name)
	fi, err := os.Stat(p)
	if err != nil || !fi.Mode().IsRegular() {
		return "", fmt.Errorf("XSLT file %q not found", p)
	}
	return p, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
