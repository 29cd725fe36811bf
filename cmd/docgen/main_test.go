package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCatalogue(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalogue.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write catalogue: %v", err)
	}
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "absent.yml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCheck(t *testing.T) {
	cat := writeCatalogue(t, "documents:\n  - name: echo\n")
	out, err := execute(t, "", "check", "--catalogue", cat)
	if err != nil {
		t.Fatalf("check: %v\n%s", err, out)
	}
	if !strings.Contains(out, "ok   echo (none)") {
		t.Fatalf("output = %q", out)
	}

	cat = writeCatalogue(t, "documents:\n  - name: echo\n  - name: gone\n    xslt_file: gone.xsl\n")
	out, err = execute(t, "", "check", "--catalogue", cat)
	if !errors.Is(err, errProblems) || !strings.Contains(out, "gone") {
		t.Fatalf("check = %v\n%s", err, out)
	}
}

func TestRender_Stdout(t *testing.T) {
	cat := writeCatalogue(t, "documents:\n  - name: echo\n")
	out, err := execute(t, `{"id":7}`, "render", "echo", "--catalogue", cat, "--content-type", "application/json")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.HasSuffix(out, "<request><id>7</id></request>") {
		t.Fatalf("output = %q", out)
	}
}

func TestRender_FileOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "order.json")
	if err := os.WriteFile(in, []byte(`{"n":1}`), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cat := writeCatalogue(t, "documents:\n  - name: echo\n    content_type: text/xml\n")
	if _, err := execute(t, "", "render", "echo", in, "--catalogue", cat, "-o", outDir); err != nil {
		t.Fatalf("render: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(outDir, "echo.xml"))
	if err != nil || string(got) != "<request><n>1</n></request>" {
		t.Fatalf("echo.xml = %q, %v", got, err)
	}
}

func TestRender_Errors(t *testing.T) {
	cat := writeCatalogue(t, "documents:\n  - name: echo\n")
	if _, err := execute(t, "<x/>", "render", "nope", "--catalogue", cat); err == nil {
		t.Fatal("expected error for unknown document")
	}
	if _, err := execute(t, "<x", "render", "echo", "--catalogue", cat); err == nil {
		t.Fatal("expected error for malformed input")
	}
	if _, err := execute(t, "", "render"); err == nil {
		t.Fatal("expected usage error without a document")
	}
}
