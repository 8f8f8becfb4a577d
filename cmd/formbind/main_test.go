package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func TestLintEmbeddedTemplatesAreClean(t *testing.T) {
	var stderr bytes.Buffer
	if err := runLint(nil, &stderr); err != nil {
		t.Fatalf("lint: %v\n%s", err, stderr.String())
	}
}

func TestLintTemplatesReportsProblems(t *testing.T) {
	fsys := fstest.MapFS{
		"Broken.json":  {Data: []byte(`{"class": "NoSuchWidget"}`)},
		"Healthy.json": {Data: []byte(`{"class": "Composite", "children": [{"class": "TextField", "modelPath": "cn"}]}`)},
	}
	found, err := lintTemplates("mem", fsys, false)
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(found) == 0 {
		t.Fatalf("expected a violation for Broken")
	}
	for _, v := range found {
		if v.template != "Broken" {
			t.Fatalf("unexpected violation %s", v)
		}
	}
}

func TestPreviewTemplateText(t *testing.T) {
	var out bytes.Buffer
	err := runPreview(context.Background(), []string{"-template", "Group", "-renderer", "text"}, &out)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	for _, want := range []string{"Group", `Label "Name" for cn`, "MultiEditWidget memberUid"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}
}

func TestPreviewObjectFromMockWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alice.html")
	var out bytes.Buffer
	args := []string{
		"-mock",
		"-dn", "cn=Alice Doe,ou=people,dc=example,dc=net",
		"-renderer", "html",
		"-output", path,
	}
	if err := runPreview(context.Background(), args, &out); err != nil {
		t.Fatalf("preview: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	html := string(raw)
	for _, want := range []string{`value="Alice"`, `value="alice@example.net"`, `name="dn"`} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in preview", want)
		}
	}
	if strings.Contains(html, "uidNumber") {
		t.Fatalf("detached PosixUser template should not be rendered")
	}
}

func TestPreviewRequiresTemplateOrDN(t *testing.T) {
	if err := runPreview(context.Background(), nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error")
	}
}
