package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

type recordingFatal struct {
	msg string
}

func (r *recordingFatal) Fatalf(format string, args ...any) { r.msg = fmt.Sprintf(format, args...) }

func TestInternalImportForbidden(t *testing.T) {
	cases := map[string]bool{
		"handoff/internal/core": true,
		"handoff/pkg/domain":    false,
		"fmt":                   false,
	}
	for in, want := range cases {
		if got := InternalImportForbidden(in); got != want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", in, got, want)
		}
	}
}

func TestImportsUnder(t *testing.T) {
	pred := ImportsUnder("handoff/internal/adapters", "handoff/cmd/")
	cases := map[string]bool{
		"handoff/internal/adapters":              true,
		"handoff/internal/adapters/registryhttp": true,
		"handoff/internal/adaptersx":             false,
		"handoff/cmd/handoffd":                   true,
		"handoff/internal/core":                  false,
	}
	for in, want := range cases {
		if got := pred(in); got != want {
			t.Fatalf("ImportsUnder(%q)=%v want %v", in, got, want)
		}
	}
}

func TestDirectImportViolationsSkipsTestsAndDirs(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "package tmp\nimport (\n\t\"fmt\"\n\t\"example.com/m/internal/x\"\n)\nvar _ = fmt.Sprint\n")
	writeGo(t, dir, "a_test.go", "package tmp\nimport \"example.com/m/internal/y\"\n")
	writeGo(t, dir, "notes.txt", "import \"example.com/m/internal/z\"")
	if err := os.Mkdir(filepath.Join(dir, "sub.go"), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || !strings.HasPrefix(viols[0], "example.com/m/internal/x") {
		t.Fatalf("unexpected violations %v", viols)
	}
}

func TestDirectImportViolationsErrors(t *testing.T) {
	if _, err := directImportViolations(filepath.Join(t.TempDir(), "missing"), InternalImportForbidden); err == nil {
		t.Fatalf("expected read error")
	}
	dir := t.TempDir()
	writeGo(t, dir, "broken.go", "package")
	if _, err := directImportViolations(dir, InternalImportForbidden); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFailIfViolations(t *testing.T) {
	rec := &recordingFatal{}
	failIfViolations(rec, "none", nil)
	if rec.msg != "" {
		t.Fatalf("unexpected failure %q", rec.msg)
	}
	failIfViolations(rec, "layering", []string{"x (in a.go)"})
	if !strings.Contains(rec.msg, "layering") || !strings.Contains(rec.msg, "x (in a.go)") {
		t.Fatalf("unexpected message %q", rec.msg)
	}
}

func TestAssertNoDirectImportsPasses(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "ok.go", "package tmp\nimport \"fmt\"\nvar _ = fmt.Sprint\n")
	AssertNoDirectImports(t, dir, InternalImportForbidden, "none")
}
