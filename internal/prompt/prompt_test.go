package prompt

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRender(t *testing.T) {
	t.Parallel()
	got := Render("Hello {{NAME}}, count={{COUNT}}, keep {{unknown}} and {{MISSING}}.",
		map[string]any{"NAME": "world", "COUNT": 3})
	want := "Hello world, count=3, keep {{unknown}} and {{MISSING}}."
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestResolvePrefersOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mutate.md"), []byte("custom {{SEED}}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lib := NewLibrary(dir)

	if got := lib.Resolve("mutate", "default"); got != "custom {{SEED}}" {
		t.Errorf("Resolve = %q", got)
	}
	if got := lib.Resolve("refine", "default"); got != "default" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestOverrideIgnoresEmptyFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "mutate.md"), []byte("  \n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := NewLibrary(dir).Override("mutate"); ok {
		t.Error("blank override should be ignored")
	}
}

func TestOverrideNilSafe(t *testing.T) {
	t.Parallel()
	var lib *Library
	if got := lib.Resolve("x", "fb"); got != "fb" {
		t.Errorf("Resolve = %q", got)
	}
}
