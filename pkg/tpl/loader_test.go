package tpl

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestDefaultFilesystemLoader(t *testing.T) {
	m, root := setupManager(t)

	loaders, err := m.Loaders("tpl")
	if err != nil {
		t.Fatalf("Loaders failed: %v", err)
	}
	if len(loaders) != 1 {
		t.Fatalf("got %d loaders, want 1", len(loaders))
	}
	fsl, ok := loaders[0].(*FileSystemLoader)
	if !ok {
		t.Fatalf("default loader is %T, want *FileSystemLoader", loaders[0])
	}
	if !slices.Equal(fsl.rootdirs, []string{root}) {
		t.Errorf("loader roots = %v, want [%s]", fsl.rootdirs, root)
	}
}

func TestNoRootsNoDefaultLoader(t *testing.T) {
	m := NewManager(nil)
	loaders, err := m.Loaders("tpl")
	if err != nil {
		t.Fatalf("Loaders failed: %v", err)
	}
	if len(loaders) != 0 {
		t.Fatalf("got %d loaders without root dirs, want 0", len(loaders))
	}
}

func TestLoaderKeyRejectsSeparator(t *testing.T) {
	m, _ := setupManager(t)
	if _, err := m.Loaders("sub/tpl"); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}

func TestPrependedLoaderWins(t *testing.T) {
	m, _ := setupManager(t)
	loader := &mockLoader{contents: map[string]string{"a.tpl": "foo"}}
	if err := m.PrependLoader("tpl", loader); err != nil {
		t.Fatalf("PrependLoader failed: %v", err)
	}
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustFinalize(t, m)

	if loader.loadCalls != 0 {
		t.Fatal("loader consulted before any render")
	}
	got, err := m.Render("a.tpl", nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "foo" {
		t.Errorf("Render = %q, want %q", got, "foo")
	}
	if loader.loadCalls != 1 {
		t.Errorf("loader invoked %d times, want 1", loader.loadCalls)
	}
}

func TestFilesystemFallback(t *testing.T) {
	m, _ := setupManager(t)
	loader := &mockLoader{failLoad: true}
	if err := m.PrependLoader("tpl", loader); err != nil {
		t.Fatalf("PrependLoader failed: %v", err)
	}
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustFinalize(t, m)

	got, err := m.Render("a.tpl", nil)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "a\n" {
		t.Errorf("Render = %q, want %q", got, "a\n")
	}
}

func TestDisablingFilesystemLoader(t *testing.T) {
	m, _ := setupManager(t)
	loader := &mockLoader{failLoad: true}
	if err := m.SetLoaders("tpl", loader); err != nil {
		t.Fatalf("SetLoaders failed: %v", err)
	}
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustFinalize(t, m)

	if _, err := m.Render("a.tpl", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoaderKeysLockedAfterFinalize(t *testing.T) {
	m, _ := setupManager(t)
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustFinalize(t, m)

	loader := &mockLoader{contents: map[string]string{"a.zzz": "smuggled"}}
	if err := m.PrependLoader("zzz", loader); !errors.Is(err, ErrLocked) {
		t.Errorf("PrependLoader for a new key: got %v, want ErrLocked", err)
	}
	if err := m.AppendLoader("zzz", loader); !errors.Is(err, ErrLocked) {
		t.Errorf("AppendLoader for a new key: got %v, want ErrLocked", err)
	}
	if err := m.SetLoaders("zzz", loader); !errors.Is(err, ErrLocked) {
		t.Errorf("SetLoaders for a new key: got %v, want ErrLocked", err)
	}
	if _, err := m.Loaders("zzz"); !errors.Is(err, ErrLocked) {
		t.Errorf("Loaders for a new key: got %v, want ErrLocked", err)
	}
	if _, err := m.Load("a.zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load through an undeclared key: got %v, want ErrNotFound", err)
	}

	// Lists of declared keys stay replaceable.
	if err := m.SetLoaders("tpl", &mockLoader{}); err != nil {
		t.Errorf("SetLoaders for a declared key failed: %v", err)
	}
	if err := m.AppendLoader("tpl", &mockLoader{}); err != nil {
		t.Errorf("AppendLoader for a declared key failed: %v", err)
	}
}

func TestFilesystemLoaderTraversal(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "templates")
	if err := os.Mkdir(root, 0755); err != nil {
		t.Fatalf("failed to create root: %v", err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.tpl"), []byte("secret"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	loader := NewFileSystemLoader([]string{root}, "tpl")
	if _, err := loader.Load("../secret.tpl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("traversal outside the root must be NotFound, got %v", err)
	}
	if loader.IsValid("../secret.tpl") {
		t.Error("IsValid accepted a path outside the root")
	}
}

func TestFilesystemLoaderShadowing(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFixture(t, first, "page.tpl", "first")
	writeFixture(t, second, "page.tpl", "second")
	writeFixture(t, second, "only.tpl", "second only")

	loader := NewFileSystemLoader([]string{first, second}, "tpl")

	src, err := loader.Load("page.tpl")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src.Location != filepath.Join(first, "page.tpl") {
		t.Errorf("Load resolved %q, want the first root to shadow", src.Location)
	}

	var paths []string
	for p := range loader.IterPaths() {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	if !slices.Equal(paths, []string{"only.tpl", "page.tpl"}) {
		t.Errorf("IterPaths = %v", paths)
	}
}

func TestChainLoader(t *testing.T) {
	first := &mockLoader{contents: map[string]string{"a.tpl": "from first"}}
	second := &mockLoader{contents: map[string]string{"b.tpl": "from second"}}
	chain := NewChainLoader(first, second)

	src, err := chain.Load("b.tpl")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src.Content != "from second" {
		t.Errorf("Load = %q", src.Content)
	}
	if _, err := chain.Load("c.tpl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	var paths []string
	for p := range chain.IterPaths() {
		paths = append(paths, p)
	}
	if !slices.Equal(paths, []string{"a.tpl", "b.tpl"}) {
		t.Errorf("IterPaths = %v", paths)
	}
	if !chain.IsValid("a.tpl") || chain.IsValid("c.tpl") {
		t.Error("IsValid gave wrong answers")
	}
}

func TestPrefixLoader(t *testing.T) {
	inner := &mockLoader{contents: map[string]string{"base.tpl": "content"}}
	loader := NewPrefixLoader("lib/", inner)

	src, err := loader.Load("lib/base.tpl")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if src.Content != "content" {
		t.Errorf("Load = %q", src.Content)
	}
	if _, err := loader.Load("base.tpl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unprefixed path must be NotFound, got %v", err)
	}

	var paths []string
	for p := range loader.IterPaths() {
		paths = append(paths, p)
	}
	if !slices.Equal(paths, []string{"lib/base.tpl"}) {
		t.Errorf("IterPaths = %v", paths)
	}
	if !loader.IsValid("lib/base.tpl") || loader.IsValid("base.tpl") {
		t.Error("IsValid gave wrong answers")
	}
}

func TestLoaderHashRoundTrip(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "a.tpl", "a\n")
	loader := NewFileSystemLoader([]string{root}, "tpl")

	first, err := loader.Hash("a.tpl")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	second, err := loader.Hash("a.tpl")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first != second {
		t.Errorf("tokens differ for unchanged content: %q vs %q", first, second)
	}

	writeFixture(t, root, "a.tpl", "A\n")
	changed, err := loader.Hash("a.tpl")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if changed == first {
		t.Error("token unchanged after content change")
	}

	if _, err := loader.Hash("gone.tpl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHashInlineContent(t *testing.T) {
	loader := &mockLoader{contents: map[string]string{"a.tpl": "inline"}}
	first, err := loader.Hash("a.tpl")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	loader.contents["a.tpl"] = "inline changed"
	second, err := loader.Hash("a.tpl")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if first == second {
		t.Error("token unchanged after inline content change")
	}
}
