package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCacheRootEnvOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(CacheDirEnv, dir)

	got, err := CacheRoot(filepath.Join(t.TempDir(), "ignored"))
	if err != nil {
		t.Fatalf("CacheRoot: %v", err)
	}
	if got != dir {
		t.Fatalf("expected env override %s, got %s", dir, got)
	}
}

func TestCacheRootConfigured(t *testing.T) {
	t.Setenv(CacheDirEnv, "")
	dir := filepath.Join(t.TempDir(), "servers")

	got, err := CacheRoot(dir)
	if err != nil {
		t.Fatalf("CacheRoot: %v", err)
	}
	if got != dir {
		t.Fatalf("expected configured dir %s, got %s", dir, got)
	}
}

func TestCacheRootDefault(t *testing.T) {
	t.Setenv(CacheDirEnv, "")
	got, err := CacheRoot("")
	if err != nil {
		t.Fatalf("CacheRoot: %v", err)
	}
	if !filepath.IsAbs(got) {
		t.Fatalf("expected absolute path, got %s", got)
	}
	if filepath.Base(got) != "servers" {
		t.Fatalf("expected default to end in servers, got %s", got)
	}
}

func TestResolveUsesFlag(t *testing.T) {
	cache := t.TempDir()
	t.Setenv(CacheDirEnv, cache)
	cfg := filepath.Join(t.TempDir(), "lsphost.toml")

	layout, err := Resolve(cfg, "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if layout.ConfigFile != cfg {
		t.Fatalf("expected config %s, got %s", cfg, layout.ConfigFile)
	}
	if layout.CacheRoot != cache {
		t.Fatalf("expected cache %s, got %s", cache, layout.CacheRoot)
	}
	if layout.LogsDir != filepath.Join(filepath.Dir(cache), "logs") {
		t.Fatalf("unexpected logs dir %s", layout.LogsDir)
	}
}

func TestFileAndDirExists(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if ok, err := FileExists(file); err != nil || !ok {
		t.Fatalf("FileExists(file) = %v, %v", ok, err)
	}
	if ok, err := FileExists(dir); err != nil || ok {
		t.Fatalf("FileExists(dir) = %v, %v", ok, err)
	}
	if ok, err := DirExists(dir); err != nil || !ok {
		t.Fatalf("DirExists(dir) = %v, %v", ok, err)
	}
	if ok, err := DirExists(filepath.Join(dir, "missing")); err != nil || ok {
		t.Fatalf("DirExists(missing) = %v, %v", ok, err)
	}
}
