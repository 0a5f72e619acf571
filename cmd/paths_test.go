package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestGetDataDirOverride(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	t.Setenv(dataDirEnvVar, dir)

	got, err := getDataDir()
	if err != nil {
		t.Fatalf("getDataDir() failed: %v", err)
	}
	if got != dir {
		t.Fatalf("expected %s, got %s", dir, got)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("data directory was not created: %v", err)
	}
}

func TestGetDataDirDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv(dataDirEnvVar, "")
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", "")

	got, err := getDataDir()
	if err != nil {
		t.Fatalf("getDataDir() failed: %v", err)
	}
	if !strings.Contains(got, appDirName) {
		t.Fatalf("expected data directory to contain %q, got %s", appDirName, got)
	}
	if runtime.GOOS == "linux" {
		want := filepath.Join(home, ".local", "share", appDirName)
		if got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}

func TestGetDataDirXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on Linux")
	}
	xdg := t.TempDir()
	t.Setenv(dataDirEnvVar, "")
	t.Setenv("XDG_DATA_HOME", xdg)

	got, err := getDataDir()
	if err != nil {
		t.Fatalf("getDataDir() failed: %v", err)
	}
	if want := filepath.Join(xdg, appDirName); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestDefaultPaths(t *testing.T) {
	if got := defaultCacheDir("/data"); got != filepath.Join("/data", "cache") {
		t.Fatalf("unexpected cache dir %s", got)
	}
	if got := defaultAuditPath("/data"); got != filepath.Join("/data", "audit.jsonl") {
		t.Fatalf("unexpected audit path %s", got)
	}
}
