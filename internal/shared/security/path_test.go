package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveWithin(t *testing.T) {
	base := t.TempDir()

	tests := []struct {
		name    string
		elems   []string
		want    string
		wantErr bool
	}{
		{"single file", []string{"entry.json"}, filepath.Join(base, "entry.json"), false},
		{"nested", []string{"a", "b", "file.txt"}, filepath.Join(base, "a", "b", "file.txt"), false},
		{"safe dot-dot in middle", []string{"a", "b", "..", "c"}, filepath.Join(base, "a", "c"), false},
		{"absolute element stays inside", []string{"/etc/passwd"}, filepath.Join(base, "etc", "passwd"), false},
		{"no elements", nil, base, false},
		{"escape", []string{"..", "outside"}, "", true},
		{"double escape", []string{"a", "..", "..", "etc"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(base, tt.elems...)
			if tt.wantErr {
				if !errors.Is(err, ErrPathEscape) {
					t.Errorf("expected ErrPathEscape, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestResolveWithinEmptyBase(t *testing.T) {
	if _, err := ResolveWithin("", "file"); err == nil {
		t.Fatal("expected error for empty base directory")
	}
}

func TestCleanOutputPath(t *testing.T) {
	dir := t.TempDir()

	got, err := CleanOutputPath(filepath.Join(dir, "sub", "..", "report.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != filepath.Join(dir, "report.json") {
		t.Errorf("expected cleaned path, got %s", got)
	}

	for _, bad := range []string{"", "   ", "/", dir} {
		if _, err := CleanOutputPath(bad); !errors.Is(err, ErrInvalidOutputPath) {
			t.Errorf("%q: expected ErrInvalidOutputPath, got %v", bad, err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "existing.html"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := CleanOutputPath(filepath.Join(dir, "existing.html")); err != nil {
		t.Errorf("existing files may be overwritten, got %v", err)
	}
}
