package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"taxonomy/internal/taxonomy"
)

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestRunDryRunWithMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("APP_ENV", "testing")
	path := writeSeed(t, `
categories:
  - name: Jewelry
  - name: Rings
    parent: jewelry
`)

	var out bytes.Buffer
	if err := run([]string{"--file", path, "--dry-run"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	var report taxonomy.SeedReport
	if err := json.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode report %q: %v", out.String(), err)
	}
	if !report.DryRun || report.Created != 2 || report.Linked != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunErrors(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no file", nil, "--file is required"},
		{"missing file", []string{"--file", filepath.Join(t.TempDir(), "nope.yaml")}, "open seed file"},
		{"empty file", []string{"--file", writeSeed(t, "categories: []\n")}, "no categories"},
		{"unknown flag", []string{"--bogus"}, "bogus"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}
