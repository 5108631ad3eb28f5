package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	body := fmt.Sprintf(`namespace: cli
tagging: true
log:
  level: error
  format: json
drivers:
  - type: file
    dir: %s
`, filepath.Join(dir, "data"))
	path := filepath.Join(dir, "cachepool.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func TestSetGetDelete(t *testing.T) {
	cfg := writeConfig(t)

	if _, err := execute(t, "--config", cfg, "set", "user.1", "Ada", "--ttl", "5m", "--tag", "users"); err != nil {
		t.Fatalf("set: %v", err)
	}
	out, err := execute(t, "--config", cfg, "get", "user.1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "Ada" {
		t.Fatalf("get = %q, want Ada", out)
	}
	out, err = execute(t, "--config", cfg, "tags", "user.1")
	if err != nil || out != "users" {
		t.Fatalf("tags = %q, %v", out, err)
	}
	if _, err := execute(t, "--config", cfg, "delete", "user.1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "get", "user.1"); err == nil {
		t.Fatal("get after delete should fail")
	}
}

func TestInvalidateTagAndNamespace(t *testing.T) {
	cfg := writeConfig(t)

	for _, k := range []string{"a", "b"} {
		if _, err := execute(t, "--config", cfg, "set", k, "v", "--tag", "grp"); err != nil {
			t.Fatalf("set %s: %v", k, err)
		}
	}
	if _, err := execute(t, "--config", cfg, "set", "c", "v"); err != nil {
		t.Fatalf("set c: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "invalidate-tag", "grp"); err != nil {
		t.Fatalf("invalidate-tag: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "get", "a"); err == nil {
		t.Fatal("a should be gone")
	}
	if _, err := execute(t, "--config", cfg, "get", "c"); err != nil {
		t.Fatalf("c should survive: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "invalidate"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := execute(t, "--config", cfg, "get", "c"); err == nil {
		t.Fatal("c should be invalidated with its namespace")
	}
}

func TestPurgeAndClear(t *testing.T) {
	cfg := writeConfig(t)
	if _, err := execute(t, "--config", cfg, "set", "k", "v", "--ttl", "0"); err != nil {
		t.Fatalf("set: %v", err)
	}
	for _, c := range []string{"purge", "clear"} {
		out, err := execute(t, "--config", cfg, c)
		if err != nil || out != "OK" {
			t.Fatalf("%s = %q, %v", c, out, err)
		}
	}
	if _, err := execute(t, "--config", cfg, "get", "k"); err == nil {
		t.Fatal("clear should remove k")
	}
}

func TestRejectsInvalidKey(t *testing.T) {
	if _, err := execute(t, "set", "a:b", "v"); err == nil {
		t.Fatal("reserved characters must be rejected")
	}
}
