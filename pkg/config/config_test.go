package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type sample struct {
	Name  string        `yaml:"name" toml:"name"`
	Delay time.Duration `yaml:"delay" toml:"delay"`
	Tags  []string      `yaml:"tags" toml:"tags"`
}

func (s *sample) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "from-env")
	path := writeFile(t, "app.yaml", "name: ${SAMPLE_NAME}\ndelay: 800ms\ntags: [a, b]\n")

	var got sample
	if err := Load(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "from-env" || got.Delay != 800*time.Millisecond || len(got.Tags) != 2 {
		t.Errorf("got %+v", got)
	}
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "app.toml", "name = \"toml\"\ndelay = \"2s\"\ntags = [\"x\"]\n")

	var got sample
	if err := Load(path, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "toml" || got.Delay != 2*time.Second || len(got.Tags) != 1 {
		t.Errorf("got %+v", got)
	}
}

func TestLoad_ValidationFails(t *testing.T) {
	path := writeFile(t, "app.yaml", "delay: 1s\n")

	var got sample
	err := Load(path, &got)
	if err == nil || !strings.Contains(err.Error(), "config validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_ParseError(t *testing.T) {
	path := writeFile(t, "app.toml", "name = \n")

	var got sample
	if err := Load(path, &got); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	def := writeFile(t, "default.yaml", "name: fallback\n")

	var got sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), def, &got); err != nil {
		t.Fatal(err)
	}
	if got.Name != "fallback" {
		t.Errorf("name = %q", got.Name)
	}

	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "missing.yaml"), "", &got); err == nil {
		t.Error("expected error without a default file")
	}
}
