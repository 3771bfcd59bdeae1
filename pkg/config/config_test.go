package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func (s *sample) Validate() error {
	if s.Count < 0 {
		return errors.New("count must not be negative")
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("RAIDO_TEST_NAME", "from-env")
	p := writeConfig(t, "name: ${RAIDO_TEST_NAME}\ncount: 3\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "from-env" || s.Count != 3 {
		t.Errorf("loaded %+v", s)
	}
}

func TestLoadValidates(t *testing.T) {
	p := writeConfig(t, "count: -1\n")
	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestLoadOptional(t *testing.T) {
	s := sample{Name: "default", Count: 1}
	read, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if err != nil || read {
		t.Fatalf("missing file: read=%v err=%v", read, err)
	}
	if s.Name != "default" {
		t.Errorf("defaults changed: %+v", s)
	}

	p := writeConfig(t, "count: 7\n")
	read, err = LoadOptional(p, &s)
	if err != nil || !read {
		t.Fatalf("present file: read=%v err=%v", read, err)
	}
	if s.Name != "default" || s.Count != 7 {
		t.Errorf("merged %+v", s)
	}
}

func TestLoadOptionalBadYAML(t *testing.T) {
	p := writeConfig(t, "name: [unterminated\n")
	var s sample
	if _, err := LoadOptional(p, &s); err == nil {
		t.Fatal("bad YAML should fail")
	}
}
