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
	Port  int    `yaml:"port"`
	fails bool
}

func (s *sample) Validate() error {
	if s.fails || s.Port == 0 {
		return errors.New("port required")
	}
	return nil
}

func TestDecodeExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "folio")
	s := sample{Port: 1}
	if err := Decode([]byte("name: ${SAMPLE_NAME}\n"), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Name != "folio" || s.Port != 1 {
		t.Errorf("got %+v", s)
	}
}

func TestDecodeValidates(t *testing.T) {
	var s sample
	err := Decode([]byte("name: x\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "port required") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	s := sample{Port: 80}
	if err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), &s); err != nil {
		t.Fatalf("missing file: %v", err)
	}

	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("port: 81\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := LoadOptional(path, &s); err != nil || s.Port != 81 {
		t.Fatalf("load = %v, port %d", err, s.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	var s sample
	err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}
