package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestBumpSemver(t *testing.T) {
	tests := []struct {
		version string
		hasNew  bool
		want    string
	}{
		{"0.1.0", true, "0.2.0"},
		{"0.1.0", false, "0.1.1"},
		{"1.4.7", true, "1.5.0"},
		{"1.4.7", false, "1.4.8"},
	}
	for _, tt := range tests {
		got, err := bumpSemver(tt.version, tt.hasNew)
		if err != nil {
			t.Errorf("bumpSemver(%s, %v): %v", tt.version, tt.hasNew, err)
			continue
		}
		if got != tt.want {
			t.Errorf("bumpSemver(%s, %v) = %s, want %s", tt.version, tt.hasNew, got, tt.want)
		}
	}

	invalid := []string{"not-semver", "v1.2.3", "1.two.3", "1.-2.3", "1.2"}
	for _, version := range invalid {
		if _, err := bumpSemver(version, false); err == nil {
			t.Errorf("expected error for invalid version %q", version)
		}
	}
}

func TestVersionDefaultsForFreshDataset(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	version, err := store.Version()
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if version != "0.1.0" {
		t.Errorf("fresh dataset version = %s, want 0.1.0", version)
	}
}

func TestBumpVersionPersists(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	got, err := store.BumpVersion(true)
	if err != nil {
		t.Fatalf("BumpVersion: %v", err)
	}
	if got != "0.2.0" {
		t.Errorf("BumpVersion = %s, want 0.2.0", got)
	}

	data, err := os.ReadFile(filepath.Join(dir, "version.txt"))
	if err != nil {
		t.Fatalf("reading version.txt: %v", err)
	}
	if strings.TrimSpace(string(data)) != "0.2.0" {
		t.Errorf("version.txt = %q, want 0.2.0", data)
	}

	got, err = store.BumpVersion(false)
	if err != nil {
		t.Fatalf("second BumpVersion: %v", err)
	}
	if got != "0.2.1" {
		t.Errorf("second BumpVersion = %s, want 0.2.1", got)
	}
}

func TestWriteManifest(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := store.Upsert(testRecord(t, "amazon-nova")); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	unpriced := testRecord(t, "free-model")
	unpriced.Pricing = nil
	if err := store.Upsert(unpriced); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if _, err := store.BumpVersion(true); err != nil {
		t.Fatalf("BumpVersion: %v", err)
	}
	if err := store.WriteManifest(); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "manifest.yaml"))
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Model Dataset Manifest") {
		t.Error("manifest missing header comment")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("parsing manifest: %v", err)
	}
	if m.Version != "0.2.0" {
		t.Errorf("manifest version = %s, want 0.2.0", m.Version)
	}
	if m.Stats.TotalModels != 2 || m.Stats.PricedModels != 1 {
		t.Errorf("stats = %+v, want 2 total / 1 priced", m.Stats)
	}
	if len(m.Models) != 2 {
		t.Fatalf("got %d manifest models, want 2", len(m.Models))
	}
	if m.Models[0].ModelID != "amazon-nova" || m.Models[0].File != filepath.Join("models", "amazon-nova.yaml") {
		t.Errorf("manifest model[0] = %+v", m.Models[0])
	}
}
