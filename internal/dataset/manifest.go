package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ManifestModel describes one record file in the manifest.
type ManifestModel struct {
	ModelID    string `yaml:"model_id"`
	File       string `yaml:"file"`
	SourceHash string `yaml:"source_hash,omitempty"`
}

// ManifestStats holds aggregate counts.
type ManifestStats struct {
	TotalModels  int `yaml:"total_models"`
	PricedModels int `yaml:"priced_models"`
}

// Manifest represents the manifest.yaml written at the dataset root. The
// static-site build consumes it to decide what to render.
type Manifest struct {
	Version       string          `yaml:"version"`
	GeneratedAt   string          `yaml:"generated_at"`
	SchemaVersion string          `yaml:"schema_version"`
	Models        []ManifestModel `yaml:"models"`
	Stats         ManifestStats   `yaml:"stats"`
}

// Version reads the dataset version from version.txt, defaulting to 0.1.0
// for a fresh dataset.
func (s *FileStore) Version() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "version.txt"))
	if os.IsNotExist(err) {
		return "0.1.0", nil
	} else if err != nil {
		return "", fmt.Errorf("reading version.txt: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// BumpVersion increments the dataset version: MINOR when new models were
// published, PATCH for updates to existing records only.
func (s *FileStore) BumpVersion(hasNew bool) (string, error) {
	version, err := s.Version()
	if err != nil {
		return "", err
	}

	next, err := bumpSemver(version, hasNew)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(s.root, "version.txt"), []byte(next+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("writing version.txt: %w", err)
	}
	return next, nil
}

func bumpSemver(version string, hasNew bool) (string, error) {
	parts := strings.Split(version, ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("invalid semver: %s", version)
	}

	nums := make([]int, 3)
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return "", fmt.Errorf("invalid semver: %s", version)
		}
		nums[i] = n
	}
	major, minor, patch := nums[0], nums[1], nums[2]

	if hasNew {
		minor++
		patch = 0
	} else {
		patch++
	}

	return fmt.Sprintf("%d.%d.%d", major, minor, patch), nil
}

// WriteManifest regenerates manifest.yaml from the current index.
func (s *FileStore) WriteManifest() error {
	version, err := s.Version()
	if err != nil {
		return err
	}

	records := s.List()

	var (
		models []ManifestModel
		priced int
	)
	for _, rec := range records {
		rel, err := filepath.Rel(s.root, s.recordPath(rec.ModelID))
		if err != nil {
			rel = s.recordPath(rec.ModelID)
		}
		models = append(models, ManifestModel{
			ModelID:    rec.ModelID,
			File:       rel,
			SourceHash: rec.SourceHash,
		})
		if len(rec.Pricing) > 0 {
			priced++
		}
	}

	manifest := Manifest{
		Version:       version,
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		SchemaVersion: "1.0",
		Models:        models,
		Stats: ManifestStats{
			TotalModels:  len(records),
			PricedModels: priced,
		},
	}

	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}

	header := "# Model Dataset Manifest\n# Auto-generated - DO NOT EDIT MANUALLY\n# Run: modelwatch sync to regenerate\n\n"
	return atomicWrite(filepath.Join(s.root, "manifest.yaml"), []byte(header+string(data)))
}
