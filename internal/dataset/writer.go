package dataset

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// writeRecord persists a record using a smart merge strategy:
// - preserves manually-added keys not produced by the pipeline
// - preserves key ordering from the existing file
// - replaces the file atomically (temp file + rename), so a reader opening
//   the file never sees a partial record
func (s *FileStore) writeRecord(rec *ModelRecord) error {
	path := s.recordPath(rec.ModelID)

	existingData, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		out, err := yaml.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return atomicWrite(path, out)
	} else if err != nil {
		return fmt.Errorf("reading existing record: %w", err)
	}

	// Parse existing as a node tree to keep ordering and unknown keys.
	var existingDoc yaml.Node
	if err := yaml.Unmarshal(existingData, &existingDoc); err != nil {
		return fmt.Errorf("parsing existing record: %w", err)
	}

	candidateData, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	var candidateDoc yaml.Node
	if err := yaml.Unmarshal(candidateData, &candidateDoc); err != nil {
		return fmt.Errorf("parsing marshaled record: %w", err)
	}

	merged := mergeNodes(&existingDoc, &candidateDoc)

	out, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("marshaling merged record: %w", err)
	}

	return atomicWrite(path, out)
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".record-*.yaml")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing record file: %w", err)
	}
	return nil
}

// mergeNodes overlays src mapping keys onto dst mapping, preserving dst
// ordering and any keys in dst not present in src.
func mergeNodes(dst, src *yaml.Node) *yaml.Node {
	if dst.Kind == yaml.DocumentNode && len(dst.Content) > 0 {
		dst = dst.Content[0]
	}
	if src.Kind == yaml.DocumentNode && len(src.Content) > 0 {
		src = src.Content[0]
	}

	if dst.Kind != yaml.MappingNode || src.Kind != yaml.MappingNode {
		return src
	}

	srcMap := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(src.Content); i += 2 {
		srcMap[src.Content[i].Value] = src.Content[i+1]
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(dst.Content); i += 2 {
		key := dst.Content[i].Value
		if srcVal, ok := srcMap[key]; ok {
			dst.Content[i+1] = srcVal
			seen[key] = true
		}
	}

	for i := 0; i+1 < len(src.Content); i += 2 {
		key := src.Content[i].Value
		if !seen[key] {
			dst.Content = append(dst.Content, src.Content[i], src.Content[i+1])
		}
	}

	return dst
}
