package dataset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrStaleRecord is returned by Upsert when a write would move a record's
// last_verified_at backwards. The orchestrator surfaces it as a per-key
// write failure; it never aborts the run.
var ErrStaleRecord = errors.New("stale record: last_verified_at would move backwards")

// Store is the durable collection of published model records. The sync
// orchestrator is the sole writer; the cost calculator and any rendering
// layer read through Get and List.
type Store interface {
	// Get returns the current record for a model, or false if none is published.
	Get(modelID string) (*ModelRecord, bool)
	// List returns all published records sorted by model ID.
	List() []*ModelRecord
	// Upsert atomically replaces the current record for rec.ModelID.
	// Readers never observe a half-written record.
	Upsert(rec *ModelRecord) error
}

// FileStore keeps one YAML document per model under <root>/models, with an
// in-memory index for lock-free concurrent reads. Writes for a single model
// ID are serialized; writes for different IDs may interleave freely.
type FileStore struct {
	root string

	mu      sync.RWMutex
	records map[string]*ModelRecord

	keyMu sync.Mutex
	keys  map[string]*sync.Mutex
}

// Open loads the dataset at root, creating the directory layout if needed.
func Open(root string) (*FileStore, error) {
	modelsDir := filepath.Join(root, "models")
	if err := os.MkdirAll(modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating models dir: %w", err)
	}

	s := &FileStore{
		root:    root,
		records: make(map[string]*ModelRecord),
		keys:    make(map[string]*sync.Mutex),
	}

	entries, err := os.ReadDir(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("reading models dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(modelsDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		var rec ModelRecord
		if err := yaml.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", entry.Name(), err)
		}
		if rec.ModelID == "" {
			return nil, fmt.Errorf("parsing %s: missing model_id", entry.Name())
		}
		s.records[rec.ModelID] = &rec
	}

	return s, nil
}

// Root returns the dataset root directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) Get(modelID string) (*ModelRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[modelID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

func (s *FileStore) List() []*ModelRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*ModelRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

func (s *FileStore) Upsert(rec *ModelRecord) error {
	if rec == nil || rec.ModelID == "" {
		return fmt.Errorf("upsert: record has no model_id")
	}

	lock := s.lockFor(rec.ModelID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	existing := s.records[rec.ModelID]
	s.mu.RUnlock()

	if existing != nil && rec.LastVerifiedAt.Before(existing.LastVerifiedAt) {
		return fmt.Errorf("upsert %s: %w", rec.ModelID, ErrStaleRecord)
	}

	if err := s.writeRecord(rec); err != nil {
		return fmt.Errorf("upsert %s: %w", rec.ModelID, err)
	}

	s.mu.Lock()
	s.records[rec.ModelID] = rec.Clone()
	s.mu.Unlock()

	return nil
}

// lockFor returns the per-key write lock, creating it on first use.
func (s *FileStore) lockFor(modelID string) *sync.Mutex {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()
	lock, ok := s.keys[modelID]
	if !ok {
		lock = &sync.Mutex{}
		s.keys[modelID] = lock
	}
	return lock
}

// recordPath maps a model ID to its file. IDs may be namespaced
// (e.g. "openai/gpt-4o"); path separators are flattened so every record
// stays directly under models/.
func (s *FileStore) recordPath(modelID string) string {
	name := strings.ReplaceAll(modelID, "/", "--")
	return filepath.Join(s.root, "models", name+".yaml")
}
