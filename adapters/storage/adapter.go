// Package storage keeps a history of propagation runs.
// Supports multiple backends: memory, file (JSON) and SQLite.
package storage

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"beliefgraph/core/determinism"
	"beliefgraph/core/graph"
	"beliefgraph/internal/errors"
)

// Backend is a storage backend type
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
)

// Store is the storage interface
type Store interface {
	// Save stores a run, assigning its ID and timestamp when missing
	Save(ctx context.Context, run *Run) error

	// Get retrieves a run by ID
	Get(ctx context.Context, id string) (*Run, error)

	// List returns runs newest first
	List(ctx context.Context, filter *ListFilter) ([]*Run, error)

	// Delete removes a run
	Delete(ctx context.Context, id string) error

	// GetLatest gets the latest run for a graph
	GetLatest(ctx context.Context, graphName string) (*Run, error)

	// Close closes the store
	Close() error
}

// Run is one stored propagation result
type Run struct {
	// ID is unique identifier
	ID string `json:"id"`

	// GraphName groups runs of the same definition
	GraphName string `json:"graph_name"`

	// Mode is lite or heavy
	Mode string `json:"mode"`

	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
	FinalDelta float64 `json:"final_delta"`

	// Probabilities holds every node that ended with a value
	Probabilities map[string]float64 `json:"probabilities"`

	// InputHash is the content hash of the definition file
	InputHash string `json:"input_hash"`

	// CreatedAt timestamp
	CreatedAt time.Time `json:"created_at"`

	// Metadata
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListFilter filters run listing
type ListFilter struct {
	GraphName string
	Mode      string
	Since     time.Time
	Until     time.Time
	Limit     int
	Offset    int
}

// NodeChange is the difference for one node between two runs.
// Old or New is absent when the node had no value in that run.
type NodeChange struct {
	NodeID string         `json:"node_id"`
	Old    graph.Optional `json:"old"`
	New    graph.Optional `json:"new"`
	Delta  graph.Optional `json:"delta"`
}

// CompareResult is a comparison between two runs
type CompareResult struct {
	OldID    string       `json:"old_id"`
	NewID    string       `json:"new_id"`
	Changes  []NodeChange `json:"changes"`
	MaxDelta float64      `json:"max_delta"`

	// SameInput is set when both runs came from identical definition files
	SameInput bool `json:"same_input"`
}

// Compare loads two runs and diffs their probabilities node by node
func Compare(ctx context.Context, s Store, oldID, newID string) (*CompareResult, error) {
	oldRun, err := s.Get(ctx, oldID)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeStorage, err, "failed to get old run %s", oldID)
	}
	newRun, err := s.Get(ctx, newID)
	if err != nil {
		return nil, errors.Wrapf(errors.TypeStorage, err, "failed to get new run %s", newID)
	}
	return Diff(oldRun, newRun), nil
}

// Diff compares two runs already in memory
func Diff(oldRun, newRun *Run) *CompareResult {
	result := &CompareResult{
		OldID:     oldRun.ID,
		NewID:     newRun.ID,
		SameInput: oldRun.InputHash != "" && oldRun.InputHash == newRun.InputHash,
	}

	ids := make(map[string]struct{})
	for id := range oldRun.Probabilities {
		ids[id] = struct{}{}
	}
	for id := range newRun.Probabilities {
		ids[id] = struct{}{}
	}

	for _, id := range determinism.SortedKeys(ids) {
		c := NodeChange{NodeID: id}
		o, hasOld := oldRun.Probabilities[id]
		n, hasNew := newRun.Probabilities[id]
		if hasOld {
			c.Old = graph.Some(o)
		}
		if hasNew {
			c.New = graph.Some(n)
		}
		if hasOld && hasNew {
			c.Delta = graph.Some(n - o)
			result.MaxDelta = math.Max(result.MaxDelta, math.Abs(n-o))
		}
		result.Changes = append(result.Changes, c)
	}
	return result
}

// prepare fills in the ID and timestamp of a run about to be saved
func prepare(run *Run) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}

// applyFilter filters and orders runs newest first
func applyFilter(runs []*Run, filter *ListFilter) []*Run {
	var result []*Run
	for _, run := range runs {
		if filter != nil {
			if filter.GraphName != "" && run.GraphName != filter.GraphName {
				continue
			}
			if filter.Mode != "" && run.Mode != filter.Mode {
				continue
			}
			if !filter.Since.IsZero() && run.CreatedAt.Before(filter.Since) {
				continue
			}
			if !filter.Until.IsZero() && run.CreatedAt.After(filter.Until) {
				continue
			}
		}
		result = append(result, run)
	}

	determinism.SortSlice(result, func(a, b *Run) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if filter != nil {
		if filter.Offset > 0 {
			if filter.Offset >= len(result) {
				return nil
			}
			result = result[filter.Offset:]
		}
		if filter.Limit > 0 && filter.Limit < len(result) {
			result = result[:filter.Limit]
		}
	}
	return result
}

// FileStore is a file-based storage backend: one JSON file per run,
// grouped in a directory per graph.
type FileStore struct {
	basePath string
	mu       sync.RWMutex
}

// NewFileStore creates a file store
func NewFileStore(basePath string) (*FileStore, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, errors.Storage("failed to create storage directory", err)
	}
	return &FileStore{basePath: basePath}, nil
}

func (s *FileStore) Save(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepare(run)

	graphDir := filepath.Join(s.basePath, dirName(run.GraphName))
	if err := os.MkdirAll(graphDir, 0755); err != nil {
		return errors.Storage("failed to create graph directory", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return errors.Storage("failed to marshal run", err)
	}
	if err := os.WriteFile(filepath.Join(graphDir, run.ID+".json"), data, 0644); err != nil {
		return errors.Storage("failed to write run", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path, err := s.find(id)
	if err != nil {
		return nil, err
	}
	return readRun(path)
}

func (s *FileStore) List(ctx context.Context, filter *ListFilter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var runs []*Run
	err := filepath.WalkDir(s.basePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		run, err := readRun(path)
		if err != nil {
			return err
		}
		runs = append(runs, run)
		return nil
	})
	if err != nil {
		return nil, errors.Storage("failed to list runs", err)
	}
	return applyFilter(runs, filter), nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.find(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return errors.Storage("failed to delete run", err)
	}
	return nil
}

func (s *FileStore) GetLatest(ctx context.Context, graphName string) (*Run, error) {
	runs, err := s.List(ctx, &ListFilter{GraphName: graphName, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("run for graph", graphName)
	}
	return runs[0], nil
}

func (s *FileStore) Close() error {
	return nil
}

// find locates a run file by searching every graph directory
func (s *FileStore) find(id string) (string, error) {
	entries, err := os.ReadDir(s.basePath)
	if err != nil {
		return "", errors.Storage("failed to read storage", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(s.basePath, entry.Name(), id+".json")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.NotFound("run", id)
}

func readRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Storage("failed to read run", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, errors.Storage("failed to unmarshal run "+filepath.Base(path), err)
	}
	return &run, nil
}

// dirName maps a graph name to a safe directory name
func dirName(graphName string) string {
	if graphName == "" {
		return "_default"
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' || r == '.' {
			return '_'
		}
		return r
	}, graphName)
}

// MemoryStore is an in-memory storage backend (for testing)
type MemoryStore struct {
	runs map[string]*Run
	mu   sync.RWMutex
}

// NewMemoryStore creates a memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs: make(map[string]*Run),
	}
}

func (s *MemoryStore) Save(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepare(run)
	s.runs[run.ID] = copyRun(run)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, errors.NotFound("run", id)
	}
	return copyRun(run), nil
}

func (s *MemoryStore) List(ctx context.Context, filter *ListFilter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, copyRun(run))
	}
	return applyFilter(runs, filter), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return errors.NotFound("run", id)
	}
	delete(s.runs, id)
	return nil
}

func (s *MemoryStore) GetLatest(ctx context.Context, graphName string) (*Run, error) {
	runs, err := s.List(ctx, &ListFilter{GraphName: graphName, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NotFound("run for graph", graphName)
	}
	return runs[0], nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func copyRun(run *Run) *Run {
	c := *run
	if run.Probabilities != nil {
		c.Probabilities = make(map[string]float64, len(run.Probabilities))
		for k, v := range run.Probabilities {
			c.Probabilities[k] = v
		}
	}
	if run.Metadata != nil {
		c.Metadata = make(map[string]string, len(run.Metadata))
		for k, v := range run.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// StoreFactory creates stores by backend type.
// "path" is the directory for the file backend and the database file for SQLite.
func StoreFactory(backend Backend, config map[string]string) (Store, error) {
	switch backend {
	case BackendFile:
		path := config["path"]
		if path == "" {
			path = ".beliefgraph/runs"
		}
		return NewFileStore(path)
	case BackendSQLite:
		path := config["path"]
		if path == "" {
			path = ".beliefgraph/runs.db"
		}
		return NewSQLiteStore(path)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, errors.NotSupported("storage backend " + string(backend))
	}
}

// Ensure interfaces are implemented
var _ Store = (*FileStore)(nil)
var _ Store = (*MemoryStore)(nil)
var _ Store = (*SQLiteStore)(nil)
var _ io.Closer = (*SQLiteStore)(nil)
