package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/stemsi/exstem-cbt/internal/model"
)

// FileStore is a MemoryStore persisted to a YAML catalog file. Results are
// written back to the file on every submission.
type FileStore struct {
	*MemoryStore
	path string
	// saveMu orders writes to the file.
	saveMu sync.Mutex
}

// OpenFileStore loads path into a new FileStore.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := LoadCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{MemoryStore: NewMemoryStore(f), path: path}, nil
}

// SubmitResult upserts in memory and saves the file. If the save fails the
// in-memory change is rolled back and the error returned.
func (s *FileStore) SubmitResult(_ context.Context, res model.Result) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	undo := s.upsertResultLocked(res)
	s.mu.Unlock()

	if err := s.snapshot().Save(s.path); err != nil {
		s.mu.Lock()
		undo()
		s.mu.Unlock()
		return fmt.Errorf("persist result: %w", err)
	}
	return nil
}

// UpdateScore overwrites a score and saves the file.
func (s *FileStore) UpdateScore(ctx context.Context, key model.ResultKey, score int) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.MemoryStore.UpdateScore(ctx, key, score); err != nil {
		return err
	}
	return s.snapshot().Save(s.path)
}
