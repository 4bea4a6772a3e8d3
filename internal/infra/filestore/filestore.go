// Package filestore implements domain.Store in memory, optionally backed by
// a single JSON snapshot file. Every Atomic call works on an overlay that is
// merged, and for the file variant written out with write-then-rename, only
// when the callback succeeds.
package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/tutu-network/econ/internal/domain"
)

// snapshot is the persisted document.
type snapshot struct {
	Accounts map[string]domain.Account       `json:"accounts"`
	Clans    map[string]domain.Clan          `json:"clans"`
	Records  []domain.TransactionRecord      `json:"records"`
	Requests map[string]domain.RequestRecord `json:"requests"`
}

func newSnapshot() *snapshot {
	return &snapshot{
		Accounts: make(map[string]domain.Account),
		Clans:    make(map[string]domain.Clan),
		Requests: make(map[string]domain.RequestRecord),
	}
}

// Store is a mutex-guarded snapshot. Atomic calls are fully serialized.
type Store struct {
	mu   sync.Mutex
	path string // empty = memory only
	data *snapshot
}

// NewMemory returns a store that never touches disk.
func NewMemory() *Store {
	return &Store{data: newSnapshot()}
}

// Open loads (or starts) the JSON snapshot at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty snapshot path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	s := &Store{path: path, data: newSnapshot()}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := json.Unmarshal(raw, s.data); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", filepath.Base(path), err)
	}
	if s.data.Accounts == nil {
		s.data.Accounts = make(map[string]domain.Account)
	}
	if s.data.Clans == nil {
		s.data.Clans = make(map[string]domain.Clan)
	}
	if s.data.Requests == nil {
		s.data.Requests = make(map[string]domain.RequestRecord)
	}
	return s, nil
}

// Atomic implements domain.Store.
func (s *Store) Atomic(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable("begin", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s.data)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.Unavailable("commit", err)
	}

	next := tx.merge()
	if s.path != "" {
		if err := writeSnapshot(s.path, next); err != nil {
			return domain.Unavailable("write snapshot", err)
		}
	}
	s.data = next
	return nil
}

// Accounts implements domain.Store.
func (s *Store) Accounts(ctx context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Account, 0, len(s.data.Accounts))
	for _, a := range s.data.Accounts {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Records implements domain.Store.
func (s *Store) Records(ctx context.Context, userID string, limit int) ([]domain.TransactionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransactionRecord
	for i := len(s.data.Records) - 1; i >= 0; i-- {
		if s.data.Records[i].UserID != userID {
			continue
		}
		out = append(out, s.data.Records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Close implements domain.Store.
func (s *Store) Close() error { return nil }

func writeSnapshot(path string, data *snapshot) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
