// Package storage implements C15: the append-only, height-keyed block
// store described in §4.14 and §6's persisted-state layout — one file
// per block, filename a zero-padded height, contents the canonical
// length-prefixed block bytes.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/yacbft/irohad-go/pkg/model"
)

// ErrAlreadyExists is returned by Insert when a block is already stored
// at the given height; the store is append-only and never overwrites.
var ErrAlreadyExists = errors.New("storage: block already exists at this height")

const filenameDigits = 20 // enough zero-padded decimal digits for any uint64 height

// Store is the flat-file block store of §4.14. It accepts one writer at
// a time; readers may run concurrently (§5 concurrency model).
type Store struct {
	mu  sync.RWMutex
	dir string
}

// Open prepares dir as a block store, creating it if absent.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create block store directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(height uint64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%0*d", filenameDigits, height))
}

// Insert writes block at height, failing if a block is already present
// there.
func (s *Store) Insert(height uint64, block *model.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(height)
	if _, err := os.Stat(path); err == nil {
		return ErrAlreadyExists
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("storage: stat block file: %w", err)
	}

	payload, err := model.EncodeBlock(block)
	if err != nil {
		return fmt.Errorf("storage: encode block: %w", err)
	}
	if err := os.WriteFile(path, model.FrameMessage(payload), 0o600); err != nil {
		return fmt.Errorf("storage: write block file: %w", err)
	}
	return nil
}

// Fetch reads the block stored at height. The second return value is
// false if no block is stored there.
func (s *Store) Fetch(height uint64) (*model.Block, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(height))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: read block file: %w", err)
	}
	payload, err := model.UnframeMessage(data)
	if err != nil {
		return nil, false, fmt.Errorf("storage: unframe block file: %w", err)
	}
	block, err := model.DecodeBlock(payload)
	if err != nil {
		return nil, false, fmt.Errorf("storage: decode block file: %w", err)
	}
	return block, true, nil
}

// ForEach visits every stored block in ascending height order, stopping
// and returning f's error if it returns one.
func (s *Store) ForEach(f func(height uint64, block *model.Block) error) error {
	s.mu.RLock()
	heights, err := s.heightsLocked()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, height := range heights {
		block, ok, err := s.Fetch(height)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := f(height, block); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the number of blocks currently stored.
func (s *Store) Size() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	heights, err := s.heightsLocked()
	if err != nil {
		return 0, err
	}
	return len(heights), nil
}

// TopHeight returns the highest stored height. The second return value
// is false when the store is empty.
func (s *Store) TopHeight() (uint64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	heights, err := s.heightsLocked()
	if err != nil {
		return 0, false, err
	}
	if len(heights) == 0 {
		return 0, false, nil
	}
	return heights[len(heights)-1], true, nil
}

// Clear removes every stored block.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("storage: list block store directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
			return fmt.Errorf("storage: remove block file %s: %w", entry.Name(), err)
		}
	}
	return nil
}

func (s *Store) heightsLocked() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("storage: list block store directory: %w", err)
	}
	heights := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.TrimLeft(entry.Name(), "0")
		if name == "" {
			name = "0"
		}
		height, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			continue
		}
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })
	return heights, nil
}
