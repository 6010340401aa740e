package sinks

import (
	"context"
	"errors"
	"sync"
)

// MemorySink keeps saved blobs in memory, in save order.
type MemorySink struct {
	mu    sync.Mutex
	names []string
	blobs map[string][]byte

	// Err, when set, is returned by every Save.
	Err error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{blobs: make(map[string][]byte)}
}

func (s *MemorySink) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if _, ok := s.blobs[name]; !ok {
		s.names = append(s.names, name)
	}
	s.blobs[name] = append([]byte(nil), data...)
	return "mem://" + name, nil
}

// Names returns saved names in first-save order.
func (s *MemorySink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.names...)
}

// Get returns a saved blob.
func (s *MemorySink) Get(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[name]
	return b, ok
}

// MemoryClipboard records copied text.
type MemoryClipboard struct {
	mu     sync.Mutex
	copies []string
}

// ErrClipboardEmpty is returned by Last when nothing was copied.
var ErrClipboardEmpty = errors.New("clipboard is empty")

func (c *MemoryClipboard) Copy(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.copies = append(c.copies, text)
	return nil
}

// Count returns how many copies were made.
func (c *MemoryClipboard) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.copies)
}

// Last returns the most recent copy.
func (c *MemoryClipboard) Last() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.copies) == 0 {
		return "", ErrClipboardEmpty
	}
	return c.copies[len(c.copies)-1], nil
}
