package store

import (
	"context"
	"os"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// JSONStore keeps every document in memory and rewrites the whole file as
// an indented JSON array after each mutation. The file layout is a plain
// array of documents so existing store files stay readable.
type JSONStore struct {
	path string
	mu   sync.RWMutex
	docs []Document
}

// NewJSONStore loads path if it exists. An empty path keeps the store in
// memory only.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{path: path}
	if path == "" {
		return s, nil
	}

	logrus.Debugf("Loading json store from %s", path)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error reading store file %s", path)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.docs); err != nil {
		return nil, errors.Wrapf(err, "error decoding store file %s", path)
	}
	return s, nil
}

// List implements Store
func (s *JSONStore) List(_ context.Context, f Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Document, 0)
	for i := range s.docs {
		if f.Match(&s.docs[i]) {
			out = append(out, s.docs[i])
		}
	}
	return out, nil
}

// Append implements Store
func (s *JSONStore) Append(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs = append(s.docs, doc)
	if err := s.save(); err != nil {
		s.docs = s.docs[:len(s.docs)-1]
		return err
	}
	return nil
}

// Delete implements Store
func (s *JSONStore) Delete(_ context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make([]Document, 0, len(s.docs))
	for i := range s.docs {
		if !f.Match(&s.docs[i]) {
			keep = append(keep, s.docs[i])
		}
	}
	removed := len(s.docs) - len(keep)
	if removed == 0 {
		return 0, nil
	}

	prev := s.docs
	s.docs = keep
	if err := s.save(); err != nil {
		s.docs = prev
		return 0, err
	}
	return removed, nil
}

// Clear implements Store
func (s *JSONStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.docs
	s.docs = nil
	if err := s.save(); err != nil {
		s.docs = prev
		return err
	}
	return nil
}

// Close implements Store
func (s *JSONStore) Close() error {
	return nil
}

// save writes the store atomically, s.mu must be held
func (s *JSONStore) save() error {
	if s.path == "" {
		return nil
	}

	docs := s.docs
	if docs == nil {
		docs = []Document{}
	}
	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "error encoding store")
	}
	return errors.Wrapf(renameio.WriteFile(s.path, data, 0644), "error writing store file %s", s.path)
}
