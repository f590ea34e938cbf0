package search

import (
	"context"
	"sort"
	"sync"

	"github.com/vietddude/erpsync/internal/core/domain"
)

// MemoryIndex is an in-process Index used when no Redis is configured.
type MemoryIndex struct {
	docs  map[string]map[string]*domain.Record      // entity -> id -> doc
	terms map[string]map[string]map[string]struct{} // entity -> token -> ids
	mu    sync.RWMutex
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		docs:  make(map[string]map[string]*domain.Record),
		terms: make(map[string]map[string]map[string]struct{}),
	}
}

func (m *MemoryIndex) Put(ctx context.Context, rec *domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.removeLocked(rec.Entity, rec.ID)

	doc := rec.Clone()
	if m.docs[rec.Entity] == nil {
		m.docs[rec.Entity] = make(map[string]*domain.Record)
		m.terms[rec.Entity] = make(map[string]map[string]struct{})
	}
	m.docs[rec.Entity][rec.ID] = doc

	for _, tok := range Tokens(rec) {
		ids := m.terms[rec.Entity][tok]
		if ids == nil {
			ids = make(map[string]struct{})
			m.terms[rec.Entity][tok] = ids
		}
		ids[rec.ID] = struct{}{}
	}
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, entity, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(entity, id)
	return nil
}

func (m *MemoryIndex) removeLocked(entity, id string) {
	doc, ok := m.docs[entity][id]
	if !ok {
		return
	}
	for _, tok := range Tokens(doc) {
		delete(m.terms[entity][tok], id)
		if len(m.terms[entity][tok]) == 0 {
			delete(m.terms[entity], tok)
		}
	}
	delete(m.docs[entity], id)
}

func (m *MemoryIndex) Search(ctx context.Context, entity, query string) ([]*domain.Record, error) {
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []*domain.Record
	for id := range m.terms[entity][tokens[0]] {
		match := true
		for _, tok := range tokens[1:] {
			if _, ok := m.terms[entity][tok][id]; !ok {
				match = false
				break
			}
		}
		if match {
			res = append(res, m.docs[entity][id].Clone())
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}
