// Package search defines the search index the drain keeps in sync with stored
// records, and the tokenizer shared by its implementations.
package search

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/vietddude/erpsync/internal/core/domain"
)

// Index is a full-text index over records, partitioned by entity.
// Put and Delete must be idempotent.
type Index interface {
	// Put indexes rec, replacing any previous document for it
	Put(ctx context.Context, rec *domain.Record) error

	// Delete removes a record's document. Deleting a missing document is not an error.
	Delete(ctx context.Context, entity, id string) error

	// Search returns the records of entity containing every token of query
	Search(ctx context.Context, entity, query string) ([]*domain.Record, error)
}

// Tokenize lower-cases s and splits it on anything that is not a letter or digit.
// The result is sorted and free of duplicates.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return dedupe(fields)
}

// Tokens collects the tokens of every string value in the record payload,
// nested maps and slices included.
func Tokens(rec *domain.Record) []string {
	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			out = append(out, Tokenize(t)...)
		case map[string]any:
			for _, inner := range t {
				walk(inner)
			}
		case []any:
			for _, inner := range t {
				walk(inner)
			}
		}
	}
	walk(rec.Payload)
	return dedupe(out)
}

func dedupe(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	sort.Strings(tokens)
	out := tokens[:1]
	for _, tok := range tokens[1:] {
		if tok != out[len(out)-1] {
			out = append(out, tok)
		}
	}
	return out
}
