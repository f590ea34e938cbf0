package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/erpsync/internal/core/domain"
	"github.com/vietddude/erpsync/internal/indexing/search"
)

// SearchIndex implements search.Index on Redis sets.
//
// Layout per entity:
//
//	search:{entity}:doc:{id}      record JSON
//	search:{entity}:terms:{id}    set of the record's tokens
//	search:{entity}:term:{token}  set of record ids
type SearchIndex struct {
	rdb *redis.Client
}

// NewSearchIndex creates a Redis-backed search index.
func NewSearchIndex(client *Client) *SearchIndex {
	return &SearchIndex{rdb: client.rdb}
}

// Put replaces the document and token sets of rec in one MULTI/EXEC.
func (s *SearchIndex) Put(ctx context.Context, rec *domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	old, err := s.rdb.SMembers(ctx, termsKey(rec.Entity, rec.ID)).Result()
	if err != nil {
		return fmt.Errorf("smembers failed: %w", err)
	}
	tokens := search.Tokens(rec)

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tok := range old {
			pipe.SRem(ctx, termKey(rec.Entity, tok), rec.ID)
		}
		pipe.Del(ctx, termsKey(rec.Entity, rec.ID))
		pipe.Set(ctx, docKey(rec.Entity, rec.ID), data, 0)
		if len(tokens) > 0 {
			members := make([]any, len(tokens))
			for i, tok := range tokens {
				pipe.SAdd(ctx, termKey(rec.Entity, tok), rec.ID)
				members[i] = tok
			}
			pipe.SAdd(ctx, termsKey(rec.Entity, rec.ID), members...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to index record: %w", err)
	}
	return nil
}

// Delete removes the document and its token memberships.
func (s *SearchIndex) Delete(ctx context.Context, entity, id string) error {
	old, err := s.rdb.SMembers(ctx, termsKey(entity, id)).Result()
	if err != nil {
		return fmt.Errorf("smembers failed: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, tok := range old {
			pipe.SRem(ctx, termKey(entity, tok), id)
		}
		pipe.Del(ctx, termsKey(entity, id), docKey(entity, id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove record from index: %w", err)
	}
	return nil
}

// Search returns the records of entity matching every token of query.
func (s *SearchIndex) Search(ctx context.Context, entity, query string) ([]*domain.Record, error) {
	tokens := search.Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tokens))
	for i, tok := range tokens {
		keys[i] = termKey(entity, tok)
	}
	ids, err := s.rdb.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("sinter failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	sort.Strings(ids)

	docKeys := make([]string, len(ids))
	for i, id := range ids {
		docKeys[i] = docKey(entity, id)
	}
	vals, err := s.rdb.MGet(ctx, docKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("mget failed: %w", err)
	}

	recs := make([]*domain.Record, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Deleted between SINTER and MGET
			continue
		}
		var rec domain.Record
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		recs = append(recs, &rec)
	}
	return recs, nil
}
