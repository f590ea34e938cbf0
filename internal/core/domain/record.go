package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var entityName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Record is a single row of an administered entity (customer, invoice, asset...).
// The payload is opaque to erpsync.
type Record struct {
	ID        string         `json:"id"         db:"id"`
	Entity    string         `json:"entity"     db:"entity"`
	Payload   map[string]any `json:"payload"    db:"-"`
	Version   int64          `json:"version"    db:"version"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt time.Time      `json:"updated_at" db:"updated_at"`
}

// ErrInvalidRecord is returned by Validate.
var ErrInvalidRecord = errors.New("invalid record")

// Validate checks the fields required before a record can be stored.
func (r *Record) Validate() error {
	if !entityName.MatchString(r.Entity) {
		return fmt.Errorf("%w: bad entity name %q", ErrInvalidRecord, r.Entity)
	}
	if r.Payload == nil {
		return fmt.Errorf("%w: payload is required", ErrInvalidRecord)
	}
	return nil
}

// ValidEntity reports whether name can be used as an entity name.
func ValidEntity(name string) bool {
	return entityName.MatchString(name)
}

// Clone returns a copy of r whose payload shares no maps or slices with r.
func (r *Record) Clone() *Record {
	c := *r
	if r.Payload != nil {
		c.Payload = clonePayload(r.Payload)
	}
	return &c
}

func clonePayload(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return clonePayload(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
