package domain

import "time"

// IndexJob asks the drain to bring one record's search document up to date.
type IndexJob struct {
	ID        int64       `json:"id"         db:"id"`
	Entity    string      `json:"entity"     db:"entity"`
	RecordID  string      `json:"record_id"  db:"record_id"`
	Op        IndexOp     `json:"op"         db:"op"`
	Status    IndexStatus `json:"status"     db:"status"`
	Attempts  int         `json:"attempts"   db:"attempts"`
	LastError string      `json:"last_error" db:"last_error"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"`
}

type IndexOp string

const (
	IndexOpUpsert IndexOp = "upsert"
	IndexOpDelete IndexOp = "delete"
)

type IndexStatus string

const (
	IndexStatusPending    IndexStatus = "pending"
	IndexStatusProcessing IndexStatus = "processing"
	IndexStatusFailed     IndexStatus = "failed"
)
