package actstore

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// actModel is the bun row shape for the acts table. relations and events
// are stored as JSONB; bun's struct tags drive both the DDL the module
// ships and the marshal/unmarshal on read and write.
type actModel struct {
	bun.BaseModel `bun:"table:acts,alias:a"`

	ID             string          `bun:"id,pk"`
	Name           string          `bun:"name,notnull"`
	Country        string          `bun:"country"`
	Region         string          `bun:"region"`
	Disambiguation string          `bun:"disambiguation"`
	Ended          bool            `bun:"ended,notnull"`
	Status         string          `bun:"status,notnull"`
	Relations      json.RawMessage `bun:"relations,type:jsonb"`
	Events         json.RawMessage `bun:"events,type:jsonb"`
	UpdatedAt      string          `bun:"updated_at,notnull"`
}

// actMetadataModel is the bun row shape for the act_metadata table.
type actMetadataModel struct {
	bun.BaseModel `bun:"table:act_metadata,alias:m"`

	ID                      string    `bun:"id,pk"`
	LastRequestedAt         time.Time `bun:"last_requested_at,notnull"`
	UpdatesSinceLastRequest int       `bun:"updates_since_last_request,notnull"`
}

// dataUpdateErrorModel is the bun row shape for the data_update_errors
// table. Postgres has no native TTL index, so rows past the 7-day
// retention window are deleted opportunistically on every write and
// filtered out on every read; see errorRetention in store.go.
type dataUpdateErrorModel struct {
	bun.BaseModel `bun:"table:data_update_errors,alias:e"`

	ID           string    `bun:"id,pk"`
	ActID        string    `bun:"act_id,notnull"`
	Timestamp    time.Time `bun:"timestamp,notnull"`
	ErrorMessage string    `bun:"error_message,notnull"`
	ErrorSource  string    `bun:"error_source,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
