package mcp

import (
	"github.com/rpggio/farmsync/internal/connectivity"
	"github.com/rpggio/farmsync/internal/domain/record"
)

type AddRecordParams struct {
	Kind   string         `json:"kind" jsonschema:"record kind: lead, client, visit, scheduled or sale"`
	Fields map[string]any `json:"fields" jsonschema:"record fields; id and ownerId are assigned by the server"`
}

type UpdateRecordParams struct {
	Kind    string         `json:"kind" jsonschema:"record kind"`
	ID      string         `json:"id" jsonschema:"record id"`
	Changes map[string]any `json:"changes" jsonschema:"fields to change; other fields are kept"`
}

type GetRecordParams struct {
	Kind string `json:"kind" jsonschema:"record kind"`
	ID   string `json:"id" jsonschema:"record id"`
}

type ListRecordsParams struct {
	Kind         string `json:"kind" jsonschema:"record kind"`
	UnsyncedOnly bool   `json:"unsynced_only,omitempty" jsonschema:"only records not yet confirmed by the remote"`
}

type ReconcileParams struct {
	Kind string `json:"kind" jsonschema:"record kind"`
}

type SetConnectivityParams struct {
	Online bool `json:"online" jsonschema:"true to go online, false to go offline"`
}

type RecentActivityParams struct {
	Kind     string `json:"kind,omitempty" jsonschema:"filter by record kind"`
	RecordID string `json:"record_id,omitempty" jsonschema:"filter by record id"`
	Type     string `json:"type,omitempty" jsonschema:"filter by activity type"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum entries, default 50"`
	Offset   int    `json:"offset,omitempty"`
}

type RequeueMutationParams struct {
	ID int64 `json:"id" jsonschema:"id of the dead-lettered mutation"`
}

// NoParams is the input of tools that take no arguments.
type NoParams struct{}

type RecordsResult struct {
	Kind    string          `json:"kind"`
	Records []record.Record `json:"records"`
}

type ReconcileResult struct {
	Kind    string          `json:"kind"`
	Online  bool            `json:"online"`
	Records []record.Record `json:"records"`
}

type SyncResult struct {
	Online bool                    `json:"online"`
	Report connectivity.SyncReport `json:"report"`
}
