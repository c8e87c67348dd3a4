package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/farmsync/internal/domain/activity"
	"github.com/rpggio/farmsync/internal/domain/record"
)

func registerTools(server *sdkmcp.Server, b Backend) {
	t := &tools{backend: b}

	// Records
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "add_record",
		Description: "Create a record locally and push it to the remote when online",
	}, t.addRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "update_record",
		Description: "Merge changes into a record; only the changed fields are sent to the remote",
	}, t.updateRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_record",
		Description: "Read one record from the local store",
	}, t.getRecord)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_records",
		Description: "List the caller's records of a kind from the local store",
	}, t.listRecords)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "reconcile",
		Description: "Push unsynced records of a kind, then merge the remote copy into the local store",
	}, t.reconcile)

	// Sync
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sync_now",
		Description: "Drain the outbox and reconcile every kind for the caller",
	}, t.syncNow)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "set_connectivity",
		Description: "Switch the manual connectivity signal online or offline",
	}, t.setConnectivity)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "sync_status",
		Description: "Report backend, connectivity, outbox depth and unsynced counts per kind",
	}, t.syncStatus)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "recent_activity",
		Description: "List recent sync activity, newest first",
	}, t.recentActivity)

	// Outbox
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "list_failed_mutations",
		Description: "List mutations moved aside after repeated replay failures",
	}, t.listFailedMutations)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "requeue_mutation",
		Description: "Move a failed mutation back to the tail of the outbox",
	}, t.requeueMutation)
}

type tools struct {
	backend Backend
}

func (t *tools) addRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in AddRecordParams) (*sdkmcp.CallToolResult, any, error) {
	repo, err := t.backend.Repository(in.Kind)
	if err != nil {
		return nil, nil, toolError(err)
	}
	rec, err := repo.Add(ctx, in.Fields)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(rec)
}

func (t *tools) updateRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in UpdateRecordParams) (*sdkmcp.CallToolResult, any, error) {
	repo, err := t.backend.Repository(in.Kind)
	if err != nil {
		return nil, nil, toolError(err)
	}
	rec, err := repo.Update(ctx, in.ID, in.Changes)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(rec)
}

func (t *tools) getRecord(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetRecordParams) (*sdkmcp.CallToolResult, any, error) {
	repo, err := t.backend.Repository(in.Kind)
	if err != nil {
		return nil, nil, toolError(err)
	}
	rec, err := repo.Get(ctx, in.ID)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(rec)
}

func (t *tools) listRecords(ctx context.Context, _ *sdkmcp.CallToolRequest, in ListRecordsParams) (*sdkmcp.CallToolResult, any, error) {
	repo, err := t.backend.Repository(in.Kind)
	if err != nil {
		return nil, nil, toolError(err)
	}
	var recs []record.Record
	if in.UnsyncedOnly {
		recs, err = repo.Unsynced(ctx)
	} else {
		recs, err = repo.List(ctx)
	}
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(RecordsResult{Kind: in.Kind, Records: nonNil(recs)})
}

func (t *tools) reconcile(ctx context.Context, _ *sdkmcp.CallToolRequest, in ReconcileParams) (*sdkmcp.CallToolResult, any, error) {
	repo, err := t.backend.Repository(in.Kind)
	if err != nil {
		return nil, nil, toolError(err)
	}
	recs, err := repo.Reconcile(ctx)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(ReconcileResult{Kind: in.Kind, Online: t.backend.Online(), Records: nonNil(recs)})
}

func (t *tools) syncNow(ctx context.Context, _ *sdkmcp.CallToolRequest, _ NoParams) (*sdkmcp.CallToolResult, any, error) {
	owner, err := ownerOf(ctx)
	if err != nil {
		return nil, nil, err
	}
	report := t.backend.SyncOwner(ctx, owner)
	return jsonResult(SyncResult{Online: t.backend.Online(), Report: report})
}

func (t *tools) setConnectivity(_ context.Context, _ *sdkmcp.CallToolRequest, in SetConnectivityParams) (*sdkmcp.CallToolResult, any, error) {
	if err := t.backend.SetOnline(in.Online); err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(map[string]bool{"online": t.backend.Online()})
}

func (t *tools) syncStatus(ctx context.Context, _ *sdkmcp.CallToolRequest, _ NoParams) (*sdkmcp.CallToolResult, any, error) {
	owner, err := ownerOf(ctx)
	if err != nil {
		return nil, nil, err
	}
	st, err := t.backend.Status(ctx, owner)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(st)
}

func (t *tools) recentActivity(ctx context.Context, _ *sdkmcp.CallToolRequest, in RecentActivityParams) (*sdkmcp.CallToolResult, any, error) {
	owner, err := ownerOf(ctx)
	if err != nil {
		return nil, nil, err
	}
	entries, err := t.backend.RecentActivity(ctx, owner, activity.ListOptions{
		Kind:     in.Kind,
		RecordID: in.RecordID,
		Type:     activity.Type(in.Type),
		Limit:    in.Limit,
		Offset:   in.Offset,
	})
	if err != nil {
		return nil, nil, toolError(err)
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	return jsonResult(map[string]any{"activity": entries})
}

func (t *tools) listFailedMutations(ctx context.Context, _ *sdkmcp.CallToolRequest, _ NoParams) (*sdkmcp.CallToolResult, any, error) {
	items, err := t.backend.FailedMutations(ctx)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(map[string]any{"failed": items, "count": len(items)})
}

func (t *tools) requeueMutation(ctx context.Context, _ *sdkmcp.CallToolRequest, in RequeueMutationParams) (*sdkmcp.CallToolResult, any, error) {
	item, err := t.backend.Requeue(ctx, in.ID)
	if err != nil {
		return nil, nil, toolError(err)
	}
	return jsonResult(item)
}

func ownerOf(ctx context.Context) (string, error) {
	owner, ok := record.OwnerFromContext(ctx)
	if !ok {
		return "", toolError(record.ErrNoOwner)
	}
	return owner, nil
}

func nonNil(recs []record.Record) []record.Record {
	if recs == nil {
		return []record.Record{}
	}
	return recs
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}
