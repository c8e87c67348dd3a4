package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `farmsync keeps a farm CRM's records (leads, clients, visits, scheduled items, sales) in a local store and syncs them with a remote document store.

Rules of engagement:
1) Writes always land locally first. add_record and update_record succeed offline; the remote copy catches up later.
2) A record's "synced" flag is true once the remote has confirmed its latest version.
3) Lead, visit and sale writes that can't reach the remote are queued in the outbox and replayed in order when connectivity returns.
   Client and scheduled writes are not queued; reconcile (or sync_now) pushes them later.
4) reconcile merges the remote copy into the local store: remote wins, local-only records are kept.
5) sync_status shows outbox depth and unsynced counts. list_failed_mutations shows mutations that kept failing; requeue_mutation retries one.

Docs:
- farmsync://docs/concepts
- farmsync://docs/kinds
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "farmsync://docs/concepts",
		Name:        "docs_concepts",
		Title:       "Sync concepts",
		Description: "Local-first writes, sync policies, the outbox and reconciliation.",
		Content: `# Sync concepts

## Local first

Every write is applied to the local store before anything talks to the network.
Tools return as soon as the local write is done; remote pushes run in the background.

## Sync policies

- **outbox** (lead, visit, sale): a write that can't reach the remote is queued. The queue replays in
  FIFO order, one item at a time. A failing item blocks the items behind it. After repeated
  failures it moves to the failed list where ` + "`requeue_mutation`" + ` can retry it.
- **deferred** (client, scheduled): failed writes just stay unsynced until the next
  ` + "`reconcile`" + `.

## Reconcile

1. Push every unsynced record.
2. Fetch the owner's records from the remote.
3. Merge: the remote version replaces the local one; records the remote doesn't have are kept.

Reconcile does nothing while offline and returns the local list.

## Identity

Records created offline get an id starting with ` + "`local_`" + `. The remote keeps that id.
Every record belongs to one owner; you only ever see your own.
`,
	},
	{
		URI:         "farmsync://docs/kinds",
		Name:        "docs_kinds",
		Title:       "Record kinds",
		Description: "Fields each record kind accepts.",
		Content: `# Record kinds

| kind | required fields | optional fields |
|------|-----------------|-----------------|
| lead | name | farmName, phone, email, region, stage, interest, hectares, notes |
| client | name | farmName, phone, email, address, leadId, notes |
| visit | clientId, date | purpose, outcome, notes |
| scheduled | title, dueAt | clientId, done, notes |
| sale | clientId, amount | currency, product, quantity, soldAt, notes |

lead.stage is one of new, contacted, qualified, proposal, won, lost. lead.interest is low, medium or high.
` + "`id`" + `, ` + "`ownerId`" + `, ` + "`createdAt`" + ` and ` + "`updatedAt`" + ` are managed by the server.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
