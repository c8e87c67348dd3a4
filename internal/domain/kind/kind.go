// Package kind describes the CRM entity kinds and their payload rules.
package kind

import (
	"sort"

	"github.com/rpggio/farmsync/internal/domain/record"
	"github.com/rpggio/farmsync/internal/localstore"
)

// Policy names how a kind handles failed pushes.
type Policy string

const (
	PolicyOutbox   Policy = "outbox"
	PolicyDeferred Policy = "deferred"
)

// Kind is one entity kind of the CRM.
type Kind struct {
	record.Entity
	Policy Policy
	// Schema is the file name of the payload schema under schemas/.
	Schema string
}

const (
	Lead      = "lead"
	Client    = "client"
	Visit     = "visit"
	Scheduled = "scheduled"
	Sale      = "sale"
)

var kinds = map[string]Kind{
	Lead: {
		Entity: record.Entity{Name: Lead, Collection: "leads", Partition: localstore.PartitionLead},
		Policy: PolicyOutbox,
		Schema: "lead.json",
	},
	Client: {
		Entity: record.Entity{Name: Client, Collection: "clients", Partition: localstore.PartitionClient},
		Policy: PolicyDeferred,
		Schema: "client.json",
	},
	Visit: {
		Entity: record.Entity{Name: Visit, Collection: "visits", Partition: localstore.PartitionVisit},
		Policy: PolicyOutbox,
		Schema: "visit.json",
	},
	Scheduled: {
		Entity: record.Entity{Name: Scheduled, Collection: "scheduled_items", Partition: localstore.PartitionScheduled},
		Policy: PolicyDeferred,
		Schema: "scheduled.json",
	},
	Sale: {
		Entity: record.Entity{Name: Sale, Collection: "sales", Partition: localstore.PartitionSale},
		Policy: PolicyOutbox,
		Schema: "sale.json",
	},
}

// All returns every kind ordered by name.
func All() []Kind {
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the kind with the given name.
func Lookup(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

// Names returns every kind name in order.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, k := range all {
		names[i] = k.Name
	}
	return names
}
