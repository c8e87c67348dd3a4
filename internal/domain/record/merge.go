package record

import "sort"

// Merge builds the reconciled set for one owner: every remote record, marked
// synced, plus each local record whose id the remote does not hold. Remote
// values replace local ones wholesale. The result is sorted by id.
func Merge(remote, local []Record) []Record {
	seen := make(map[string]struct{}, len(remote))
	merged := make([]Record, 0, len(remote)+len(local))
	for _, rec := range remote {
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}
		rec.Synced = true
		merged = append(merged, rec)
	}
	for _, rec := range local {
		if _, ok := seen[rec.ID]; ok {
			continue
		}
		merged = append(merged, rec)
	}
	sortByID(merged)
	return merged
}

func sortByID(recs []Record) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].ID < recs[j].ID })
}
