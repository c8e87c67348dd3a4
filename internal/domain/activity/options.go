package activity

// DefaultListLimit caps unbounded activity listings.
const DefaultListLimit = 50

// ListOptions provides filtering options for listing activity.
type ListOptions struct {
	Kind     string
	RecordID string
	Type     Type
	Limit    int
	Offset   int
}

func (o ListOptions) matches(e Entry) bool {
	if o.Kind != "" && e.Kind != o.Kind {
		return false
	}
	if o.RecordID != "" && e.RecordID != o.RecordID {
		return false
	}
	if o.Type != "" && e.Type != o.Type {
		return false
	}
	return true
}
