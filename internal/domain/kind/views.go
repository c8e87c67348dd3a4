package kind

import (
	"encoding/json"
	"fmt"

	"github.com/rpggio/farmsync/internal/domain/record"
)

// LeadView is a prospective customer.
type LeadView struct {
	Name     string  `json:"name"`
	FarmName string  `json:"farmName,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Email    string  `json:"email,omitempty"`
	Region   string  `json:"region,omitempty"`
	Stage    string  `json:"stage,omitempty"`
	Interest string  `json:"interest,omitempty"`
	Hectares float64 `json:"hectares,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

type ClientView struct {
	Name     string `json:"name"`
	FarmName string `json:"farmName,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Address  string `json:"address,omitempty"`
	LeadID   string `json:"leadId,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type VisitView struct {
	ClientID string `json:"clientId"`
	Date     string `json:"date"`
	Purpose  string `json:"purpose,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// ScheduledItemView is a follow-up or task with a due date.
type ScheduledItemView struct {
	Title    string `json:"title"`
	DueAt    string `json:"dueAt"`
	ClientID string `json:"clientId,omitempty"`
	Done     bool   `json:"done,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type SaleView struct {
	ClientID string  `json:"clientId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
	Product  string  `json:"product,omitempty"`
	Quantity float64 `json:"quantity,omitempty"`
	SoldAt   string  `json:"soldAt,omitempty"`
	Notes    string  `json:"notes,omitempty"`
}

// Decode converts a record's fields into a typed view.
func Decode[T any](rec record.Record) (T, error) {
	var out T
	raw, err := json.Marshal(rec.Fields)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decoding %s fields: %w", rec.ID, err)
	}
	return out, nil
}

// Fields converts a typed view into record fields.
func Fields(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
