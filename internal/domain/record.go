package domain

import (
	"encoding/json"
	"fmt"
)

// Canonical record field names produced by alias normalisation.
const (
	FieldID           = "Id"
	FieldDocNumber    = "DocNumber"
	FieldCustomerName = "CustomerName"
	FieldTxnDate      = "TxnDate"
	FieldDueDate      = "DueDate"
	FieldTotalAmt     = "TotalAmt"
	FieldBalance      = "Balance"
	FieldEmail        = "Email"
	FieldStatus       = "Status"
)

// Record is a business record in canonical shape. A field missing from the
// source is missing from the map; an explicit empty value is kept as is.
type Record map[string]any

// String returns the field rendered as text and whether it was present.
// Numbers keep their literal form.
func (r Record) String(field string) (string, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// ID returns the record identifier, or "" when absent.
func (r Record) ID() string {
	id, _ := r.String(FieldID)
	return id
}

// HasDocNumber reports whether the record carries a document number.
func (r Record) HasDocNumber() bool {
	_, ok := r.String(FieldDocNumber)
	return ok
}

// Merge returns a copy of r overlaid with every field present in partial.
func (r Record) Merge(partial Record) Record {
	out := make(Record, len(r)+len(partial))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

// ExtractedPayload holds the records decoded from one delimiter block.
// Single is true when the block held one record rather than an array.
type ExtractedPayload struct {
	Records []Record
	Single  bool
}

// UpdateAction tells a records view what to do.
type UpdateAction string

const (
	ActionReplaceListing    UpdateAction = "replace-listing"
	ActionReplaceWithCached UpdateAction = "replace-with-cached"
	ActionReplaceWithRecord UpdateAction = "replace-with-record"
	ActionReload            UpdateAction = "reload"
)

// ViewUpdate is a change notification for records views.
type ViewUpdate struct {
	Action  UpdateAction
	Records []Record
	ShowAll bool // drop any narrowed view and show the full listing
}
