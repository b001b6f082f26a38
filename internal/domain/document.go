package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DocumentStatus is the lifecycle state of a shared document.
type DocumentStatus string

const (
	StatusDraft      DocumentStatus = "Draft"
	StatusSent       DocumentStatus = "Sent"
	StatusViewed     DocumentStatus = "Viewed"
	StatusApproved   DocumentStatus = "Approved"
	StatusSuperseded DocumentStatus = "Superseded"
)

// DefaultDocumentName is shown when a document carries no usable name.
const DefaultDocumentName = "Document"

// sortOrderKeys are the field names older backends used for the display order,
// checked in priority order.
var sortOrderKeys = []string{
	"sortOrder", "SortOrder", "sort_order",
	"displayOrder", "DisplayOrder",
	"order", "Order",
	"sequence", "Sequence",
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// Document is one revision of a file shared with the client.
type Document struct {
	ID                string         `json:"id"`
	Name              string         `json:"name,omitempty"`
	FileName          string         `json:"fileName,omitempty"`
	Key               string         `json:"key,omitempty"`
	Status            DocumentStatus `json:"status"`
	IsNewestVersion   bool           `json:"isNewestVersion"`
	DocumentType      string         `json:"documentType,omitempty"`
	MarketUnit        string         `json:"marketUnit,omitempty"`
	SortOrder         *float64       `json:"sortOrder,omitempty"`
	IsApprovalBlocked bool           `json:"isApprovalBlocked"`
	SentDate          Timestamp      `json:"sentDate"`
	FirstViewed       Timestamp      `json:"firstViewed"`
	LastViewed        Timestamp      `json:"lastViewed"`
	JournalID         string         `json:"journalId,omitempty"`
	JournalName       string         `json:"journalName,omitempty"`
}

// DisplayName applies the name fallback chain: name, fileName, filename, key.
func (d Document) DisplayName() string {
	for _, v := range []string{d.Name, d.FileName, d.Key} {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return DefaultDocumentName
}

// Label is what a document list shows: the document type when known.
func (d Document) Label() string {
	if strings.TrimSpace(d.DocumentType) != "" {
		return d.DocumentType
	}
	return d.DisplayName()
}

// Approved reports whether the document has reached the Approved state.
func (d Document) Approved() bool {
	return d.Status == StatusApproved
}

func (d *Document) UnmarshalJSON(data []byte) error {
	type document Document
	aux := struct {
		*document
		Filename  string          `json:"filename"`
		SortOrder json.RawMessage `json:"sortOrder"`
	}{document: (*document)(d)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("domain: decode document: %w", err)
	}
	if d.FileName == "" {
		d.FileName = aux.Filename
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("domain: decode document fields: %w", err)
	}
	d.SortOrder = nil
	for _, key := range sortOrderKeys {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			continue
		}
		d.SortOrder = parseSortOrder(raw)
		break
	}
	return nil
}

// parseSortOrder accepts a JSON number or a numeric string. A present but
// unparsable value yields nil, which sorts last.
func parseSortOrder(raw json.RawMessage) *float64 {
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return &n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	m := leadingInt.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	i, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return nil
	}
	f := float64(i)
	return &f
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
