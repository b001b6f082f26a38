package domain

// TypeStatus counts documents of one document type within a journal.
type TypeStatus struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
}

// Journal is a case file grouping the documents of one client matter.
type Journal struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	DocumentCount    int                   `json:"documentCount"`
	ApprovedCount    int                   `json:"approvedCount"`
	DocumentTypes    []string              `json:"documentTypes,omitempty"`
	DocumentStatuses map[string]TypeStatus `json:"documentStatuses,omitempty"`
	FirstDraftSent   Timestamp             `json:"firstDraftSent"`
}

// DisplayName falls back to the id when the backend sent no name.
func (j Journal) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// FullyApproved reports whether every document in the journal is approved.
// An empty journal is never fully approved.
func (j Journal) FullyApproved() bool {
	return j.DocumentCount > 0 && j.ApprovedCount == j.DocumentCount
}

// TypeApproved reports whether every document of docType is approved.
func (j Journal) TypeApproved(docType string) bool {
	st, ok := j.DocumentStatuses[docType]
	return ok && st.Total > 0 && st.Approved == st.Total
}
