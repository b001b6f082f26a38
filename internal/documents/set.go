package documents

import (
	"slices"

	"docportal/internal/domain"
)

// View is the derived state a presenter renders.
type View struct {
	Documents   []domain.Document
	Pending     []domain.Document
	Approved    []domain.Document
	AllApproved bool
	// Older holds superseded revisions for reference. They are never
	// actionable and do not count towards completion.
	Older []domain.Document
}

// Set is the client-held copy of the active document list. It is not safe for
// concurrent use; its owner serializes access.
type Set struct {
	docs           []domain.Document
	older          []domain.Document
	completionSeen bool
}

// Replace installs a freshly prepared list. The completion trigger is kept so
// a refetch of an already completed list does not fire it again.
func (s *Set) Replace(docs []domain.Document) {
	s.docs = slices.Clone(docs)
}

// ReplaceOlder installs the superseded revisions shown next to the list.
func (s *Set) ReplaceOlder(older []domain.Document) {
	s.older = slices.Clone(older)
}

// Reset empties the set and re-arms the completion trigger.
func (s *Set) Reset() {
	s.docs = nil
	s.older = nil
	s.completionSeen = false
}

// Len returns the number of documents held.
func (s *Set) Len() int { return len(s.docs) }

// Documents returns a copy of the held list.
func (s *Set) Documents() []domain.Document {
	return slices.Clone(s.docs)
}

// Get looks a document up by id.
func (s *Set) Get(id string) (domain.Document, bool) {
	for _, d := range s.docs {
		if d.ID == id {
			return d, true
		}
	}
	return domain.Document{}, false
}

// MarkViewed flips a Sent document to Viewed after it was opened. It reports
// whether the status changed.
func (s *Set) MarkViewed(id string) bool {
	for i := range s.docs {
		if s.docs[i].ID == id && s.docs[i].Status == domain.StatusSent {
			s.docs[i].Status = domain.StatusViewed
			return true
		}
	}
	return false
}

// MarkApproved sets each listed document to Approved.
func (s *Set) MarkApproved(ids []string) int {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	n := 0
	for i := range s.docs {
		if _, ok := want[s.docs[i].ID]; ok && s.docs[i].Status != domain.StatusApproved {
			s.docs[i].Status = domain.StatusApproved
			n++
		}
	}
	return n
}

// View derives the pending and approved partitions.
func (s *Set) View() View {
	docs := s.Documents()
	pending, approved := Partition(docs)
	return View{
		Documents:   docs,
		Pending:     pending,
		Approved:    approved,
		AllApproved: AllApproved(docs),
		Older:       slices.Clone(s.older),
	}
}

// CompletionDue reports true exactly once after every document became
// approved, until the next Reset.
func (s *Set) CompletionDue() bool {
	if s.completionSeen || !AllApproved(s.docs) {
		return false
	}
	s.completionSeen = true
	return true
}
