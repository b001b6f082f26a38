// Package documents turns raw backend document lists into the views a client
// acts on: newest versions only, in display order, split by approval state.
package documents

import (
	"errors"
	"math"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"docportal/internal/domain"
)

// ErrNoDocuments is returned when nothing actionable remains after filtering.
var ErrNoDocuments = errors.New("documents: no documents found")

// Prepare keeps the newest version of each document and sorts the result.
func Prepare(raw []domain.Document) ([]domain.Document, error) {
	docs := NewestOnly(raw)
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	Sort(docs)
	return docs, nil
}

// NewestOnly drops superseded revisions.
func NewestOnly(raw []domain.Document) []domain.Document {
	out := make([]domain.Document, 0, len(raw))
	for _, d := range raw {
		if d.IsNewestVersion {
			out = append(out, d)
		}
	}
	return out
}

// OlderVersions returns the superseded revisions, sorted like the primary list.
// They are for reference only and never actionable.
func OlderVersions(raw []domain.Document) []domain.Document {
	out := make([]domain.Document, 0)
	for _, d := range raw {
		if !d.IsNewestVersion {
			out = append(out, d)
		}
	}
	Sort(out)
	return out
}

// Sort orders docs by sort order ascending, missing values last, then by
// display name using a case-insensitive natural comparison ("Doc 2" before
// "Doc 10"). The sort is stable.
func Sort(docs []domain.Document) {
	col := collate.New(language.Und, collate.IgnoreCase, collate.Loose, collate.Numeric)
	slices.SortStableFunc(docs, func(a, b domain.Document) int {
		sa, sb := sortKey(a), sortKey(b)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return col.CompareString(a.DisplayName(), b.DisplayName())
	})
}

func sortKey(d domain.Document) float64 {
	if d.SortOrder == nil || math.IsNaN(*d.SortOrder) {
		return math.Inf(1)
	}
	return *d.SortOrder
}

// Partition splits docs into pending and approved, preserving order.
func Partition(docs []domain.Document) (pending, approved []domain.Document) {
	pending = make([]domain.Document, 0, len(docs))
	approved = make([]domain.Document, 0, len(docs))
	for _, d := range docs {
		if d.Approved() {
			approved = append(approved, d)
		} else {
			pending = append(pending, d)
		}
	}
	return pending, approved
}

// AllApproved reports whether every document is approved. An empty list is
// never all approved.
func AllApproved(docs []domain.Document) bool {
	if len(docs) == 0 {
		return false
	}
	for _, d := range docs {
		if !d.Approved() {
			return false
		}
	}
	return true
}

// SplitBlocked partitions the requested ids into those a client may approve
// and those staff have blocked. Ids that match no document are returned in
// unknown. Duplicate ids are collapsed.
func SplitBlocked(docs []domain.Document, ids []string) (approvable, blocked, unknown []string) {
	byID := make(map[string]domain.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		d, ok := byID[id]
		switch {
		case !ok:
			unknown = append(unknown, id)
		case d.IsApprovalBlocked:
			blocked = append(blocked, id)
		default:
			approvable = append(approvable, id)
		}
	}
	return approvable, blocked, unknown
}

// JournalsFromItems derives a journal list from a flat document list, for
// backends that do not group by journal. Journals keep first-seen order.
func JournalsFromItems(items []domain.Document) []domain.Journal {
	index := make(map[string]int)
	var out []domain.Journal
	for _, it := range items {
		if it.JournalID == "" {
			continue
		}
		i, ok := index[it.JournalID]
		if !ok {
			name := it.JournalName
			if name == "" {
				name = it.JournalID
			}
			out = append(out, domain.Journal{ID: it.JournalID, Name: name})
			i = len(out) - 1
			index[it.JournalID] = i
		}
		out[i].DocumentCount++
		if it.Approved() {
			out[i].ApprovedCount++
		}
		if it.DocumentType != "" && !slices.Contains(out[i].DocumentTypes, it.DocumentType) {
			out[i].DocumentTypes = append(out[i].DocumentTypes, it.DocumentType)
		}
	}
	return out
}
