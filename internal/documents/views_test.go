package documents

import (
	"testing"

	"github.com/stretchr/testify/require"

	"docportal/internal/domain"
)

func order(f float64) *float64 { return &f }

func names(docs []domain.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.DisplayName())
	}
	return out
}

func TestSort_NullSortOrderLast(t *testing.T) {
	docs := []domain.Document{
		{ID: "1", Name: "B", SortOrder: order(2)},
		{ID: "2", Name: "A"},
		{ID: "3", Name: "C", SortOrder: order(1)},
	}
	Sort(docs)
	require.Equal(t, []string{"C", "B", "A"}, names(docs))
}

func TestSort_NaturalCaseInsensitiveTieBreak(t *testing.T) {
	docs := []domain.Document{
		{ID: "1", Name: "doc 10"},
		{ID: "2", Name: "Doc 2"},
		{ID: "3", Name: "appendix"},
		{ID: "4", Name: "Doc 1"},
	}
	Sort(docs)
	require.Equal(t, []string{"appendix", "Doc 1", "Doc 2", "doc 10"}, names(docs))
}

func TestPrepare_KeepsNewestOnly(t *testing.T) {
	raw := []domain.Document{
		{ID: "v1", Name: "Contract", IsNewestVersion: false, Status: domain.StatusSuperseded},
		{ID: "v2", Name: "Contract", IsNewestVersion: true, Status: domain.StatusSent},
	}
	docs, err := Prepare(raw)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	require.Equal(t, "v2", docs[0].ID)

	older := OlderVersions(raw)
	require.Len(t, older, 1)
	require.Equal(t, "v1", older[0].ID)
}

func TestPrepare_NoDocuments(t *testing.T) {
	_, err := Prepare([]domain.Document{{ID: "old", IsNewestVersion: false}})
	require.ErrorIs(t, err, ErrNoDocuments)

	_, err = Prepare(nil)
	require.ErrorIs(t, err, ErrNoDocuments)
}

func TestPartitionAndAllApproved(t *testing.T) {
	docs := []domain.Document{
		{ID: "a", Status: domain.StatusApproved},
		{ID: "b", Status: domain.StatusViewed},
		{ID: "c", Status: domain.StatusSent},
	}
	pending, approved := Partition(docs)
	require.Len(t, pending, 2)
	require.Len(t, approved, 1)
	require.False(t, AllApproved(docs))

	require.False(t, AllApproved(nil))
	require.True(t, AllApproved(docs[:1]))
}

func TestSplitBlocked(t *testing.T) {
	docs := []domain.Document{
		{ID: "a"},
		{ID: "b", IsApprovalBlocked: true},
	}
	ok, blocked, unknown := SplitBlocked(docs, []string{"a", "b", "a", "zz"})
	require.Equal(t, []string{"a"}, ok)
	require.Equal(t, []string{"b"}, blocked)
	require.Equal(t, []string{"zz"}, unknown)
}

func TestJournalsFromItems(t *testing.T) {
	items := []domain.Document{
		{ID: "1", JournalID: "J2", JournalName: "J-0002", DocumentType: "Contract", Status: domain.StatusApproved},
		{ID: "2", JournalID: "J1", DocumentType: "Invoice"},
		{ID: "3", JournalID: "J2", DocumentType: "Contract"},
		{ID: "4"},
	}
	journals := JournalsFromItems(items)
	require.Len(t, journals, 2)

	require.Equal(t, "J2", journals[0].ID)
	require.Equal(t, "J-0002", journals[0].Name)
	require.Equal(t, 2, journals[0].DocumentCount)
	require.Equal(t, 1, journals[0].ApprovedCount)
	require.Equal(t, []string{"Contract"}, journals[0].DocumentTypes)

	require.Equal(t, "J1", journals[1].Name)
	require.Equal(t, 1, journals[1].DocumentCount)
}

// ---------------------------------------------------------------------------
// Set
// ---------------------------------------------------------------------------

func TestSet_MarkViewedOnlyFromSent(t *testing.T) {
	var s Set
	s.Replace([]domain.Document{
		{ID: "a", Status: domain.StatusSent},
		{ID: "b", Status: domain.StatusApproved},
	})
	require.True(t, s.MarkViewed("a"))
	require.False(t, s.MarkViewed("a"))
	require.False(t, s.MarkViewed("b"))

	d, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, domain.StatusViewed, d.Status)
}

func TestSet_MarkApprovedAndCompletion(t *testing.T) {
	var s Set
	s.Replace([]domain.Document{
		{ID: "a", Status: domain.StatusSent},
		{ID: "b", Status: domain.StatusViewed},
	})
	require.False(t, s.CompletionDue())

	require.Equal(t, 1, s.MarkApproved([]string{"a"}))
	v := s.View()
	require.Len(t, v.Pending, 1)
	require.Len(t, v.Approved, 1)
	require.False(t, v.AllApproved)

	require.Equal(t, 1, s.MarkApproved([]string{"a", "b"}))
	require.True(t, s.View().AllApproved)
	require.True(t, s.CompletionDue())
	require.False(t, s.CompletionDue())

	s.Reset()
	require.Zero(t, s.Len())
	require.False(t, s.CompletionDue())
}

func TestSet_OlderVersionsStayOutOfCompletion(t *testing.T) {
	raw := []domain.Document{
		{ID: "v1", Name: "Contract", Status: domain.StatusSuperseded},
		{ID: "v2", Name: "Contract", Status: domain.StatusApproved, IsNewestVersion: true},
	}
	docs, err := Prepare(raw)
	require.NoError(t, err)

	var s Set
	s.Replace(docs)
	s.ReplaceOlder(OlderVersions(raw))
	v := s.View()
	require.True(t, v.AllApproved)
	require.Len(t, v.Documents, 1)
	require.Len(t, v.Older, 1)
	require.Equal(t, "v1", v.Older[0].ID)
	require.True(t, s.CompletionDue())

	s.Reset()
	require.Empty(t, s.View().Older)
}

func TestSet_DocumentsIsACopy(t *testing.T) {
	var s Set
	s.Replace([]domain.Document{{ID: "a", Status: domain.StatusSent}})
	docs := s.Documents()
	docs[0].Status = domain.StatusApproved

	d, _ := s.Get("a")
	require.Equal(t, domain.StatusSent, d.Status)
}
