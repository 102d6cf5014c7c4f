// Package changelog turns releases and the feedback they shipped into the
// organization's public changelog.
package changelog

import (
	"cmp"
	"slices"

	"github.com/lanehq/lanehq/internal/db/models"
)

// FeedbackEntry is a shipped feedback item with the board it was filed on.
type FeedbackEntry struct {
	*models.FeedbackItem
	Board *models.Board `json:"board,omitempty"`
}

// ReleaseView is a release with its feedback flattened in insertion order.
type ReleaseView struct {
	models.Release
	NotesHTML string          `json:"notes_html"`
	Feedback  []FeedbackEntry `json:"feedback"`
}

// Aggregate filters drafts unless showDrafts is set, orders releases newest
// published first (drafts, when shown, ahead of them, newest created first) and
// flattens each release's items. Items whose feedback is gone are dropped.
// The input is not modified.
func Aggregate(releases []*models.ReleaseWithItems, showDrafts bool) []ReleaseView {
	views := make([]ReleaseView, 0, len(releases))
	for _, r := range releases {
		if r == nil || (r.IsDraft() && !showDrafts) {
			continue
		}

		items := slices.Clone(r.Items)
		slices.SortStableFunc(items, func(a, b models.ReleaseItemDetail) int {
			return cmp.Compare(a.Sequence, b.Sequence)
		})

		feedback := make([]FeedbackEntry, 0, len(items))
		for _, it := range items {
			if it.Feedback == nil {
				continue
			}
			feedback = append(feedback, FeedbackEntry{FeedbackItem: it.Feedback, Board: it.Board})
		}
		views = append(views, ReleaseView{Release: r.Release, Feedback: feedback})
	}

	slices.SortStableFunc(views, compareReleases)
	return views
}

// compareReleases orders drafts first, then by publish time descending, then by
// creation time descending, then by ID.
func compareReleases(a, b ReleaseView) int {
	switch {
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return -1
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return 1
	case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		return b.PublishedAt.Compare(*a.PublishedAt)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return b.CreatedAt.Compare(a.CreatedAt)
	}
	return cmp.Compare(a.ID, b.ID)
}

// Flatten concatenates the feedback of every release in order.
func Flatten(views []ReleaseView) []FeedbackEntry {
	out := []FeedbackEntry{}
	for _, v := range views {
		out = append(out, v.Feedback...)
	}
	return out
}
