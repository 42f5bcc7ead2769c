package usecase

import (
	"sort"
	"time"

	"github.com/samber/lo"

	"hearme/internal/domain"
)

// confirmSkew bounds how much earlier than the local optimistic insert a
// confirmed post may be stamped and still count as its confirmation.
const confirmSkew = 2 * time.Second

type pendingPost struct {
	post           domain.Post
	localCreatedAt time.Time
	confirmedID    string
	// preexisting holds the confirmed ids already in the view at insert
	// time; none of them can confirm this entry.
	preexisting map[string]struct{}
}

func newPendingPost(post domain.Post, at time.Time, confirmed []domain.Post) pendingPost {
	return pendingPost{
		post:           post,
		localCreatedAt: at,
		preexisting: lo.SliceToMap(confirmed, func(c domain.Post) (string, struct{}) {
			return c.ID, struct{}{}
		}),
	}
}

// reconcilePending drops optimistic entries that the confirmed snapshot now
// carries. Entries are matched by the id returned from the durable create
// first, then by author and text within the creation window. A confirmed post
// confirms at most one optimistic entry.
func reconcilePending(pending []pendingPost, confirmed []domain.Post) []pendingPost {
	if len(pending) == 0 {
		return nil
	}

	byID := lo.KeyBy(confirmed, func(p domain.Post) string { return p.ID })
	claimed := make(map[string]bool, len(pending))

	remaining := lo.Filter(pending, func(p pendingPost, _ int) bool {
		if p.confirmedID == "" {
			return true
		}
		if _, ok := byID[p.confirmedID]; ok {
			claimed[p.confirmedID] = true
			return false
		}
		return true
	})

	return lo.Filter(remaining, func(p pendingPost, _ int) bool {
		match, ok := lo.Find(confirmed, func(c domain.Post) bool {
			return !claimed[c.ID] && confirms(c, p)
		})
		if !ok {
			return true
		}
		claimed[match.ID] = true
		return false
	})
}

func confirms(c domain.Post, p pendingPost) bool {
	if p.confirmedID != "" && p.confirmedID != c.ID {
		return false
	}
	if _, seen := p.preexisting[c.ID]; seen {
		return false
	}
	if c.AuthorID != p.post.AuthorID || c.Text != p.post.Text {
		return false
	}
	return !c.CreatedAt.Before(p.localCreatedAt.Add(-confirmSkew))
}

// mergeFeedView orders optimistic entries (newest local insert first) ahead of
// confirmed posts (newest createdAt first) and applies presentational flags.
func mergeFeedView(pending []pendingPost, confirmed []domain.Post, pulsing map[string]bool) []domain.Post {
	optimistic := append([]pendingPost(nil), pending...)
	sort.SliceStable(optimistic, func(i, j int) bool {
		return optimistic[i].localCreatedAt.After(optimistic[j].localCreatedAt)
	})

	ordered := append([]domain.Post(nil), confirmed...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].CreatedAt.Equal(ordered[j].CreatedAt) {
			return ordered[i].ID > ordered[j].ID
		}
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	view := make([]domain.Post, 0, len(optimistic)+len(ordered))
	for _, p := range optimistic {
		post := p.post
		post.Pending = true
		view = append(view, post)
	}
	for _, post := range ordered {
		post.Pending = false
		post.Pulsing = pulsing[post.ID]
		view = append(view, post)
	}
	return view
}

// removePending drops the optimistic entry with the given correlation id.
func removePending(pending []pendingPost, correlationID string) []pendingPost {
	return lo.Reject(pending, func(p pendingPost, _ int) bool {
		return p.post.CorrelationID == correlationID
	})
}
