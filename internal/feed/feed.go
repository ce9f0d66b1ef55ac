// Package feed computes the viewer-dependent dweet timeline. Visibility is
// always resolved at read time from the follow graph; nothing is
// materialized on write.
package feed

import (
	"example.com/dwitter/internal/logger"
	"example.com/dwitter/internal/models"
	"example.com/dwitter/internal/store"
)

var logg = logger.New()

// Engine answers "which dweets can this viewer see, in what order".
type Engine struct {
	store    store.StoreInterface
	pageSize int
}

// New creates a feed engine with a fixed page size.
func New(st store.StoreInterface, pageSize int) *Engine {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Engine{store: st, pageSize: pageSize}
}

// PageSize returns the fixed page size used for every query.
func (e *Engine) PageSize() int {
	return e.pageSize
}

// Page returns one page of the feed for the given viewer, newest first.
//
// An empty viewerAccountID means an anonymous request: the whole global
// timeline is visible. An authenticated viewer sees exactly the dweets
// authored by the accounts in their follow set, which includes themselves
// through the creation-time self-edge.
func (e *Engine) Page(viewerAccountID string, page int) ([]models.Dweet, error) {
	if viewerAccountID == "" {
		return e.store.ListDweets(page, e.pageSize)
	}

	profile, err := e.store.GetProfile(viewerAccountID)
	if err != nil {
		return nil, err
	}

	following, err := e.store.GetFollowing(profile.ID)
	if err != nil {
		return nil, err
	}

	authorIDs := make([]string, 0, len(following))
	for _, p := range following {
		authorIDs = append(authorIDs, p.AccountID)
	}

	logg.Debug("feed", "Resolving feed for "+profile.Username)
	return e.store.ListDweetsByAuthors(authorIDs, page, e.pageSize)
}
