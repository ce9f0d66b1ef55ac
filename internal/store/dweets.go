package store

import (
	"sort"
	"time"

	"example.com/dwitter/internal/models"
	"github.com/gocql/gocql"
)

// --- Dweet operations ---

// CreateDweet validates the body and writes the dweet into all three query
// tables in one logged batch. The id is a timeuuid so the clustering order
// breaks created_at ties by insertion order.
func (s *Store) CreateDweet(authorID, authorUsername, body string) (models.Dweet, error) {
	trimmed, err := models.ValidateDweetBody(body)
	if err != nil {
		return models.Dweet{}, err
	}

	d := models.Dweet{
		ID:             gocql.TimeUUID().String(),
		AuthorID:       authorID,
		AuthorUsername: authorUsername,
		Body:           trimmed,
		Created:        time.Now().UTC(),
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`INSERT INTO dweets (bucket, created_at, id, author_id, author_username, body) VALUES (?, ?, ?, ?, ?, ?)`,
		directoryBucket, d.Created, d.ID, d.AuthorID, d.AuthorUsername, d.Body)
	batch.Query(`INSERT INTO dweets_by_author (author_id, created_at, id, author_username, body) VALUES (?, ?, ?, ?, ?)`,
		d.AuthorID, d.Created, d.ID, d.AuthorUsername, d.Body)
	batch.Query(`INSERT INTO dweets_by_id (id, author_id, created_at, author_username, body) VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.AuthorID, d.Created, d.AuthorUsername, d.Body)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create dweet", err)
		return models.Dweet{}, err
	}

	logg.Info("store", "Dweet created by "+authorUsername)
	return d, nil
}

// ListDweets pages through the global timeline, newest first.
func (s *Store) ListDweets(page, pageSize int) ([]models.Dweet, error) {
	iter := s.Session.Query(`
		SELECT id, author_id, author_username, body, created_at
		FROM dweets WHERE bucket = ? LIMIT ?`,
		directoryBucket, pageLimit(page, pageSize),
	).Iter()

	var res []models.Dweet
	var d models.Dweet
	for iter.Scan(&d.ID, &d.AuthorID, &d.AuthorUsername, &d.Body, &d.Created) {
		res = append(res, d)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list dweets", err)
		return nil, err
	}

	return pageSlice(res, page, pageSize), nil
}

// ListDweetsByAuthors merges the per-author partitions of the given
// accounts into one newest-first page. Each partition is already ordered,
// so reading pageLimit rows per author is enough to fill the page.
func (s *Store) ListDweetsByAuthors(authorIDs []string, page, pageSize int) ([]models.Dweet, error) {
	limit := pageLimit(page, pageSize)

	var merged []models.Dweet
	for _, authorID := range authorIDs {
		iter := s.Session.Query(`
			SELECT id, author_id, author_username, body, created_at
			FROM dweets_by_author WHERE author_id = ? LIMIT ?`,
			authorID, limit,
		).Iter()

		var d models.Dweet
		for iter.Scan(&d.ID, &d.AuthorID, &d.AuthorUsername, &d.Body, &d.Created) {
			merged = append(merged, d)
		}
		if err := iter.Close(); err != nil {
			logg.Error("store", "Failed to list dweets by author", err)
			return nil, err
		}
	}

	SortDweets(merged)
	return pageSlice(merged, page, pageSize), nil
}

// DeleteDweet removes one dweet from every query table. Unknown ids are a
// no-op so moderation replays stay harmless.
func (s *Store) DeleteDweet(dweetID string) error {
	var authorID string
	var created time.Time
	if err := s.Session.Query(
		`SELECT author_id, created_at FROM dweets_by_id WHERE id = ?`,
		dweetID,
	).Scan(&authorID, &created); err != nil {
		if err == gocql.ErrNotFound {
			return nil
		}
		logg.Error("store", "Failed to look up dweet for deletion", err)
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM dweets WHERE bucket = ? AND created_at = ? AND id = ?`,
		directoryBucket, created, dweetID)
	batch.Query(`DELETE FROM dweets_by_author WHERE author_id = ? AND created_at = ? AND id = ?`,
		authorID, created, dweetID)
	batch.Query(`DELETE FROM dweets_by_id WHERE id = ?`, dweetID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete dweet", err)
		return err
	}

	logg.Info("store", "Dweet deleted: "+dweetID)
	return nil
}

// DeleteAllDweets truncates every dweet table.
func (s *Store) DeleteAllDweets() error {
	for _, table := range []string{"dweets", "dweets_by_author", "dweets_by_id"} {
		if err := s.Session.Query(`TRUNCATE ` + table).Exec(); err != nil {
			logg.Error("store", "Failed to truncate "+table, err)
			return err
		}
	}

	logg.Info("store", "All dweets deleted")
	return nil
}

// --- Ordering and pagination helpers ---

// SortDweets orders dweets newest first: created_at descending, ties broken
// by the time embedded in the timeuuid id, i.e. insertion order. The mock
// store shares this comparator so tests observe the same total order as the
// clustering keys produce.
func SortDweets(ds []models.Dweet) {
	sort.SliceStable(ds, func(i, j int) bool {
		if !ds[i].Created.Equal(ds[j].Created) {
			return ds[i].Created.After(ds[j].Created)
		}
		return timeuuidAfter(ds[i].ID, ds[j].ID)
	})
}

// timeuuidAfter reports whether timeuuid a was generated after b. Falls
// back to a plain string comparison for non-uuid ids in tests.
func timeuuidAfter(a, b string) bool {
	ua, errA := gocql.ParseUUID(a)
	ub, errB := gocql.ParseUUID(b)
	if errA != nil || errB != nil || ua.Version() != 1 || ub.Version() != 1 {
		return a > b
	}
	return ua.Timestamp() > ub.Timestamp()
}

// pageLimit is the number of rows to read to serve 1-based page n.
func pageLimit(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return page * pageSize
}

// pageSlice cuts the requested page out of an ordered result set.
func pageSlice[T any](items []T, page, pageSize int) []T {
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
