package store

import (
	"fmt"
	"time"

	"example.com/dwitter/internal/models"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// directoryBucket is the single partition key of the profile_directory and
// dweets timeline tables. A reference-scale deployment fits in one
// partition; sharding the bucket is a schema change, not a code change.
const directoryBucket = 0

// --- Account operations ---

// CreateAccount inserts a new account, claiming the username with a
// lightweight transaction. Returns models.ErrConflict when the username is
// already taken.
func (s *Store) CreateAccount(username, passwordHash string) (models.Account, error) {
	id := gocql.TimeUUID().String()
	now := time.Now().UTC()

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO accounts_by_username (username, account_id)
		VALUES (?, ?) IF NOT EXISTS`,
		username, id,
	).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to claim username", err)
		return models.Account{}, err
	}
	if !applied {
		return models.Account{}, fmt.Errorf("username %q: %w", username, models.ErrConflict)
	}

	if err := s.Session.Query(`
		INSERT INTO accounts (id, username, password_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		id, username, passwordHash, now,
	).Exec(); err != nil {
		logg.Error("store", "Failed to create account", err)
		return models.Account{}, err
	}

	logg.Info("store", "Account created: "+username)
	return models.Account{ID: id, Username: username, PasswordHash: passwordHash, Created: now}, nil
}

// GetAccountByUsername resolves a username to the full account row.
func (s *Store) GetAccountByUsername(username string) (models.Account, error) {
	var id string
	if err := s.Session.Query(
		`SELECT account_id FROM accounts_by_username WHERE username = ?`,
		username,
	).Scan(&id); err != nil {
		if err == gocql.ErrNotFound {
			return models.Account{}, fmt.Errorf("account %q: %w", username, models.ErrNotFound)
		}
		logg.Error("store", "Failed to query account by username", err)
		return models.Account{}, err
	}

	var acc models.Account
	if err := s.Session.Query(
		`SELECT id, username, password_hash, created_at FROM accounts WHERE id = ?`,
		id,
	).Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &acc.Created); err != nil {
		if err == gocql.ErrNotFound {
			return models.Account{}, fmt.Errorf("account %q: %w", username, models.ErrNotFound)
		}
		logg.Error("store", "Failed to query account row", err)
		return models.Account{}, err
	}
	return acc, nil
}

// --- Profile operations ---

// CreateProfile inserts the one-per-account profile row and everything that
// hangs off it: the username lookup row, the directory row and the
// permanent self-edge. The profile row itself is claimed with a lightweight
// transaction; a second invocation for the same account is a caller
// contract violation and fails with models.ErrConflict.
func (s *Store) CreateProfile(accountID, username string) (models.Profile, error) {
	profileID := uuid.NewString()
	now := time.Now().UTC()

	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO profiles (account_id, profile_id, username, created_at)
		VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		accountID, profileID, username, now,
	).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create profile", err)
		return models.Profile{}, err
	}
	if !applied {
		return models.Profile{}, fmt.Errorf("profile for account %s: %w", accountID, models.ErrConflict)
	}

	p := models.Profile{ID: profileID, AccountID: accountID, Username: username, Created: now}

	// Lookup rows and the self-edge land together. The logged batch keeps
	// them atomic relative to each other; the CAS row above guards
	// uniqueness.
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`INSERT INTO profiles_by_username (username, profile_id, account_id, created_at) VALUES (?, ?, ?, ?)`,
		username, profileID, accountID, now)
	batch.Query(`INSERT INTO profile_directory (bucket, username, profile_id, account_id) VALUES (?, ?, ?, ?)`,
		directoryBucket, username, profileID, accountID)
	batch.Query(`INSERT INTO follows (follower_id, target_id, target_account_id, target_username) VALUES (?, ?, ?, ?)`,
		profileID, profileID, accountID, username)
	batch.Query(`INSERT INTO followers_by_target (target_id, follower_id, follower_account_id, follower_username) VALUES (?, ?, ?, ?)`,
		profileID, profileID, accountID, username)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to write profile lookup rows", err)
		return models.Profile{}, err
	}

	logg.Info("store", "Profile created for "+username)
	return p, nil
}

// GetProfile returns the profile attached to an account.
func (s *Store) GetProfile(accountID string) (models.Profile, error) {
	var p models.Profile
	if err := s.Session.Query(
		`SELECT account_id, profile_id, username, created_at FROM profiles WHERE account_id = ?`,
		accountID,
	).Scan(&p.AccountID, &p.ID, &p.Username, &p.Created); err != nil {
		if err == gocql.ErrNotFound {
			return models.Profile{}, fmt.Errorf("profile for account %s: %w", accountID, models.ErrNotFound)
		}
		logg.Error("store", "Failed to query profile", err)
		return models.Profile{}, err
	}
	return p, nil
}

// GetProfileByUsername resolves a username to its profile.
func (s *Store) GetProfileByUsername(username string) (models.Profile, error) {
	var p models.Profile
	if err := s.Session.Query(
		`SELECT username, profile_id, account_id, created_at FROM profiles_by_username WHERE username = ?`,
		username,
	).Scan(&p.Username, &p.ID, &p.AccountID, &p.Created); err != nil {
		if err == gocql.ErrNotFound {
			return models.Profile{}, fmt.Errorf("profile %q: %w", username, models.ErrNotFound)
		}
		logg.Error("store", "Failed to query profile by username", err)
		return models.Profile{}, err
	}
	return p, nil
}

// ListProfiles pages through the profile directory alphabetically by
// username. A non-empty excludeAccountID drops that account's profile from
// the results, keeping the page full.
func (s *Store) ListProfiles(page, pageSize int, excludeAccountID string) ([]models.Profile, error) {
	limit := pageLimit(page, pageSize)
	if excludeAccountID != "" {
		limit++
	}

	iter := s.Session.Query(`
		SELECT username, profile_id, account_id
		FROM profile_directory WHERE bucket = ? LIMIT ?`,
		directoryBucket, limit,
	).Iter()

	var all []models.Profile
	var p models.Profile
	for iter.Scan(&p.Username, &p.ID, &p.AccountID) {
		if p.AccountID != excludeAccountID {
			all = append(all, p)
		}
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list profiles", err)
		return nil, err
	}

	return pageSlice(all, page, pageSize), nil
}

// --- Follow graph operations ---

// AddFollow inserts a directed edge. Cassandra inserts are upserts, so
// re-following is a natural no-op.
func (s *Store) AddFollow(follower, target models.Profile) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`INSERT INTO follows (follower_id, target_id, target_account_id, target_username) VALUES (?, ?, ?, ?)`,
		follower.ID, target.ID, target.AccountID, target.Username)
	batch.Query(`INSERT INTO followers_by_target (target_id, follower_id, follower_account_id, follower_username) VALUES (?, ?, ?, ?)`,
		target.ID, follower.ID, follower.AccountID, follower.Username)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create follow edge", err)
		return err
	}

	logg.Info("store", follower.Username+" follows "+target.Username)
	return nil
}

// RemoveFollow deletes a directed edge. Removing an absent edge is a no-op.
// The self-edge is permanent: equal follower and target leave the graph
// untouched.
func (s *Store) RemoveFollow(follower, target models.Profile) error {
	if follower.ID == target.ID {
		return nil
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM follows WHERE follower_id = ? AND target_id = ?`,
		follower.ID, target.ID)
	batch.Query(`DELETE FROM followers_by_target WHERE target_id = ? AND follower_id = ?`,
		target.ID, follower.ID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to remove follow edge", err)
		return err
	}

	logg.Info("store", follower.Username+" unfollows "+target.Username)
	return nil
}

// GetFollowing lists the profiles a profile follows, the self-edge included.
func (s *Store) GetFollowing(profileID string) ([]models.Profile, error) {
	iter := s.Session.Query(`
		SELECT target_id, target_account_id, target_username
		FROM follows WHERE follower_id = ?`,
		profileID,
	).Iter()

	var res []models.Profile
	var p models.Profile
	for iter.Scan(&p.ID, &p.AccountID, &p.Username) {
		res = append(res, p)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get following set", err)
		return nil, err
	}
	return res, nil
}

// GetFollowers lists the profiles following a profile.
func (s *Store) GetFollowers(profileID string) ([]models.Profile, error) {
	iter := s.Session.Query(`
		SELECT follower_id, follower_account_id, follower_username
		FROM followers_by_target WHERE target_id = ?`,
		profileID,
	).Iter()

	var res []models.Profile
	var p models.Profile
	for iter.Scan(&p.ID, &p.AccountID, &p.Username) {
		res = append(res, p)
	}
	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to get followers", err)
		return nil, err
	}
	return res, nil
}
