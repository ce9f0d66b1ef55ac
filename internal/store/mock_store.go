package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"example.com/dwitter/internal/models"
	"github.com/gocql/gocql"
	"github.com/google/uuid"
)

// MockStore simulates Cassandra operations for testing.
type MockStore struct {
	Accounts   map[string]models.Account            // keyed by username
	Profiles   map[string]models.Profile            // keyed by account id
	Following  map[string]map[string]models.Profile // follower profile id -> target profile id
	FollowedBy map[string]map[string]models.Profile // target profile id -> follower profile id
	Dweets     []models.Dweet
	ShouldFail bool // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Accounts:   make(map[string]models.Account),
		Profiles:   make(map[string]models.Profile),
		Following:  make(map[string]map[string]models.Profile),
		FollowedBy: make(map[string]map[string]models.Profile),
	}
}

func (m *MockStore) Close() {}

// --- Accounts ---

func (m *MockStore) CreateAccount(username, passwordHash string) (models.Account, error) {
	if m.ShouldFail {
		return models.Account{}, errors.New("mock: create account failed")
	}
	if _, exists := m.Accounts[username]; exists {
		return models.Account{}, fmt.Errorf("username %q: %w", username, models.ErrConflict)
	}
	acc := models.Account{
		ID:           gocql.TimeUUID().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Created:      time.Now().UTC(),
	}
	m.Accounts[username] = acc
	return acc, nil
}

func (m *MockStore) GetAccountByUsername(username string) (models.Account, error) {
	if m.ShouldFail {
		return models.Account{}, errors.New("mock: get account failed")
	}
	acc, ok := m.Accounts[username]
	if !ok {
		return models.Account{}, fmt.Errorf("account %q: %w", username, models.ErrNotFound)
	}
	return acc, nil
}

// --- Profiles and follow graph ---

func (m *MockStore) CreateProfile(accountID, username string) (models.Profile, error) {
	if m.ShouldFail {
		return models.Profile{}, errors.New("mock: create profile failed")
	}
	if _, exists := m.Profiles[accountID]; exists {
		return models.Profile{}, fmt.Errorf("profile for account %s: %w", accountID, models.ErrConflict)
	}
	p := models.Profile{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Username:  username,
		Created:   time.Now().UTC(),
	}
	m.Profiles[accountID] = p
	m.addEdge(p, p) // permanent self-edge
	return p, nil
}

func (m *MockStore) GetProfile(accountID string) (models.Profile, error) {
	if m.ShouldFail {
		return models.Profile{}, errors.New("mock: get profile failed")
	}
	p, ok := m.Profiles[accountID]
	if !ok {
		return models.Profile{}, fmt.Errorf("profile for account %s: %w", accountID, models.ErrNotFound)
	}
	return p, nil
}

func (m *MockStore) GetProfileByUsername(username string) (models.Profile, error) {
	if m.ShouldFail {
		return models.Profile{}, errors.New("mock: get profile failed")
	}
	for _, p := range m.Profiles {
		if p.Username == username {
			return p, nil
		}
	}
	return models.Profile{}, fmt.Errorf("profile %q: %w", username, models.ErrNotFound)
}

func (m *MockStore) ListProfiles(page, pageSize int, excludeAccountID string) ([]models.Profile, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: list profiles failed")
	}
	var all []models.Profile
	for _, p := range m.Profiles {
		if p.AccountID != excludeAccountID {
			all = append(all, p)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Username < all[j].Username })
	return pageSlice(all, page, pageSize), nil
}

func (m *MockStore) AddFollow(follower, target models.Profile) error {
	if m.ShouldFail {
		return errors.New("mock: follow failed")
	}
	m.addEdge(follower, target)
	return nil
}

func (m *MockStore) RemoveFollow(follower, target models.Profile) error {
	if m.ShouldFail {
		return errors.New("mock: unfollow failed")
	}
	if follower.ID == target.ID {
		return nil
	}
	if set, ok := m.Following[follower.ID]; ok {
		delete(set, target.ID)
	}
	if set, ok := m.FollowedBy[target.ID]; ok {
		delete(set, follower.ID)
	}
	return nil
}

func (m *MockStore) GetFollowing(profileID string) ([]models.Profile, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: get following failed")
	}
	return edgeList(m.Following[profileID]), nil
}

func (m *MockStore) GetFollowers(profileID string) ([]models.Profile, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: get followers failed")
	}
	return edgeList(m.FollowedBy[profileID]), nil
}

func (m *MockStore) addEdge(follower, target models.Profile) {
	if m.Following[follower.ID] == nil {
		m.Following[follower.ID] = make(map[string]models.Profile)
	}
	if m.FollowedBy[target.ID] == nil {
		m.FollowedBy[target.ID] = make(map[string]models.Profile)
	}
	m.Following[follower.ID][target.ID] = target
	m.FollowedBy[target.ID][follower.ID] = follower
}

func edgeList(set map[string]models.Profile) []models.Profile {
	var res []models.Profile
	for _, p := range set {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Username < res[j].Username })
	return res
}

// --- Dweets ---

func (m *MockStore) CreateDweet(authorID, authorUsername, body string) (models.Dweet, error) {
	if m.ShouldFail {
		return models.Dweet{}, errors.New("mock: create dweet failed")
	}
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
	m.Dweets = append(m.Dweets, d)
	return d, nil
}

func (m *MockStore) ListDweets(page, pageSize int) ([]models.Dweet, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: list dweets failed")
	}
	all := append([]models.Dweet(nil), m.Dweets...)
	SortDweets(all)
	return pageSlice(all, page, pageSize), nil
}

func (m *MockStore) ListDweetsByAuthors(authorIDs []string, page, pageSize int) ([]models.Dweet, error) {
	if m.ShouldFail {
		return nil, errors.New("mock: list dweets by authors failed")
	}
	allowed := make(map[string]bool, len(authorIDs))
	for _, id := range authorIDs {
		allowed[id] = true
	}
	var res []models.Dweet
	for _, d := range m.Dweets {
		if allowed[d.AuthorID] {
			res = append(res, d)
		}
	}
	SortDweets(res)
	return pageSlice(res, page, pageSize), nil
}

func (m *MockStore) DeleteDweet(dweetID string) error {
	if m.ShouldFail {
		return errors.New("mock: delete dweet failed")
	}
	for i, d := range m.Dweets {
		if d.ID == dweetID {
			m.Dweets = append(m.Dweets[:i], m.Dweets[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *MockStore) DeleteAllDweets() error {
	if m.ShouldFail {
		return errors.New("mock: delete all dweets failed")
	}
	m.Dweets = nil
	return nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateAccount(username, passwordHash string) (models.Account, error) {
	return models.Account{}, errors.New("mock store create account failed")
}

func (m *MockStoreFail) GetAccountByUsername(username string) (models.Account, error) {
	return models.Account{}, errors.New("mock store get account failed")
}

func (m *MockStoreFail) CreateProfile(accountID, username string) (models.Profile, error) {
	return models.Profile{}, errors.New("mock store create profile failed")
}

func (m *MockStoreFail) GetProfile(accountID string) (models.Profile, error) {
	return models.Profile{}, errors.New("mock store get profile failed")
}

func (m *MockStoreFail) GetProfileByUsername(username string) (models.Profile, error) {
	return models.Profile{}, errors.New("mock store get profile by username failed")
}

func (m *MockStoreFail) ListProfiles(page, pageSize int, excludeAccountID string) ([]models.Profile, error) {
	return nil, errors.New("mock store list profiles failed")
}

func (m *MockStoreFail) AddFollow(follower, target models.Profile) error {
	return errors.New("mock store add follow failed")
}

func (m *MockStoreFail) RemoveFollow(follower, target models.Profile) error {
	return errors.New("mock store remove follow failed")
}

func (m *MockStoreFail) GetFollowing(profileID string) ([]models.Profile, error) {
	return nil, errors.New("mock store get following failed")
}

func (m *MockStoreFail) GetFollowers(profileID string) ([]models.Profile, error) {
	return nil, errors.New("mock store get followers failed")
}

func (m *MockStoreFail) CreateDweet(authorID, authorUsername, body string) (models.Dweet, error) {
	return models.Dweet{}, errors.New("mock store create dweet failed")
}

func (m *MockStoreFail) ListDweets(page, pageSize int) ([]models.Dweet, error) {
	return nil, errors.New("mock store list dweets failed")
}

func (m *MockStoreFail) ListDweetsByAuthors(authorIDs []string, page, pageSize int) ([]models.Dweet, error) {
	return nil, errors.New("mock store list dweets by authors failed")
}

func (m *MockStoreFail) DeleteDweet(dweetID string) error {
	return errors.New("mock store delete dweet failed")
}

func (m *MockStoreFail) DeleteAllDweets() error {
	return errors.New("mock store delete all dweets failed")
}
