package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	appkafka "example.com/dwitter/internal/broker"
	"example.com/dwitter/internal/models"
	"example.com/dwitter/internal/store"
	"github.com/golang-jwt/jwt/v5"
)

//
// --- Helpers ---
//

// generate JWT token for test account
func makeTestJWT(accountID string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID,
		"exp":        time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return tokenStr
}

// create HTTP request with JWT token
func sendJSONRequest(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		defer resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T) (*Server, *store.MockStore, *httptest.Server) {
	t.Helper()
	os.Setenv("JWT_SECRET", "test-secret")

	mockStore := store.NewMock()
	s := NewServer(mockStore, &appkafka.MockKafka{Store: mockStore}, 10)

	return s, mockStore, httptest.NewServer(s.routes())
}

// helper: register an account, returning its id and token
func registerHelper(t *testing.T, ts *httptest.Server, username string) (string, string) {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/accounts",
		map[string]any{"username": username, "password": "hunter2"}, "", http.StatusCreated)
	defer resp.Body.Close()

	var res map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	id, _ := res["account_id"].(string)
	token, _ := res["token"].(string)
	if id == "" || token == "" {
		t.Fatalf("unexpected register response: %v", res)
	}
	return id, token
}

// helper: get the feed as the given viewer ("" = anonymous)
func feedHelper(t *testing.T, ts *httptest.Server, token string) []models.Dweet {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodGet, ts.URL+"/feed", nil, token, http.StatusOK)
	defer resp.Body.Close()

	var dweets []models.Dweet
	if err := json.NewDecoder(resp.Body).Decode(&dweets); err != nil {
		t.Fatalf("decode feed failed: %v", err)
	}
	return dweets
}

func feedBodies(ds []models.Dweet) []string {
	res := make([]string, 0, len(ds))
	for _, d := range ds {
		res = append(res, d.Body)
	}
	return res
}

func feedHas(ds []models.Dweet, body string) bool {
	for _, d := range ds {
		if d.Body == body {
			return true
		}
	}
	return false
}

//
// --- Tests ---
//

// registration creates the account, its profile and the self-edge
func TestRegister_CreatesProfileWithSelfEdge(t *testing.T) {
	_, mockStore, ts := setupTestServer(t)
	defer ts.Close()

	id, _ := registerHelper(t, ts, "almaz")

	profile, err := mockStore.GetProfile(id)
	if err != nil {
		t.Fatalf("profile missing after registration: %v", err)
	}

	following, err := mockStore.GetFollowing(profile.ID)
	if err != nil {
		t.Fatalf("get following failed: %v", err)
	}
	if len(following) != 1 || following[0].ID != profile.ID {
		t.Fatalf("expected only the self-edge, got %+v", following)
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	_, mockStore, ts := setupTestServer(t)
	defer ts.Close()

	registerHelper(t, ts, "almaz")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/accounts",
		map[string]any{"username": "almaz", "password": "other"}, "", http.StatusConflict)

	if len(mockStore.Profiles) != 1 {
		t.Fatalf("duplicate registration must not create a second profile")
	}
}

func TestRegister_InvalidBody(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	body := []byte(`{"username":123}`)
	resp, err := http.Post(ts.URL+"/accounts", "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("http.Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestLogin(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	registerHelper(t, ts, "almaz")

	// correct credentials
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/login",
		map[string]any{"username": "almaz", "password": "hunter2"}, "", http.StatusOK)
	var res map[string]any
	json.NewDecoder(resp.Body).Decode(&res)
	resp.Body.Close()
	if res["token"] == "" {
		t.Fatalf("login response missing token: %v", res)
	}

	// wrong password
	sendJSONRequest(t, http.MethodPost, ts.URL+"/login",
		map[string]any{"username": "almaz", "password": "wrong"}, "", http.StatusUnauthorized)

	// unknown user
	sendJSONRequest(t, http.MethodPost, ts.URL+"/login",
		map[string]any{"username": "nobody", "password": "hunter2"}, "", http.StatusUnauthorized)
}

func TestCreateDweet_BodyLimits(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	_, token := registerHelper(t, ts, "almaz")

	// exactly 140 characters is accepted
	sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets",
		map[string]any{"body": strings.Repeat("a", 140)}, token, http.StatusCreated)

	// 141 characters is rejected
	sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets",
		map[string]any{"body": strings.Repeat("a", 141)}, token, http.StatusBadRequest)

	// whitespace-only is rejected
	sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets",
		map[string]any{"body": "   "}, token, http.StatusBadRequest)
}

func TestCreateDweet_Unauthenticated(t *testing.T) {
	_, mockStore, ts := setupTestServer(t)
	defer ts.Close()

	sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets",
		map[string]any{"body": "hello"}, "", http.StatusUnauthorized)

	if len(mockStore.Dweets) != 0 {
		t.Fatalf("unauthenticated request created a dweet")
	}
}

// full flow: dweet -> anonymous and authenticated feeds -> follow -> unfollow
func TestFeedVisibilityFlow(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	_, u1Token := registerHelper(t, ts, "user_1")
	_, u2Token := registerHelper(t, ts, "user_2")

	d1 := "this is a dweet by user_1"
	d2 := "this is a dweet by user_2"
	sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets", map[string]any{"body": d1}, u1Token, http.StatusCreated)
	sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets", map[string]any{"body": d2}, u2Token, http.StatusCreated)

	// anonymous viewers see both dweets
	anon := feedHelper(t, ts, "")
	if !feedHas(anon, d1) || !feedHas(anon, d2) {
		t.Fatalf("anonymous feed incomplete: %v", feedBodies(anon))
	}

	// user_1 follows only itself, so only d1 is visible
	own := feedHelper(t, ts, u1Token)
	if !feedHas(own, d1) || feedHas(own, d2) {
		t.Fatalf("authenticated feed wrong before follow: %v", feedBodies(own))
	}

	// user_1 follows user_2
	sendJSONRequest(t, http.MethodPost, ts.URL+"/profiles/user_2/follow",
		map[string]any{"follow": "follow"}, u1Token, http.StatusOK)
	both := feedHelper(t, ts, u1Token)
	if !feedHas(both, d1) || !feedHas(both, d2) {
		t.Fatalf("feed after follow incomplete: %v", feedBodies(both))
	}

	// unfollow reverts the feed
	sendJSONRequest(t, http.MethodPost, ts.URL+"/profiles/user_2/follow",
		map[string]any{"follow": "unfollow"}, u1Token, http.StatusOK)
	reverted := feedHelper(t, ts, u1Token)
	if !feedHas(reverted, d1) || feedHas(reverted, d2) {
		t.Fatalf("feed after unfollow wrong: %v", feedBodies(reverted))
	}
}

func TestFeed_NewestFirst(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	_, token := registerHelper(t, ts, "almaz")
	for _, body := range []string{"first", "second", "third"} {
		sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets", map[string]any{"body": body}, token, http.StatusCreated)
	}

	got := feedBodies(feedHelper(t, ts, token))
	want := []string{"third", "second", "first"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("wrong feed order: got %v, want %v", got, want)
		}
	}
}

// malformed follow payloads are absorbed without touching the graph
func TestFollow_MalformedPayloads(t *testing.T) {
	_, mockStore, ts := setupTestServer(t)
	defer ts.Close()

	u1ID, u1Token := registerHelper(t, ts, "user_1")
	registerHelper(t, ts, "user_2")

	p1, _ := mockStore.GetProfile(u1ID)

	payloads := []string{
		`{"unexpected_key": "follow"}`,
		`{"follow": "tacos"}`,
		`not json at all`,
	}
	for _, payload := range payloads {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/profiles/user_2/follow",
			bytes.NewBufferString(payload))
		if err != nil {
			t.Fatalf("NewRequest failed: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+u1Token)

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("malformed payload %q: expected 200, got %d", payload, resp.StatusCode)
		}

		following, _ := mockStore.GetFollowing(p1.ID)
		if len(following) != 1 {
			t.Fatalf("malformed payload %q changed the graph: %+v", payload, following)
		}
	}
}

func TestFollow_SelfTargetKeepsSelfEdge(t *testing.T) {
	_, mockStore, ts := setupTestServer(t)
	defer ts.Close()

	u1ID, u1Token := registerHelper(t, ts, "user_1")
	p1, _ := mockStore.GetProfile(u1ID)

	for i := 0; i < 3; i++ {
		sendJSONRequest(t, http.MethodPost, ts.URL+"/profiles/user_1/follow",
			map[string]any{"follow": "unfollow"}, u1Token, http.StatusOK)
	}

	following, _ := mockStore.GetFollowing(p1.ID)
	if len(following) != 1 || following[0].ID != p1.ID {
		t.Fatalf("self-edge lost: %+v", following)
	}
}

func TestFollow_UnknownTarget(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	_, token := registerHelper(t, ts, "user_1")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/profiles/nobody/follow",
		map[string]any{"follow": "follow"}, token, http.StatusNotFound)
}

func TestFollow_Unauthenticated(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	registerHelper(t, ts, "user_1")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/profiles/user_1/follow",
		map[string]any{"follow": "follow"}, "", http.StatusUnauthorized)
}

func TestProfileDetail(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	_, token := registerHelper(t, ts, "user_1")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets",
		map[string]any{"body": "hello"}, token, http.StatusCreated)

	resp := sendJSONRequest(t, http.MethodGet, ts.URL+"/profiles/user_1", nil, "", http.StatusOK)
	defer resp.Body.Close()

	var res struct {
		Profile    models.Profile `json:"profile"`
		Follows    []string       `json:"follows"`
		FollowedBy []string       `json:"followed_by"`
		Dweets     []models.Dweet `json:"dweets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if res.Profile.Username != "user_1" {
		t.Fatalf("wrong profile: %+v", res.Profile)
	}
	if len(res.Dweets) != 1 || res.Dweets[0].Body != "hello" {
		t.Fatalf("profile dweets wrong: %+v", res.Dweets)
	}
	if len(res.Follows) != 1 || res.Follows[0] != "user_1" {
		t.Fatalf("profile should follow itself: %v", res.Follows)
	}

	sendJSONRequest(t, http.MethodGet, ts.URL+"/profiles/nobody", nil, "", http.StatusNotFound)
}

func TestListProfiles(t *testing.T) {
	_, _, ts := setupTestServer(t)
	defer ts.Close()

	_, bToken := registerHelper(t, ts, "bob")
	registerHelper(t, ts, "alice")

	// anonymous: both profiles, alphabetical
	resp := sendJSONRequest(t, http.MethodGet, ts.URL+"/profiles", nil, "", http.StatusOK)
	var profiles []models.Profile
	json.NewDecoder(resp.Body).Decode(&profiles)
	resp.Body.Close()
	if len(profiles) != 2 || profiles[0].Username != "alice" || profiles[1].Username != "bob" {
		t.Fatalf("wrong profile listing: %+v", profiles)
	}

	// authenticated with exclude_self: the viewer drops out
	resp = sendJSONRequest(t, http.MethodGet, ts.URL+"/profiles?exclude_self=true", nil, bToken, http.StatusOK)
	profiles = nil
	json.NewDecoder(resp.Body).Decode(&profiles)
	resp.Body.Close()
	if len(profiles) != 1 || profiles[0].Username != "alice" {
		t.Fatalf("exclude_self listing wrong: %+v", profiles)
	}
}

func TestModeration_DeleteDweet(t *testing.T) {
	os.Setenv("ADMIN_TOKEN", "admin-secret")
	_, mockStore, ts := setupTestServer(t)
	defer ts.Close()

	_, token := registerHelper(t, ts, "almaz")
	resp := sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets",
		map[string]any{"body": "to be removed"}, token, http.StatusCreated)
	var dweet models.Dweet
	json.NewDecoder(resp.Body).Decode(&dweet)
	resp.Body.Close()

	// wrong admin token is rejected
	sendJSONRequest(t, http.MethodDelete, ts.URL+"/dweets/"+dweet.ID, nil, "wrong", http.StatusUnauthorized)
	if len(mockStore.Dweets) != 1 {
		t.Fatalf("rejected takedown deleted a dweet")
	}

	// valid admin token publishes the takedown; MockKafka applies it
	sendJSONRequest(t, http.MethodDelete, ts.URL+"/dweets/"+dweet.ID, nil, "admin-secret", http.StatusAccepted)
	if len(mockStore.Dweets) != 0 {
		t.Fatalf("dweet not deleted: %+v", mockStore.Dweets)
	}
}

func TestModeration_DeleteAll(t *testing.T) {
	os.Setenv("ADMIN_TOKEN", "admin-secret")
	_, mockStore, ts := setupTestServer(t)
	defer ts.Close()

	_, token := registerHelper(t, ts, "almaz")
	for _, body := range []string{"one", "two", "three"} {
		sendJSONRequest(t, http.MethodPost, ts.URL+"/dweets", map[string]any{"body": body}, token, http.StatusCreated)
	}

	sendJSONRequest(t, http.MethodDelete, ts.URL+"/dweets", nil, "admin-secret", http.StatusAccepted)
	if len(mockStore.Dweets) != 0 {
		t.Fatalf("dweets not purged: %+v", mockStore.Dweets)
	}
}

// Kafka write error surfaces as a 500 from moderation endpoints
func TestModeration_KafkaWriteError(t *testing.T) {
	os.Setenv("ADMIN_TOKEN", "admin-secret")
	os.Setenv("JWT_SECRET", "test-secret")

	mockStore := store.NewMock()
	s := NewServer(mockStore, &appkafka.MockKafkaFail{}, 10)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	sendJSONRequest(t, http.MethodDelete, ts.URL+"/dweets", nil, "admin-secret", http.StatusInternalServerError)
}

// Store failure on registration
func TestStoreCreateAccountFail(t *testing.T) {
	os.Setenv("JWT_SECRET", "test-secret")
	s := NewServer(&store.MockStoreFail{}, &appkafka.MockKafka{}, 10)
	ts := httptest.NewServer(s.routes())
	defer ts.Close()

	sendJSONRequest(t, http.MethodPost, ts.URL+"/accounts",
		map[string]any{"username": "almaz", "password": "hunter2"}, "", http.StatusInternalServerError)
}
