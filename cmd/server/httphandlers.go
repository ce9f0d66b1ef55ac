package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"example.com/dwitter/internal/middleware"
	"example.com/dwitter/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/segmentio/kafka-go"
	"golang.org/x/crypto/bcrypt"
)

// --- Shared helpers ---

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeStoreError maps domain errors to HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	switch {
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, models.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, models.ErrConflict):
		http.Error(w, "already exists", http.StatusConflict)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// pageParam reads the 1-based ?page= query parameter, defaulting to 1.
func pageParam(r *http.Request) int {
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && p > 0 {
		return p
	}
	return 1
}

// issueToken signs a 24h HS256 JWT for the account.
func issueToken(accountID string) (string, error) {
	secret := []byte(os.Getenv("JWT_SECRET"))
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"account_id": accountID,
		"exp":        time.Now().Add(time.Hour * 24).Unix(),
	})
	return token.SignedString(secret)
}

// --- Account handlers ---

// registerHandler handles POST /accounts.
// Expects JSON body: {"username": "example", "password": "secret"}
// Creates the account and, synchronously, its profile with the self-edge.
func (s *Server) registerHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/accounts", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if len(body.Username) == 0 || len(body.Username) > 50 {
		logg.Info("http/accounts", "Invalid username length")
		http.Error(w, "username must be 1-50 characters", http.StatusBadRequest)
		return
	}
	if body.Password == "" {
		http.Error(w, "password must not be empty", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		logg.Error("http/accounts", "Failed to hash password", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	acc, err := s.store.CreateAccount(body.Username, string(hash))
	if err != nil {
		logg.Error("http/accounts", "Failed to create account", err)
		writeStoreError(w, err)
		return
	}

	// The account-lifecycle hook: every new account gets its profile (and
	// the permanent self-edge) here, before the response is written.
	if _, err := s.store.CreateProfile(acc.ID, acc.Username); err != nil {
		logg.Error("http/accounts", "Failed to create profile for new account", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	tokenStr, err := issueToken(acc.ID)
	if err != nil {
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	logg.Info("http/accounts", "Account registered: "+acc.Username)
	writeJSON(w, http.StatusCreated, map[string]any{
		"account_id": acc.ID,
		"token":      tokenStr,
	})
}

// loginHandler handles POST /login.
// Expects JSON body: {"username": "example", "password": "secret"}
func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	acc, err := s.store.GetAccountByUsername(body.Username)
	if err != nil {
		// Same response for unknown users and bad passwords.
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(body.Password)); err != nil {
		logg.Info("http/login", "Failed login attempt for "+body.Username)
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	tokenStr, err := issueToken(acc.ID)
	if err != nil {
		http.Error(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account_id": acc.ID,
		"token":      tokenStr,
	})
}

// --- Dweet handlers ---

// createDweetHandler handles POST /dweets.
// Expects JSON body: {"body": "dweet text"}
// Returns the created dweet. The body must be 1-140 characters after trimming.
func (s *Server) createDweetHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Body string `json:"body"`
	}
	var body req

	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		logg.Error("http/dweets", "Invalid request body", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	viewer, ok := middleware.ViewerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	profile, err := s.store.GetProfile(viewer)
	if err != nil {
		logg.Error("http/dweets", "Failed to resolve author profile", err)
		writeStoreError(w, err)
		return
	}

	dweet, err := s.store.CreateDweet(profile.AccountID, profile.Username, body.Body)
	if err != nil {
		logg.Info("http/dweets", "Rejected dweet from "+profile.Username)
		writeStoreError(w, err)
		return
	}

	logg.Info("http/dweets", "Dweet created by "+profile.Username)
	writeJSON(w, http.StatusCreated, dweet)
}

// feedHandler handles GET /feed?page=N.
// Anonymous viewers get the global timeline; authenticated viewers get
// dweets authored by the accounts they follow (themselves included).
func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	viewer, _ := middleware.ViewerFromContext(r.Context())

	dweets, err := s.feed.Page(viewer, pageParam(r))
	if err != nil {
		logg.Error("http/feed", "Failed to compute feed", err)
		writeStoreError(w, err)
		return
	}

	if dweets == nil {
		dweets = []models.Dweet{}
	}
	writeJSON(w, http.StatusOK, dweets)
}

// --- Profile handlers ---

// listProfilesHandler handles GET /profiles?page=N[&exclude_self=true].
// Profiles are listed alphabetically; exclude_self is honored only for
// authenticated viewers.
func (s *Server) listProfilesHandler(w http.ResponseWriter, r *http.Request) {
	exclude := ""
	if viewer, ok := middleware.ViewerFromContext(r.Context()); ok && r.URL.Query().Get("exclude_self") == "true" {
		exclude = viewer
	}

	profiles, err := s.store.ListProfiles(pageParam(r), s.feed.PageSize(), exclude)
	if err != nil {
		logg.Error("http/profiles", "Failed to list profiles", err)
		writeStoreError(w, err)
		return
	}

	if profiles == nil {
		profiles = []models.Profile{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

// profileDetailHandler handles GET /profiles/{username}?page=N.
// Returns the profile, its follow lists and its own dweets, newest first.
func (s *Server) profileDetailHandler(w http.ResponseWriter, r *http.Request) {
	username := r.PathValue("username")

	profile, err := s.store.GetProfileByUsername(username)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	following, err := s.store.GetFollowing(profile.ID)
	if err != nil {
		logg.Error("http/profiles", "Failed to load following set", err)
		writeStoreError(w, err)
		return
	}
	followers, err := s.store.GetFollowers(profile.ID)
	if err != nil {
		logg.Error("http/profiles", "Failed to load followers", err)
		writeStoreError(w, err)
		return
	}

	dweets, err := s.store.ListDweetsByAuthors([]string{profile.AccountID}, pageParam(r), s.feed.PageSize())
	if err != nil {
		logg.Error("http/profiles", "Failed to load profile dweets", err)
		writeStoreError(w, err)
		return
	}
	if dweets == nil {
		dweets = []models.Dweet{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":     profile,
		"follows":     usernames(following),
		"followed_by": usernames(followers),
		"dweets":      dweets,
	})
}

func usernames(profiles []models.Profile) []string {
	res := make([]string, 0, len(profiles))
	for _, p := range profiles {
		res = append(res, p.Username)
	}
	return res
}

// followHandler handles POST /profiles/{username}/follow.
// Expects JSON body: {"follow": "follow"} or {"follow": "unfollow"}.
// Malformed payloads are absorbed as no-ops; self-targets are ignored.
func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	type req struct {
		Follow string `json:"follow"`
	}
	var body req

	// An undecodable body counts as a malformed action: the mutator turns
	// it into a no-op rather than an error.
	_ = json.NewDecoder(r.Body).Decode(&body)
	defer r.Body.Close()

	viewer, ok := middleware.ViewerFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if err := s.follow.Apply(viewer, r.PathValue("username"), body.Follow); err != nil {
		logg.Error("http/follow", "Follow mutation failed", err)
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Moderation handlers ---

// publishTakedown sends a moderation command to the worker over Kafka.
func (s *Server) publishTakedown(w http.ResponseWriter, cmd models.Takedown) {
	data, err := json.Marshal(cmd)
	if err != nil {
		http.Error(w, "failed to marshal command", http.StatusInternalServerError)
		return
	}

	msg := kafka.Message{
		Key:   []byte("takedown"),
		Value: data,
	}

	if err := s.kafkaWriter.WriteMessages(msg); err != nil {
		logg.Error("http/moderation", "Failed to publish takedown", err)
		http.Error(w, "failed to publish takedown: "+err.Error(), http.StatusInternalServerError)
		return
	}

	logg.Info("http/moderation", "Takedown accepted: "+cmd.Action)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// deleteDweetHandler handles DELETE /dweets/{id}.
func (s *Server) deleteDweetHandler(w http.ResponseWriter, r *http.Request) {
	s.publishTakedown(w, models.Takedown{
		Action:  models.TakedownDeleteDweet,
		DweetID: r.PathValue("id"),
	})
}

// deleteAllDweetsHandler handles DELETE /dweets.
func (s *Server) deleteAllDweetsHandler(w http.ResponseWriter, r *http.Request) {
	s.publishTakedown(w, models.Takedown{Action: models.TakedownDeleteAll})
}
