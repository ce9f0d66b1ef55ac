package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxDweetRunes is the dweet body limit, counted in runes after trimming.
const MaxDweetRunes = 140

// Account is an identity record. The password hash never leaves the store layer.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Created      time.Time `json:"created"`
}

// Profile is the per-account sidecar holding the follow graph. Exactly one
// exists per account, created in the registration path right after the
// account row; its follow set always contains a self-edge.
type Profile struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	Created   time.Time `json:"created"`
}

// Dweet is an append-only short post. Body and Created are immutable after
// creation; the only later mutation is deletion.
type Dweet struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"author_id"`
	AuthorUsername string    `json:"author_username"`
	Body           string    `json:"body"`
	Created        time.Time `json:"created"`
}

// FollowEdge is a directed relation between two profiles.
type FollowEdge struct {
	FollowerID string `json:"follower_id"`
	TargetID   string `json:"target_id"`
}

// Takedown actions carried over the moderation topic.
const (
	TakedownDeleteDweet = "delete_dweet"
	TakedownDeleteAll   = "delete_all"
)

// Takedown is a moderation command published by the server and applied by
// the worker.
type Takedown struct {
	Action  string `json:"action"`
	DweetID string `json:"dweet_id,omitempty"`
}

// ValidateDweetBody trims the body and checks the [1, MaxDweetRunes] rune
// length constraint. Returns the trimmed body, or a *ValidationError whose
// reason distinguishes empty from too-long input.
func ValidateDweetBody(body string) (string, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "", &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(trimmed) > MaxDweetRunes {
		return "", &ValidationError{Field: "body", Reason: "must be at most 140 characters"}
	}
	return trimmed, nil
}
