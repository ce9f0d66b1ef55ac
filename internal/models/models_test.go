package models

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateDweetBody_Valid(t *testing.T) {
	got, err := ValidateDweetBody("  hello world  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("expected trimmed body, got %q", got)
	}
}

func TestValidateDweetBody_ExactLimit(t *testing.T) {
	body := strings.Repeat("a", MaxDweetRunes)
	got, err := ValidateDweetBody(body)
	if err != nil {
		t.Fatalf("140 characters should be accepted: %v", err)
	}
	if got != body {
		t.Fatalf("body changed: %q", got)
	}
}

func TestValidateDweetBody_TooLong(t *testing.T) {
	_, err := ValidateDweetBody(strings.Repeat("a", MaxDweetRunes+1))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !strings.Contains(ve.Reason, "140") {
		t.Fatalf("too-long reason should mention the limit, got %q", ve.Reason)
	}
}

func TestValidateDweetBody_Empty(t *testing.T) {
	for _, body := range []string{"", "   ", "\n\t"} {
		_, err := ValidateDweetBody(body)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError for %q, got %v", body, err)
		}
		if !strings.Contains(ve.Reason, "empty") {
			t.Fatalf("empty reason should say empty, got %q", ve.Reason)
		}
	}
}

func TestValidateDweetBody_RunesNotBytes(t *testing.T) {
	// 140 multibyte characters are within the limit even though the byte
	// count is far larger.
	body := strings.Repeat("ж", MaxDweetRunes)
	if _, err := ValidateDweetBody(body); err != nil {
		t.Fatalf("rune-counted body rejected: %v", err)
	}
}
