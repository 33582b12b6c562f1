//go:build !integration

package model

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

// --- Title Derivation Tests ---

func TestDeriveTitle(t *testing.T) {
	t.Run("should keep short text unchanged", func(t *testing.T) {
		if got := DeriveTitle("Hello"); got != "Hello" {
			t.Errorf("expected 'Hello', got %q", got)
		}
	})

	t.Run("should keep text of exactly thirty characters", func(t *testing.T) {
		text := "abcdefghijklmnopqrstuvwxyz1234"
		if utf8.RuneCountInString(text) != 30 {
			t.Fatalf("test input must be 30 runes, is %d", utf8.RuneCountInString(text))
		}
		if got := DeriveTitle(text); got != text {
			t.Errorf("expected boundary input unchanged, got %q", got)
		}
	})

	t.Run("should cut long text to twenty-seven plus ellipsis", func(t *testing.T) {
		text := "World, this message is definitely longer than thirty characters"
		got := DeriveTitle(text)
		want := "World, this message is defi..."
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
		if utf8.RuneCountInString(got) != 30 {
			t.Errorf("expected 30 runes, got %d", utf8.RuneCountInString(got))
		}
	})

	t.Run("should cut by runes not bytes", func(t *testing.T) {
		text := strings.Repeat("日本語テキスト", 6)
		got := DeriveTitle(text)
		if utf8.RuneCountInString(got) != 30 {
			t.Errorf("expected 30 runes, got %d (%q)", utf8.RuneCountInString(got), got)
		}
		if !strings.HasSuffix(got, "...") {
			t.Errorf("expected ellipsis suffix, got %q", got)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncation produced invalid UTF-8: %q", got)
		}
		if !strings.HasPrefix(text, strings.TrimSuffix(got, "...")) {
			t.Errorf("truncated content is not a prefix of the input: %q", got)
		}
	})

	t.Run("should keep empty text empty", func(t *testing.T) {
		if got := DeriveTitle(""); got != "" {
			t.Errorf("expected empty title, got %q", got)
		}
	})
}

// --- Message Tests ---

func TestNewMessages(t *testing.T) {
	at := time.Date(2026, 3, 14, 15, 4, 5, 0, time.UTC)

	t.Run("should stamp a user message", func(t *testing.T) {
		m := NewUserMessage("question", at)
		if !m.IsUser {
			t.Error("expected IsUser to be true")
		}
		if m.Content != "question" {
			t.Errorf("expected content 'question', got %q", m.Content)
		}
		if m.Timestamp != "3:04PM" {
			t.Errorf("expected display timestamp '3:04PM', got %q", m.Timestamp)
		}
	})

	t.Run("should stamp an assistant message", func(t *testing.T) {
		m := NewAssistantMessage("answer", at)
		if m.IsUser {
			t.Error("expected IsUser to be false")
		}
		if m.Content != "answer" {
			t.Errorf("expected content 'answer', got %q", m.Content)
		}
	})
}

func TestCloneMessages(t *testing.T) {
	t.Run("should keep nil nil", func(t *testing.T) {
		if got := CloneMessages(nil); got != nil {
			t.Errorf("expected nil, got %v", got)
		}
	})

	t.Run("should isolate the copy from the original", func(t *testing.T) {
		orig := []Message{NewUserMessage("a", time.Now()), NewAssistantMessage("b", time.Now())}
		cp := CloneMessages(orig)
		cp[0].Content = "tampered"
		if orig[0].Content != "a" {
			t.Errorf("clone mutation leaked into the original: %q", orig[0].Content)
		}
		if len(cp) != 2 {
			t.Errorf("expected 2 messages, got %d", len(cp))
		}
	})
}
