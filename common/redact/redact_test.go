package redact_test

import (
	"strings"
	"testing"

	"github.com/bdobrica/Kotae/common/redact"
)

func TestString(t *testing.T) {
	key := "sk-test-abcdef123456"
	msg := "invalid api key provided: sk-test-abcdef123456"

	got := redact.String(msg, key)
	if strings.Contains(got, key) {
		t.Fatalf("key survived redaction: %q", got)
	}
	if got != "invalid api key provided: [REDACTED]" {
		t.Fatalf("got %q", got)
	}
}

func TestString_MultipleValues(t *testing.T) {
	got := redact.String("a=first b=second", "first", "second")
	if got != "a=[REDACTED] b=[REDACTED]" {
		t.Fatalf("got %q", got)
	}
}

func TestString_SkipsShortValues(t *testing.T) {
	// Short values would redact common substrings all over the text.
	got := redact.String("the cat sat", "at")
	if got != "the cat sat" {
		t.Fatalf("got %q", got)
	}
}

func TestString_NoValues(t *testing.T) {
	if got := redact.String("unchanged"); got != "unchanged" {
		t.Fatalf("got %q", got)
	}
}
