package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestErrorCarriesContextFieldsAndStack(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: buf})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithUserID(ctx, "user-9")
	log.Error(ctx, "boom", errors.New("boom"))

	entry := buf.String()
	for _, want := range []string{`"request_id":"req-123"`, `"user_id":"user-9"`, `"stack"`, `"service":"test"`} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Fatalf("entry missing %s: %s", want, entry)
		}
	}
}

func TestWarnStackToggle(t *testing.T) {
	withStack := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: withStack, WarnStack: true}).
		Warn(context.Background(), "warned")
	if !bytes.Contains(withStack.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("expected stack with WarnStack on: %s", withStack.String())
	}

	without := &bytes.Buffer{}
	New(Options{ServiceName: "test", Output: without}).
		Warn(context.Background(), "warned")
	if bytes.Contains(without.Bytes(), []byte(`"stack"`)) {
		t.Fatalf("unexpected stack with WarnStack off: %s", without.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"invalid": zerolog.InfoLevel,
		"warn":    zerolog.WarnLevel,
		" DEBUG ": zerolog.DebugLevel,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
