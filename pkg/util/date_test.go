package util

import (
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestParseAwareTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10-04:00"
	got, err := ParseAwareTime(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.UTC().Format(time.RFC3339) != "2024-10-10T14:10:10Z" {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseAwareTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, err := ParseAwareTime(strconv.FormatInt(ts, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Unix() != ts || got.Location() != time.UTC {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseAwareTimeRejectsNaive(t *testing.T) {
	for _, s := range []string{"2024-10-10T10:10:10", "2024-10-10 10:10:10.123"} {
		_, err := ParseAwareTime(s)
		if !errors.Is(err, ErrNaiveTimestamp) {
			t.Fatalf("%q: expected ErrNaiveTimestamp, got %v", s, err)
		}
	}
}

func TestParseAwareTimeGarbage(t *testing.T) {
	_, err := ParseAwareTime("yesterday")
	if !errors.Is(err, ErrInvalidTimestamp) {
		t.Fatalf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}
