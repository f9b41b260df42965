package model

import (
	"strings"
	"testing"
)

func TestIdentityKeyPrefersBackendID(t *testing.T) {
	a := ExchangeRecord{ID: "42/req", Timestamp: "1", Payload: "a"}
	b := ExchangeRecord{ID: "42/req", Timestamp: "2", Payload: "b"}
	if IdentityKey(a) != IdentityKey(b) {
		t.Fatalf("records with the same backend id must share a key: %q vs %q", IdentityKey(a), IdentityKey(b))
	}
	if !strings.HasPrefix(IdentityKey(a), "id:") {
		t.Fatalf("expected backend key prefix, got %q", IdentityKey(a))
	}
}

func TestIdentityKeyStableForTuple(t *testing.T) {
	rec := ExchangeRecord{Timestamp: "10:00:01", Direction: Request, Channel: "p1", Payload: "PING"}
	first := IdentityKey(rec)
	if first != IdentityKey(rec) {
		t.Fatalf("identity key not stable")
	}
	if !strings.HasPrefix(first, "tx:") {
		t.Fatalf("expected tuple key prefix, got %q", first)
	}

	// display-only fields never change identity
	rec.ContentType = "application/json"
	rec.Status = "OK"
	if IdentityKey(rec) != first {
		t.Fatalf("content type or status changed the identity key")
	}
}

func TestIdentityKeyDistinguishesTupleFields(t *testing.T) {
	base := ExchangeRecord{Timestamp: "10:00:01", Direction: Request, Channel: "p1", Note: "n", Payload: "PING"}
	variants := []ExchangeRecord{
		{Timestamp: "10:00:02", Direction: Request, Channel: "p1", Note: "n", Payload: "PING"},
		{Timestamp: "10:00:01", Direction: Response, Channel: "p1", Note: "n", Payload: "PING"},
		{Timestamp: "10:00:01", Direction: Request, Channel: "p2", Note: "n", Payload: "PING"},
		{Timestamp: "10:00:01", Direction: Request, Channel: "p1", Note: "m", Payload: "PING"},
		{Timestamp: "10:00:01", Direction: Request, Channel: "p1", Note: "n", Payload: "PONG"},
		// field boundaries must not be ambiguous
		{Timestamp: "10:00:01", Direction: Request, Channel: "p1n", Note: "", Payload: "PING"},
	}
	for i, v := range variants {
		if IdentityKey(v) == IdentityKey(base) {
			t.Fatalf("variant %d collided with base key", i)
		}
	}
}

func TestCompareTimestamps(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2024-01-01 10:00:00", "2024-01-01 10:00:01", -1},
		{"10:00:01", "10:00:01", 0},
		{"9", "10", -1},
		{"1700000000.5", "1700000000.25", 1},
		{"b", "a", 1},
	}
	for _, tt := range tests {
		if got := CompareTimestamps(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareTimestamps(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}
