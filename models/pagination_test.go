package models_test

import (
	"encoding/base64"
	"testing"

	"github.com/yeboahd24/t-beauty/models"
)

func TestDecodeCompositeCursorRoundTrip(t *testing.T) {
	cursor := models.EncodeCompositeCursor("2026-09-01 10:30:00.000000", 42)

	value, id := models.DecodeCompositeCursor(&cursor)
	if value != "2026-09-01 10:30:00.000000" || id != 42 {
		t.Fatalf("got (%q, %d)", value, id)
	}
}

func TestDecodeCompositeCursorMalformed(t *testing.T) {
	cases := map[string]*string{
		"nil cursor":   nil,
		"empty":        ptr(""),
		"not base64":   ptr("%%%not-base64%%%"),
		"missing pipe": ptr(base64.StdEncoding.EncodeToString([]byte("no-separator"))),
		"bad id":       ptr(base64.StdEncoding.EncodeToString([]byte("2026-09-01|abc"))),
	}

	// Malformed cursors read the first page instead of erroring.
	for name, cursor := range cases {
		value, id := models.DecodeCompositeCursor(cursor)
		if value != "" || id != 0 {
			t.Fatalf("%s: got (%q, %d), want zero pair", name, value, id)
		}
	}
}

func TestDecodeCursor(t *testing.T) {
	encoded := models.EncodeCursor("2026-09-01 10:30:00")
	decoded, err := models.DecodeCursor(&encoded)
	if err != nil {
		t.Fatalf("DecodeCursor: %v", err)
	}
	if decoded != "2026-09-01 10:30:00" {
		t.Fatalf("got %q", decoded)
	}

	bad := "%%%not-base64%%%"
	if _, err := models.DecodeCursor(&bad); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

func ptr(s string) *string { return &s }
