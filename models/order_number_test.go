package models

import (
	"regexp"
	"testing"
	"time"
)

func TestGenerateOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, 9, 1, 13, 45, 0, 0, time.UTC)
	got := generateOrderNumber(now)

	re := regexp.MustCompile(`^TB-20260901-[0-9A-F]{8}$`)
	if !re.MatchString(got) {
		t.Fatalf("order number %q does not match TB-YYYYMMDD-XXXXXXXX", got)
	}
}

func TestGenerateOrderNumberIsUnique(t *testing.T) {
	now := time.Now().UTC()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := generateOrderNumber(now)
		if seen[n] {
			t.Fatalf("duplicate order number %q", n)
		}
		seen[n] = true
	}
}
