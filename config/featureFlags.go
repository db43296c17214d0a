package config

import (
	"os"
	"strings"
)

// AllowPartialAllocation controls confirm-time behavior when stock cannot cover
// a full order line: when enabled, the line is allocated as far as stock allows
// and the order stays confirmable; when disabled (default), confirmation fails
// with an insufficient-stock error and nothing is allocated.
//
// Set via env:
// - ALLOW_PARTIAL_ALLOCATION=true
func AllowPartialAllocation() bool {
	return boolFromEnv("ALLOW_PARTIAL_ALLOCATION")
}

// StrictLedgerImmutability enables fintech-grade guardrails: stock ledger rows
// can never be updated or deleted once written; corrections go through
// adjustment entries only.
//
// Set via env:
// - STRICT_LEDGER_IMMUTABLE=true
func StrictLedgerImmutability() bool {
	return boolFromEnv("STRICT_LEDGER_IMMUTABLE")
}

// ReorderAlertsEnabled turns on the low-stock sweep that flags inventory units
// at or below their reorder point.
//
// Set via env:
// - REORDER_ALERTS=true
func ReorderAlertsEnabled() bool {
	return boolFromEnv("REORDER_ALERTS")
}

func boolFromEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
