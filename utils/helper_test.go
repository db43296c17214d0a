package utils_test

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/yeboahd24/t-beauty/utils"
)

func TestGetQuarterRange(t *testing.T) {
	cases := []struct {
		month     time.Month
		wantStart time.Month
		wantEnd   time.Month
	}{
		{time.January, time.January, time.March},
		{time.February, time.January, time.March},
		{time.March, time.January, time.March},
		{time.April, time.April, time.June},
		{time.September, time.July, time.September},
		{time.December, time.October, time.December},
	}
	for _, tc := range cases {
		start, end := utils.GetQuarterRange(2026, tc.month)
		if start.Month() != tc.wantStart || start.Day() != 1 {
			t.Fatalf("quarter of %s starts %s", tc.month, start)
		}
		if end.Month() != tc.wantEnd {
			t.Fatalf("quarter of %s ends %s", tc.month, end)
		}
		if !end.After(start) {
			t.Fatalf("quarter of %s: end %s not after start %s", tc.month, end, start)
		}
	}
}

func TestGetStartAndEndDateForFilter(t *testing.T) {
	for _, filterType := range []string{
		"last6months", "last12months", "thisMonth", "previousMonth", "thisQuarter", "previousQuarter",
	} {
		start, end, err := utils.GetStartAndEndDateForFilter(filterType)
		if err != nil {
			t.Fatalf("filter %q: %v", filterType, err)
		}
		if !end.After(start) {
			t.Fatalf("filter %q: end %s not after start %s", filterType, end, start)
		}
	}

	start, _, err := utils.GetStartAndEndDateForFilter("thisMonth")
	if err != nil {
		t.Fatalf("thisMonth: %v", err)
	}
	if start.Day() != 1 {
		t.Fatalf("thisMonth starts on day %d", start.Day())
	}

	if _, _, err := utils.GetStartAndEndDateForFilter("lastWeek"); err == nil {
		t.Fatal("unknown filter type accepted")
	}
	if _, _, err := utils.GetStartAndEndDateForFilter(""); err == nil {
		t.Fatal("empty filter type accepted")
	}
}

func TestProcessValidationErrors(t *testing.T) {
	type form struct {
		Username string `validate:"required"`
		Quantity int    `validate:"required,gt=0"`
	}
	err := validator.New().Struct(form{})
	if err == nil {
		t.Fatal("expected validation errors")
	}

	fields := utils.ProcessValidationErrors(err)
	if fields["Username"] != "required" {
		t.Fatalf("Username tag = %q, want required", fields["Username"])
	}
	if fields["Quantity"] != "required" {
		t.Fatalf("Quantity tag = %q, want required", fields["Quantity"])
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	type payload struct {
		Sku   string `json:"sku"`
		Stock int    `json:"stock"`
	}
	s, err := utils.MarshalToJSON(payload{Sku: "LIP-001", Stock: 7})
	if err != nil {
		t.Fatalf("MarshalToJSON: %v", err)
	}
	var got payload
	if err := utils.UnmarshalFromJSON([]byte(s), &got); err != nil {
		t.Fatalf("UnmarshalFromJSON: %v", err)
	}
	if got.Sku != "LIP-001" || got.Stock != 7 {
		t.Fatalf("round trip = %+v", got)
	}

	var bad payload
	if err := utils.UnmarshalFromJSON([]byte("{"), &bad); err == nil {
		t.Fatal("UnmarshalFromJSON accepted truncated JSON")
	}
}
