package utils_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/yeboahd24/t-beauty/utils"
)

func TestCalculateDiscountAmountPercentage(t *testing.T) {
	got := utils.CalculateDiscountAmount(decimal.NewFromInt(250), decimal.NewFromInt(10), "P")
	if !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("got %s, want 25", got)
	}
}

func TestCalculateDiscountAmountFixed(t *testing.T) {
	got := utils.CalculateDiscountAmount(decimal.NewFromInt(250), decimal.NewFromInt(15), "F")
	if !got.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("got %s, want 15", got)
	}
}

func TestCalculateDiscountAmountZeroAndNegative(t *testing.T) {
	if got := utils.CalculateDiscountAmount(decimal.NewFromInt(250), decimal.Zero, "P"); !got.Equal(decimal.Zero) {
		t.Fatalf("zero discount: got %s", got)
	}
	if got := utils.CalculateDiscountAmount(decimal.NewFromInt(250), decimal.NewFromInt(-5), "F"); !got.Equal(decimal.Zero) {
		t.Fatalf("negative discount: got %s", got)
	}
}

func TestCalculateLineSubtotal(t *testing.T) {
	got := utils.CalculateLineSubtotal(decimal.RequireFromString("12.50"), 3)
	if !got.Equal(decimal.RequireFromString("37.50")) {
		t.Fatalf("got %s, want 37.50", got)
	}
}
