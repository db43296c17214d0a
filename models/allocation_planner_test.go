package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func plannerUnit(id int, stock int, price string) *InventoryUnit {
	return &InventoryUnit{
		ID:           id,
		CurrentStock: stock,
		SellingPrice: decimal.RequireFromString(price),
	}
}

func strPtr(s string) *string { return &s }

func TestPlanLineAllocationPrefersDeepestStock(t *testing.T) {
	units := []*InventoryUnit{
		plannerUnit(1, 3, "10"),
		plannerUnit(2, 9, "10"),
		plannerUnit(3, 5, "10"),
	}

	plan, covered := planLineAllocation(units, 4, LinePreferences{})
	if covered != 4 {
		t.Fatalf("covered = %d, want 4", covered)
	}
	if len(plan) != 1 || plan[0].UnitId != 2 || plan[0].Quantity != 4 {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestPlanLineAllocationSpansUnits(t *testing.T) {
	units := []*InventoryUnit{
		plannerUnit(1, 10, "10"),
		plannerUnit(2, 6, "10"),
	}

	plan, covered := planLineAllocation(units, 12, LinePreferences{})
	if covered != 12 {
		t.Fatalf("covered = %d, want 12", covered)
	}
	if len(plan) != 2 {
		t.Fatalf("expected 2 draws, got %+v", plan)
	}
	if plan[0].UnitId != 1 || plan[0].Quantity != 10 {
		t.Fatalf("first draw = %+v, want unit 1 qty 10", plan[0])
	}
	if plan[1].UnitId != 2 || plan[1].Quantity != 2 {
		t.Fatalf("second draw = %+v, want unit 2 qty 2", plan[1])
	}
}

func TestPlanLineAllocationTieBreaksOnPriceThenId(t *testing.T) {
	units := []*InventoryUnit{
		plannerUnit(7, 5, "12.50"),
		plannerUnit(3, 5, "9.99"),
		plannerUnit(5, 5, "9.99"),
	}

	plan, _ := planLineAllocation(units, 15, LinePreferences{})
	got := []int{plan[0].UnitId, plan[1].UnitId, plan[2].UnitId}
	want := []int{3, 5, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking = %v, want %v", got, want)
		}
	}
}

func TestPlanLineAllocationReportsShortfall(t *testing.T) {
	units := []*InventoryUnit{
		plannerUnit(1, 4, "10"),
		plannerUnit(2, 3, "10"),
	}

	plan, covered := planLineAllocation(units, 20, LinePreferences{})
	if covered != 7 {
		t.Fatalf("covered = %d, want 7", covered)
	}
	total := 0
	for _, p := range plan {
		total += p.Quantity
	}
	if total != 7 {
		t.Fatalf("planned total = %d, want 7", total)
	}
}

func TestPlanLineAllocationSkipsEmptyUnits(t *testing.T) {
	units := []*InventoryUnit{
		plannerUnit(1, 0, "10"),
		plannerUnit(2, 2, "10"),
	}

	plan, covered := planLineAllocation(units, 2, LinePreferences{})
	if covered != 2 || len(plan) != 1 || plan[0].UnitId != 2 {
		t.Fatalf("unexpected plan: %+v covered=%d", plan, covered)
	}
}

func TestPlanLineAllocationPreferenceFilters(t *testing.T) {
	red := plannerUnit(1, 10, "10")
	red.Color = strPtr("red")
	nude := plannerUnit(2, 4, "10")
	nude.Color = strPtr("nude")
	units := []*InventoryUnit{red, nude}

	plan, covered := planLineAllocation(units, 3, LinePreferences{Color: strPtr("nude")})
	if covered != 3 {
		t.Fatalf("covered = %d, want 3", covered)
	}
	if len(plan) != 1 || plan[0].UnitId != 2 {
		t.Fatalf("preference ignored: %+v", plan)
	}
}

func TestPlanLineAllocationSoftPreferenceFallback(t *testing.T) {
	red := plannerUnit(1, 10, "10")
	red.Color = strPtr("red")
	units := []*InventoryUnit{red}

	// No candidate matches; the preference is dropped instead of
	// failing the line.
	plan, covered := planLineAllocation(units, 2, LinePreferences{Color: strPtr("nude")})
	if covered != 2 {
		t.Fatalf("covered = %d, want 2", covered)
	}
	if len(plan) != 1 || plan[0].UnitId != 1 {
		t.Fatalf("fallback not applied: %+v", plan)
	}
}

func TestMatchesPreferences(t *testing.T) {
	unit := InventoryUnit{Color: strPtr("red"), Shade: strPtr("matte")}

	if !unit.MatchesPreferences(LinePreferences{}) {
		t.Fatal("empty preferences must always match")
	}
	if !unit.MatchesPreferences(LinePreferences{Color: strPtr("red")}) {
		t.Fatal("matching color rejected")
	}
	if unit.MatchesPreferences(LinePreferences{Color: strPtr("nude")}) {
		t.Fatal("mismatching color accepted")
	}
	if unit.MatchesPreferences(LinePreferences{Size: strPtr("30ml")}) {
		t.Fatal("preference on unset attribute accepted")
	}
	if !unit.MatchesPreferences(LinePreferences{Color: strPtr("red"), Shade: strPtr("matte")}) {
		t.Fatal("all-attribute match rejected")
	}
}
