package comparison

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// exampleLines: item A qty 10, vendors X (5.00+0.50) and Y (4.50+0.45)
func exampleLines() []ResolvedLine {
	return ResolveOptions(
		[]Line{{ID: "line-a", CatalogItemID: "item-a", ItemName: "Cement", Unit: "bag", Quantity: 10}},
		Catalog{
			"item-a": {
				{VendorID: "X", VendorName: "Vendor X", UnitPrice: 5.00, UnitGST: 0.50, Active: true},
				{VendorID: "Y", VendorName: "Vendor Y", UnitPrice: 4.50, UnitGST: 0.45, Active: true},
			},
		},
	)
}

func TestResolveLineRanksByUnitTotal(t *testing.T) {
	lines := exampleLines()
	opts := lines[0].Options
	if len(opts) != 2 {
		t.Fatalf("expected 2 options, got %d", len(opts))
	}
	if opts[0].VendorID != "Y" || !opts[0].IsLowest {
		t.Fatalf("expected Y lowest first, got %+v", opts[0])
	}
	if opts[1].IsLowest {
		t.Fatal("expected only one option flagged lowest")
	}
	if Round2(opts[0].UnitTotal) != 4.95 || Round2(opts[1].UnitTotal) != 5.50 {
		t.Fatalf("unexpected unit totals: %v / %v", opts[0].UnitTotal, opts[1].UnitTotal)
	}
	if Round2(opts[0].ExtendedTotal) != 49.50 {
		t.Fatalf("expected extended total 49.50 for Y, got %v", opts[0].ExtendedTotal)
	}
	if Round2(opts[0].ExtendedCost) != 45.00 || Round2(opts[0].ExtendedGST) != 4.50 {
		t.Fatalf("unexpected extended figures: %+v", opts[0])
	}
}

func TestResolveLineTieKeepsSuppliedOrder(t *testing.T) {
	records := []VendorPriceRecord{
		{VendorID: "C", UnitPrice: 9, UnitGST: 1, Active: true},
		{VendorID: "A", UnitPrice: 8, UnitGST: 2, Active: true},
		{VendorID: "B", UnitPrice: 10, UnitGST: 0, Active: true},
	}
	for i := 0; i < 20; i++ {
		got := ResolveLine(Line{ID: "l1", Quantity: 3}, records)
		if got.Options[0].VendorID != "C" || !got.Options[0].IsLowest {
			t.Fatalf("run %d: expected earliest tied record C lowest, got %s", i, got.Options[0].VendorID)
		}
		order := []string{got.Options[0].VendorID, got.Options[1].VendorID, got.Options[2].VendorID}
		if !reflect.DeepEqual(order, []string{"C", "A", "B"}) {
			t.Fatalf("run %d: expected stable order C,A,B got %v", i, order)
		}
	}
}

func TestResolveLineSkipsInactiveVendors(t *testing.T) {
	got := ResolveLine(Line{ID: "l1", Quantity: 2}, []VendorPriceRecord{
		{VendorID: "cheap", UnitPrice: 1, Active: false},
		{VendorID: "dear", UnitPrice: 3, Active: true},
	})
	if len(got.Options) != 1 || got.Options[0].VendorID != "dear" || !got.Options[0].IsLowest {
		t.Fatalf("expected only active vendor, got %+v", got.Options)
	}

	none := ResolveLine(Line{ID: "l2", Quantity: 2}, []VendorPriceRecord{{VendorID: "x", Active: false}})
	if none.HasActiveVendors || len(none.Options) != 0 {
		t.Fatalf("expected no active vendors, got %+v", none)
	}
	if none.Lowest() != nil {
		t.Fatal("expected no lowest option")
	}
}

func TestResolveOptionsDeterministic(t *testing.T) {
	a := exampleLines()
	b := exampleLines()
	if !reflect.DeepEqual(a, b) {
		t.Fatal("expected identical resolution for identical inputs")
	}
}

type stubProvider struct {
	calls   map[string]int
	records map[string][]VendorPriceRecord
	err     error
}

func (p *stubProvider) GetVendorOptions(_ context.Context, id string) ([]VendorPriceRecord, error) {
	p.calls[id]++
	if p.err != nil {
		return nil, p.err
	}
	return p.records[id], nil
}

func TestFetchCatalogReadsEachItemOnce(t *testing.T) {
	p := &stubProvider{calls: map[string]int{}, records: map[string][]VendorPriceRecord{
		"i1": {{VendorID: "v", UnitPrice: 1, Active: true}},
	}}
	lines := []Line{{ID: "a", CatalogItemID: "i1"}, {ID: "b", CatalogItemID: "i1"}, {ID: "c", CatalogItemID: "i2"}}
	catalog, err := FetchCatalog(context.Background(), p, lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.calls["i1"] != 1 || p.calls["i2"] != 1 {
		t.Fatalf("expected one read per item, got %v", p.calls)
	}
	if len(catalog["i1"]) != 1 {
		t.Fatalf("expected i1 records in snapshot, got %v", catalog)
	}

	boom := errors.New("boom")
	p.err = boom
	if _, err := FetchCatalog(context.Background(), p, lines); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped provider error, got %v", err)
	}
}

// TestWorkedExample walks the X/Y scenario end to end.
func TestWorkedExample(t *testing.T) {
	s := NewSession(exampleLines(), nil, nil)

	s.AutoSelectLowestAll()
	if sel := s.Selections()["line-a"]; sel.VendorID != "Y" || sel.OverrideReason != "" {
		t.Fatalf("expected auto-select Y without reason, got %+v", sel)
	}
	if !s.IsSubmittable() {
		t.Fatalf("expected lowest selection to be submittable, got %v", s.Validate())
	}

	if err := s.SelectVendor("line-a", "X"); err != nil {
		t.Fatalf("select X: %v", err)
	}
	errs := s.Validate()
	if len(errs) != 1 || errs[0].Code != CodeMissingOverrideReason {
		t.Fatalf("expected one missing override reason, got %v", errs)
	}

	if err := s.SetOverrideReason("line-a", "Y cannot deliver this week"); err != nil {
		t.Fatalf("set reason: %v", err)
	}
	if !s.IsSubmittable() {
		t.Fatalf("expected submittable after reason, got %v", s.Validate())
	}

	res := s.ComparisonResult()
	if len(res.Groups) != 1 || res.Groups[0].VendorID != "X" {
		t.Fatalf("expected single group for X, got %+v", res.Groups)
	}
	if Round2(res.Groups[0].ItemsGrandTotal) != 55.00 {
		t.Fatalf("expected items grand total 55.00, got %v", res.Groups[0].ItemsGrandTotal)
	}

	if err := s.SetFleetCost("X", 10, 1); err != nil {
		t.Fatalf("set fleet: %v", err)
	}
	res = s.ComparisonResult().Rounded()
	if res.Groups[0].FinalTotal != 66.00 {
		t.Fatalf("expected final total 66.00, got %v", res.Groups[0].FinalTotal)
	}
	if res.OverallTotal != 66.00 {
		t.Fatalf("expected overall total 66.00, got %v", res.OverallTotal)
	}
}

func TestSelectVendorClearsReason(t *testing.T) {
	s := NewSession(exampleLines(), nil, nil)
	if err := s.ApplySelection(AllCapabilities(), "line-a", "X", "urgent"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.SelectVendor("line-a", "X"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if s.Selections()["line-a"].OverrideReason != "" {
		t.Fatal("expected select to clear the override reason")
	}
}

func TestOverrideReasonWhitespaceIsMissing(t *testing.T) {
	s := NewSession(exampleLines(), nil, nil)
	if err := s.ApplySelection(AllCapabilities(), "line-a", "X", "   \t"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	errs := s.Validate()
	if len(errs) != 1 || errs[0].Code != CodeMissingOverrideReason || errs[0].LineID != "line-a" {
		t.Fatalf("expected exactly one missing override reason, got %v", errs)
	}
}

func TestSelectionErrorsLeaveStateUntouched(t *testing.T) {
	s := NewSession(exampleLines(), nil, nil)
	s.AutoSelectLowestAll()
	before := s.Selections()

	if err := s.SelectVendor("missing", "X"); !errors.Is(err, ErrUnknownLine) {
		t.Fatalf("expected ErrUnknownLine, got %v", err)
	}
	if err := s.SelectVendor("line-a", "Z"); !errors.Is(err, ErrUnknownVendor) {
		t.Fatalf("expected ErrUnknownVendor, got %v", err)
	}
	if err := s.ApplySelection(Capabilities{}, "line-a", "X", "r"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied without select capability, got %v", err)
	}
	if err := s.ApplySelection(Capabilities{CanSelectVendor: true}, "line-a", "X", "r"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied without override capability, got %v", err)
	}
	if !reflect.DeepEqual(before, s.Selections()) {
		t.Fatalf("expected no mutation on failure: before %v after %v", before, s.Selections())
	}

	if err := s.ApplySelection(Capabilities{CanSelectVendor: true}, "line-a", "Y", ""); err != nil {
		t.Fatalf("expected lowest choice without override capability to pass, got %v", err)
	}
}

func TestApplySelectionEmptyVendorClears(t *testing.T) {
	s := NewSession(exampleLines(), nil, nil)
	s.AutoSelectLowestAll()
	if err := s.ApplySelection(AllCapabilities(), "line-a", "", ""); err != nil {
		t.Fatalf("apply clear: %v", err)
	}
	if _, ok := s.Selections()["line-a"]; ok {
		t.Fatal("expected selection cleared")
	}
	errs := s.Validate()
	if len(errs) != 1 || errs[0].Code != CodeMissingSelection {
		t.Fatalf("expected missing selection, got %v", errs)
	}
}

func TestNoActiveVendorsNeverBlocks(t *testing.T) {
	lines := ResolveOptions(
		[]Line{
			{ID: "priced", CatalogItemID: "a", Quantity: 1},
			{ID: "unpriced", CatalogItemID: "b", Quantity: 4},
		},
		Catalog{
			"a": {{VendorID: "v1", UnitPrice: 2, Active: true}},
			"b": {{VendorID: "v2", UnitPrice: 1, Active: false}},
		},
	)
	s := NewSession(lines, nil, nil)
	for _, e := range s.Validate() {
		if e.LineID == "unpriced" {
			t.Fatalf("line without active vendors must not be validated: %v", e)
		}
	}
	s.AutoSelectLowestAll()
	if !s.IsSubmittable() {
		t.Fatalf("expected submittable, got %v", s.Validate())
	}
	if _, ok := s.Selections()["unpriced"]; ok {
		t.Fatal("auto-select must skip lines without active vendors")
	}
	if err := Transition(StatusCompare, StatusApproval, AllCapabilities(), s.Validate); err != nil {
		t.Fatalf("expected transition to approval, got %v", err)
	}
}

func TestClearAllSelections(t *testing.T) {
	s := NewSession(exampleLines(), nil, nil)
	s.AutoSelectLowestAll()
	s.ClearAllSelections()
	if len(s.Selections()) != 0 {
		t.Fatalf("expected no selections, got %v", s.Selections())
	}
	if len(s.ComparisonResult().Groups) != 0 {
		t.Fatal("expected no groups after clear")
	}
}

func TestAutoSelectIdempotent(t *testing.T) {
	s := NewSession(exampleLines(), nil, nil)
	s.AutoSelectLowestAll()
	first := s.Selections()
	s.AutoSelectLowestAll()
	if !reflect.DeepEqual(first, s.Selections()) {
		t.Fatal("expected repeated auto-select to be a no-op")
	}
}

func TestStaleSelectionTreatedAsUnset(t *testing.T) {
	lines := ResolveOptions(
		[]Line{{ID: "l1", CatalogItemID: "a", Quantity: 1}},
		Catalog{"a": {
			{VendorID: "gone", UnitPrice: 1, Active: false},
			{VendorID: "here", UnitPrice: 2, Active: true},
		}},
	)
	s := NewSession(lines, Selections{"l1": {VendorID: "gone", OverrideReason: "x"}}, nil)

	warnings := s.Warnings()
	if len(warnings) != 1 || warnings[0].Code != CodeStaleSelectionReference || warnings[0].VendorID != "gone" {
		t.Fatalf("expected stale reference warning, got %v", warnings)
	}
	errs := s.Validate()
	if len(errs) != 1 || errs[0].Code != CodeMissingSelection {
		t.Fatalf("expected stale selection to count as missing, got %v", errs)
	}
}

func TestConsolidationGroupsByFirstAppearance(t *testing.T) {
	lines := ResolveOptions(
		[]Line{
			{ID: "l1", CatalogItemID: "steel", Quantity: 2},
			{ID: "l2", CatalogItemID: "sand", Quantity: 5},
			{ID: "l3", CatalogItemID: "bricks", Quantity: 100},
			{ID: "l4", CatalogItemID: "paint", Quantity: 3},
		},
		Catalog{
			"steel":  {{VendorID: "zeta", UnitPrice: 100, UnitGST: 18, Active: true}, {VendorID: "alpha", UnitPrice: 120, UnitGST: 20, Active: true}},
			"sand":   {{VendorID: "alpha", UnitPrice: 10, UnitGST: 1, Active: true}},
			"bricks": {{VendorID: "zeta", UnitPrice: 0.5, UnitGST: 0.05, Active: true}},
			"paint":  {{VendorID: "alpha", UnitPrice: 40, UnitGST: 4, Active: true}, {VendorID: "zeta", UnitPrice: 30, UnitGST: 3, Active: true}},
		},
	)
	s := NewSession(lines, nil, nil)
	s.AutoSelectLowestAll()
	// l4 overridden to alpha without a reason: excluded from consolidation
	if err := s.ApplySelection(AllCapabilities(), "l4", "alpha", ""); err != nil {
		t.Fatalf("apply: %v", err)
	}

	res := s.ComparisonResult()
	if len(res.Groups) != 2 || res.Groups[0].VendorID != "zeta" || res.Groups[1].VendorID != "alpha" {
		t.Fatalf("expected groups zeta, alpha in first-appearance order, got %+v", res.Groups)
	}
	zeta := res.Groups[0]
	if len(zeta.Entries) != 2 || zeta.Entries[0].LineID != "l1" || zeta.Entries[1].LineID != "l3" {
		t.Fatalf("expected zeta entries l1,l3, got %+v", zeta.Entries)
	}
	if len(res.Groups[1].Entries) != 1 {
		t.Fatalf("expected invalid l4 excluded from alpha, got %+v", res.Groups[1].Entries)
	}

	// completeness: group totals equal the sum over validly-selected lines
	var groupSum, lineSum float64
	for _, g := range res.Groups {
		groupSum += g.ItemsGrandTotal
	}
	sel := s.Selections()
	for i := range lines {
		if opt, ok := validSelection(&lines[i], sel[lines[i].ID]); ok {
			lineSum += opt.ExtendedTotal
		}
	}
	if Round2(groupSum) != Round2(lineSum) {
		t.Fatalf("consolidation lost value: groups %v lines %v", groupSum, lineSum)
	}
	if Round2(groupSum) != 346.00 {
		t.Fatalf("expected 236 + 55 + 55 = 346.00, got %v", groupSum)
	}
}

func TestFleetCostRejection(t *testing.T) {
	s := NewSession(exampleLines(), nil, nil)
	s.AutoSelectLowestAll()
	if err := s.SetFleetCost("Y", 7, 0.7); err != nil {
		t.Fatalf("set fleet: %v", err)
	}

	for _, tc := range []struct{ cost, gst float64 }{{-1, 0}, {0, -0.01}} {
		if err := s.SetFleetCost("Y", tc.cost, tc.gst); !errors.Is(err, ErrInvalidFleetCost) {
			t.Fatalf("expected ErrInvalidFleetCost for %+v, got %v", tc, err)
		}
	}
	if fc := s.FleetCosts()["Y"]; fc.Cost != 7 || fc.GST != 0.7 {
		t.Fatalf("expected prior fleet retained, got %+v", fc)
	}
	if err := s.SetFleetCost("nobody", 1, 0); !errors.Is(err, ErrUnknownVendor) {
		t.Fatalf("expected ErrUnknownVendor, got %v", err)
	}

	if err := s.ClearFleetCost("Y"); err != nil {
		t.Fatalf("clear fleet: %v", err)
	}
	g, _ := s.ComparisonResult().Group("Y")
	if g.FleetCost != 0 || g.FleetGST != 0 {
		t.Fatalf("expected cleared fleet, got %+v", g)
	}
}

func TestComparisonResultIdempotent(t *testing.T) {
	s := NewSession(exampleLines(), nil, FleetCosts{"Y": {Cost: 3.3, GST: 0.33}})
	s.AutoSelectLowestAll()
	a := s.ComparisonResult()
	b := s.ComparisonResult()
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical results, got %+v vs %+v", a, b)
	}
}

func TestRound2(t *testing.T) {
	cases := map[float64]float64{
		49.50000000000001: 49.5,
		1.005:             1.01,
		2.675:             2.68,
		-1.005:            -1.01,
		0:                 0,
	}
	for in, want := range cases {
		if got := Round2(in); got != want {
			t.Fatalf("Round2(%v) = %v, want %v", in, got, want)
		}
	}
}
