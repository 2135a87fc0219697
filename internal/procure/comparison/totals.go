package comparison

// Result 比价汇总结果
type Result struct {
	Groups       []VendorGroup `json:"groups"`
	OverallTotal float64       `json:"overall_total"`
}

// Aggregate attaches fleet costs to each group and rolls up the totals.
// groups is modified in place and returned inside the Result.
func Aggregate(groups []VendorGroup, fleet FleetCosts) Result {
	var overall float64
	for i := range groups {
		g := &groups[i]
		fc := fleet[g.VendorID]
		g.FleetCost = fc.Cost
		g.FleetGST = fc.GST
		g.FinalTotal = g.ItemsGrandTotal + g.FleetCost + g.FleetGST
		overall += g.FinalTotal
	}
	if groups == nil {
		groups = []VendorGroup{}
	}
	return Result{Groups: groups, OverallTotal: overall}
}

// Group returns the group for vendorID.
func (r Result) Group(vendorID string) (*VendorGroup, bool) {
	for i := range r.Groups {
		if r.Groups[i].VendorID == vendorID {
			return &r.Groups[i], true
		}
	}
	return nil, false
}

// Rounded returns a presentation copy with extended figures and totals rounded
// to minor units. Unit prices keep catalog precision. Totals are rounded from
// the unrounded sums, not re-summed.
func (r Result) Rounded() Result {
	out := Result{
		Groups:       make([]VendorGroup, len(r.Groups)),
		OverallTotal: Round2(r.OverallTotal),
	}
	for i, g := range r.Groups {
		rg := g
		rg.Entries = make([]GroupEntry, len(g.Entries))
		for j, e := range g.Entries {
			e.ExtendedCost = Round2(e.ExtendedCost)
			e.ExtendedGST = Round2(e.ExtendedGST)
			e.ExtendedTotal = Round2(e.ExtendedTotal)
			rg.Entries[j] = e
		}
		rg.ItemsSubtotal = Round2(g.ItemsSubtotal)
		rg.ItemsGST = Round2(g.ItemsGST)
		rg.ItemsGrandTotal = Round2(g.ItemsGrandTotal)
		rg.FleetCost = Round2(g.FleetCost)
		rg.FleetGST = Round2(g.FleetGST)
		rg.FinalTotal = Round2(g.FinalTotal)
		out.Groups[i] = rg
	}
	return out
}
