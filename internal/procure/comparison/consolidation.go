package comparison

// GroupEntry is one line consolidated into a vendor group.
type GroupEntry struct {
	LineID         string  `json:"line_id"`
	CatalogItemID  string  `json:"catalog_item_id"`
	ItemName       string  `json:"item_name"`
	Unit           string  `json:"unit"`
	Quantity       float64 `json:"quantity"`
	Remark         string  `json:"remark,omitempty"`
	UnitPrice      float64 `json:"unit_price"`
	UnitGST        float64 `json:"unit_gst"`
	UnitTotal      float64 `json:"unit_total"`
	ExtendedCost   float64 `json:"extended_cost"`
	ExtendedGST    float64 `json:"extended_gst"`
	ExtendedTotal  float64 `json:"extended_total"`
	IsLowest       bool    `json:"is_lowest"`
	OverrideReason string  `json:"override_reason,omitempty"`
}

// VendorGroup 按供应商汇总的草稿采购单
type VendorGroup struct {
	VendorID        string       `json:"vendor_id"`
	VendorName      string       `json:"vendor_name"`
	Entries         []GroupEntry `json:"entries"`
	ItemsSubtotal   float64      `json:"items_subtotal"`
	ItemsGST        float64      `json:"items_gst"`
	ItemsGrandTotal float64      `json:"items_grand_total"`
	FleetCost       float64      `json:"fleet_cost"`
	FleetGST        float64      `json:"fleet_gst"`
	FinalTotal      float64      `json:"final_total"`
}

// Consolidate groups the validly selected lines by vendor. Groups appear in
// the order their vendor is first selected; entries keep requisition order.
func Consolidate(lines []ResolvedLine, selections Selections) []VendorGroup {
	var groups []VendorGroup
	pos := make(map[string]int)

	for i := range lines {
		line := &lines[i]
		sel := selections[line.ID]
		opt, ok := validSelection(line, sel)
		if !ok {
			continue
		}

		gi, exists := pos[opt.VendorID]
		if !exists {
			gi = len(groups)
			pos[opt.VendorID] = gi
			groups = append(groups, VendorGroup{
				VendorID:   opt.VendorID,
				VendorName: opt.VendorName,
			})
		}

		g := &groups[gi]
		g.Entries = append(g.Entries, GroupEntry{
			LineID:         line.ID,
			CatalogItemID:  line.CatalogItemID,
			ItemName:       line.ItemName,
			Unit:           line.Unit,
			Quantity:       line.Quantity,
			Remark:         line.Remark,
			UnitPrice:      opt.UnitPrice,
			UnitGST:        opt.UnitGST,
			UnitTotal:      opt.UnitTotal,
			ExtendedCost:   opt.ExtendedCost,
			ExtendedGST:    opt.ExtendedGST,
			ExtendedTotal:  opt.ExtendedTotal,
			IsLowest:       opt.IsLowest,
			OverrideReason: sel.OverrideReason,
		})
		g.ItemsSubtotal += opt.ExtendedCost
		g.ItemsGST += opt.ExtendedGST
		g.ItemsGrandTotal += opt.ExtendedTotal
	}
	return groups
}
