package comparison

import "fmt"

// 请购单状态
const (
	StatusDraft    = "draft"
	StatusCompare  = "compare"
	StatusApproval = "approval"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusDeleted  = "deleted"
)

// RequisitionTransitions 合法的请购单状态流转
var RequisitionTransitions = map[string][]string{
	StatusDraft:    {StatusCompare, StatusDeleted},
	StatusCompare:  {StatusApproval, StatusDeleted},
	StatusApproval: {StatusApproved, StatusRejected},
	StatusRejected: {StatusCompare, StatusDeleted},
}

// CanTransition reports whether from → to is an edge of the requisition machine.
func CanTransition(from, to string) bool {
	for _, s := range RequisitionTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsEditable reports whether selections and fleet costs may change in status.
func IsEditable(status string) bool {
	return status == StatusCompare
}

// Transition checks from → to. compare → approval runs gate and fails with a
// *ValidationFailedError when it reports anything; approval outcomes need
// CanApprove.
func Transition(from, to string, caps Capabilities, gate func() []ValidationError) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, from, to)
	}
	if from == StatusApproval && !caps.CanApprove {
		return fmt.Errorf("%w: approve requisition", ErrPermissionDenied)
	}
	if from == StatusCompare && to == StatusApproval && gate != nil {
		if errs := gate(); len(errs) > 0 {
			return &ValidationFailedError{Errors: errs}
		}
	}
	return nil
}

// 采购订单状态
const (
	POStatusOpen    = "open"
	POStatusPartial = "partial"
	POStatusClosed  = "closed"
)

// 采购订单行状态
const (
	POItemStatusPending  = "pending"
	POItemStatusPartial  = "partial"
	POItemStatusReceived = "received"
)

// ItemReceiptStatus derives a PO line status from its received quantity.
func ItemReceiptStatus(quantity, received float64) string {
	switch {
	case received >= quantity:
		return POItemStatusReceived
	case received > 0:
		return POItemStatusPartial
	default:
		return POItemStatusPending
	}
}

// Receipt is the quantity view of one PO line.
type Receipt struct {
	Quantity    float64
	ReceivedQty float64
}

// DerivePOStatus returns closed when every line is fully received, partial
// when anything has been received, open otherwise.
func DerivePOStatus(lines []Receipt) string {
	if len(lines) == 0 {
		return POStatusOpen
	}
	anyReceived, allReceived := false, true
	for _, l := range lines {
		if l.ReceivedQty > 0 {
			anyReceived = true
		}
		if l.ReceivedQty < l.Quantity {
			allReceived = false
		}
	}
	switch {
	case allReceived:
		return POStatusClosed
	case anyReceived:
		return POStatusPartial
	default:
		return POStatusOpen
	}
}

// PurchaseOrderDraft is the initial open purchase order for one approved vendor group.
type PurchaseOrderDraft struct {
	VendorID      string                   `json:"vendor_id"`
	VendorName    string                   `json:"vendor_name"`
	Status        string                   `json:"status"`
	Items         []PurchaseOrderDraftItem `json:"items"`
	ItemsSubtotal float64                  `json:"items_subtotal"`
	ItemsGST      float64                  `json:"items_gst"`
	FleetCost     float64                  `json:"fleet_cost"`
	FleetGST      float64                  `json:"fleet_gst"`
	TotalAmount   float64                  `json:"total_amount"`
}

type PurchaseOrderDraftItem struct {
	LineID         string  `json:"line_id"`
	CatalogItemID  string  `json:"catalog_item_id"`
	ItemName       string  `json:"item_name"`
	Unit           string  `json:"unit"`
	Quantity       float64 `json:"quantity"`
	UnitPrice      float64 `json:"unit_price"`
	UnitGST        float64 `json:"unit_gst"`
	TotalAmount    float64 `json:"total_amount"`
	OverrideReason string  `json:"override_reason,omitempty"`
}

// BuildPurchaseOrders turns each vendor group into an open purchase order,
// in group order. Amounts are rounded here because the drafts are surfaced.
func BuildPurchaseOrders(result Result) []PurchaseOrderDraft {
	drafts := make([]PurchaseOrderDraft, 0, len(result.Groups))
	for _, g := range result.Groups {
		d := PurchaseOrderDraft{
			VendorID:      g.VendorID,
			VendorName:    g.VendorName,
			Status:        POStatusOpen,
			ItemsSubtotal: Round2(g.ItemsSubtotal),
			ItemsGST:      Round2(g.ItemsGST),
			FleetCost:     Round2(g.FleetCost),
			FleetGST:      Round2(g.FleetGST),
			TotalAmount:   Round2(g.FinalTotal),
		}
		for _, e := range g.Entries {
			d.Items = append(d.Items, PurchaseOrderDraftItem{
				LineID:         e.LineID,
				CatalogItemID:  e.CatalogItemID,
				ItemName:       e.ItemName,
				Unit:           e.Unit,
				Quantity:       e.Quantity,
				UnitPrice:      e.UnitPrice,
				UnitGST:        e.UnitGST,
				TotalAmount:    Round2(e.ExtendedTotal),
				OverrideReason: e.OverrideReason,
			})
		}
		drafts = append(drafts, d)
	}
	return drafts
}
