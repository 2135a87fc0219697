package entity

import (
	"time"

	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
)

// Requisition 请购单
type Requisition struct {
	ID        string  `json:"id" gorm:"primaryKey;size:32"`
	Code      string  `json:"code" gorm:"size:32;uniqueIndex;not null"`
	Title     string  `json:"title" gorm:"size:200;not null"`
	ProjectID *string `json:"project_id" gorm:"size:32;index"`
	Status    string  `json:"status" gorm:"size:20;default:draft"` // draft/compare/approval/approved/rejected/deleted
	Revision  int     `json:"revision" gorm:"not null;default:0"`  // 比价状态每次保存+1

	// 管理
	RequestedBy  string     `json:"requested_by" gorm:"size:32"`
	SubmittedBy  *string    `json:"submitted_by" gorm:"size:32"`
	SubmittedAt  *time.Time `json:"submitted_at"`
	ApprovedBy   *string    `json:"approved_by" gorm:"size:32"`
	ApprovedAt   *time.Time `json:"approved_at"`
	RejectReason string     `json:"reject_reason" gorm:"type:text"`
	Notes        string     `json:"notes" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// 关联
	Lines      []RequisitionLine `json:"lines,omitempty" gorm:"foreignKey:RequisitionID"`
	Selections []LineSelection   `json:"selections,omitempty" gorm:"foreignKey:RequisitionID"`
	FleetCosts []FleetCost       `json:"fleet_costs,omitempty" gorm:"foreignKey:RequisitionID"`
}

func (Requisition) TableName() string {
	return "procure_requisitions"
}

// EngineLines 按行顺序转换为比价引擎的请购行
func (r *Requisition) EngineLines() []comparison.Line {
	lines := make([]comparison.Line, 0, len(r.Lines))
	for _, l := range r.Lines {
		lines = append(lines, comparison.Line{
			ID:            l.ID,
			CatalogItemID: l.CatalogItemID,
			ItemName:      l.ItemName,
			Unit:          l.Unit,
			Quantity:      l.Quantity,
			Remark:        l.Remark,
		})
	}
	return lines
}

// EngineSelections 已保存的行选择
func (r *Requisition) EngineSelections() comparison.Selections {
	out := make(comparison.Selections, len(r.Selections))
	for _, s := range r.Selections {
		out[s.LineID] = comparison.Selection{VendorID: s.VendorID, OverrideReason: s.OverrideReason}
	}
	return out
}

// EngineFleetCosts 已保存的运费
func (r *Requisition) EngineFleetCosts() comparison.FleetCosts {
	out := make(comparison.FleetCosts, len(r.FleetCosts))
	for _, f := range r.FleetCosts {
		out[f.VendorID] = comparison.FleetCost{Cost: f.Cost, GST: f.GST}
	}
	return out
}

// RequisitionLine 请购行
type RequisitionLine struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	RequisitionID string    `json:"requisition_id" gorm:"size:32;not null;index"`
	CatalogItemID string    `json:"catalog_item_id" gorm:"size:32;not null"`
	ItemName      string    `json:"item_name" gorm:"size:200"`
	Unit          string    `json:"unit" gorm:"size:20"`
	Quantity      float64   `json:"quantity" gorm:"type:decimal(12,3);not null"`
	Remark        string    `json:"remark" gorm:"type:text"`
	SortOrder     int       `json:"sort_order" gorm:"default:0"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (RequisitionLine) TableName() string {
	return "procure_requisition_lines"
}

// LineSelection 行供应商选择（含议价理由）
type LineSelection struct {
	LineID         string    `json:"line_id" gorm:"primaryKey;size:32"`
	RequisitionID  string    `json:"requisition_id" gorm:"size:32;not null;index"`
	VendorID       string    `json:"vendor_id" gorm:"size:32"`
	OverrideReason string    `json:"override_reason" gorm:"type:text"`
	SelectedBy     string    `json:"selected_by" gorm:"size:32"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (LineSelection) TableName() string {
	return "procure_line_selections"
}

// FleetCost 供应商运费
type FleetCost struct {
	RequisitionID string    `json:"requisition_id" gorm:"primaryKey;size:32"`
	VendorID      string    `json:"vendor_id" gorm:"primaryKey;size:32"`
	Cost          float64   `json:"cost" gorm:"type:decimal(15,4);not null"`
	GST           float64   `json:"gst" gorm:"column:gst;type:decimal(15,4);not null"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (FleetCost) TableName() string {
	return "procure_fleet_costs"
}
