package entity

import (
	"time"

	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
)

// PurchaseOrder 采购订单（由审批通过的比价结果生成）
type PurchaseOrder struct {
	ID            string `json:"id" gorm:"primaryKey;size:32"`
	POCode        string `json:"po_code" gorm:"size:32;uniqueIndex;not null"`
	RequisitionID string `json:"requisition_id" gorm:"size:32;not null;index"`
	VendorID      string `json:"vendor_id" gorm:"size:32;not null;index"`
	VendorName    string `json:"vendor_name" gorm:"size:200"`
	Status        string `json:"status" gorm:"size:20;default:open"` // open/partial/closed
	Currency      string `json:"currency" gorm:"size:10;default:INR"`
	SortOrder     int    `json:"sort_order" gorm:"default:0"`

	// 金额
	ItemsSubtotal float64 `json:"items_subtotal" gorm:"type:decimal(15,2)"`
	ItemsGST      float64 `json:"items_gst" gorm:"column:items_gst;type:decimal(15,2)"`
	FleetCost     float64 `json:"fleet_cost" gorm:"type:decimal(15,2)"`
	FleetGST      float64 `json:"fleet_gst" gorm:"column:fleet_gst;type:decimal(15,2)"`
	TotalAmount   float64 `json:"total_amount" gorm:"type:decimal(15,2)"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Items []POItem `json:"items,omitempty" gorm:"foreignKey:POID"`
}

func (PurchaseOrder) TableName() string {
	return "procure_purchase_orders"
}

// Receipts 收货视图
func (po *PurchaseOrder) Receipts() []comparison.Receipt {
	out := make([]comparison.Receipt, 0, len(po.Items))
	for _, item := range po.Items {
		out = append(out, comparison.Receipt{Quantity: item.Quantity, ReceivedQty: item.ReceivedQty})
	}
	return out
}

// POItem PO行项
type POItem struct {
	ID                string  `json:"id" gorm:"primaryKey;size:32"`
	POID              string  `json:"po_id" gorm:"size:32;not null;index"`
	RequisitionLineID string  `json:"requisition_line_id" gorm:"size:32"`
	CatalogItemID     string  `json:"catalog_item_id" gorm:"size:32"`
	ItemName          string  `json:"item_name" gorm:"size:200"`
	Unit              string  `json:"unit" gorm:"size:20"`
	Quantity          float64 `json:"quantity" gorm:"type:decimal(12,3);not null"`
	UnitPrice         float64 `json:"unit_price" gorm:"type:decimal(12,4)"`
	UnitGST           float64 `json:"unit_gst" gorm:"column:unit_gst;type:decimal(12,4)"`
	TotalAmount       float64 `json:"total_amount" gorm:"type:decimal(15,2)"`
	OverrideReason    string  `json:"override_reason" gorm:"type:text"`

	// 收货
	ReceivedQty float64 `json:"received_qty" gorm:"type:decimal(12,3);default:0"`
	Status      string  `json:"status" gorm:"size:20;default:pending"` // pending/partial/received

	SortOrder int       `json:"sort_order" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (POItem) TableName() string {
	return "procure_po_items"
}
