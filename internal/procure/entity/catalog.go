package entity

import (
	"time"

	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
)

// CatalogItem 目录物料
type CatalogItem struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	Code      string    `json:"code" gorm:"size:50;uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"size:200;not null"`
	Unit      string    `json:"unit" gorm:"size:20;default:nos"`
	Category  string    `json:"category" gorm:"size:100"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Prices []VendorPrice `json:"prices,omitempty" gorm:"foreignKey:CatalogItemID"`
}

func (CatalogItem) TableName() string {
	return "procure_catalog_items"
}

// VendorPrice 物料供应商报价
type VendorPrice struct {
	ID            string    `json:"id" gorm:"primaryKey;size:32"`
	CatalogItemID string    `json:"catalog_item_id" gorm:"size:32;not null;index"`
	VendorID      string    `json:"vendor_id" gorm:"size:32;not null"`
	VendorName    string    `json:"vendor_name" gorm:"size:200"`
	UnitPrice     float64   `json:"unit_price" gorm:"type:decimal(12,4);not null"`
	UnitGST       float64   `json:"unit_gst" gorm:"column:unit_gst;type:decimal(12,4);not null"`
	Active        bool      `json:"active" gorm:"not null"`
	SortOrder     int       `json:"sort_order" gorm:"default:0"` // 报价录入顺序，同价时先录入者优先
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (VendorPrice) TableName() string {
	return "procure_vendor_prices"
}

// ToRecord 转换为比价引擎的报价记录
func (p VendorPrice) ToRecord() comparison.VendorPriceRecord {
	return comparison.VendorPriceRecord{
		VendorID:   p.VendorID,
		VendorName: p.VendorName,
		UnitPrice:  p.UnitPrice,
		UnitGST:    p.UnitGST,
		Active:     p.Active,
	}
}
