package entity

import "time"

// ActivityLog 比价与采购操作日志
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_activity_entity"` // requisition/po/catalog
	EntityID   string `json:"entity_id" gorm:"size:32;not null;index:idx_activity_entity"`
	EntityCode string `json:"entity_code" gorm:"size:50"`

	Action     string `json:"action" gorm:"size:50;not null"` // status_change/select_vendor/override/auto_select/clear/fleet_cost/receive/archive_export
	FromStatus string `json:"from_status" gorm:"size:20"`
	ToStatus   string `json:"to_status" gorm:"size:20"`

	Content    string    `json:"content" gorm:"type:text"`
	OperatorID string    `json:"operator_id" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "procure_activity_logs"
}

// 操作类型
const (
	ActionCreate       = "create"
	ActionStatusChange = "status_change"
	ActionSelectVendor = "select_vendor"
	ActionOverride     = "override"
	ActionAutoSelect   = "auto_select"
	ActionClear        = "clear_selections"
	ActionFleetCost    = "fleet_cost"
	ActionGeneratePO   = "generate_po"
	ActionReceive      = "receive"
	ActionArchive      = "archive_export"
	ActionPriceActive  = "price_active"
	ActionImportPrices = "import_prices"
)
