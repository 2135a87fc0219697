package repository

import (
	"errors"

	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrRevisionConflict 比价状态已被他人修改
	ErrRevisionConflict = errors.New("requisition was modified concurrently")

	// ErrPOsExist 该请购单已生成过采购订单
	ErrPOsExist = errors.New("purchase orders already generated for requisition")

	// ErrOverReceipt 累计收货不能超过订购数量
	ErrOverReceipt = errors.New("received quantity exceeds ordered quantity")

	// ErrUnknownItem 价目表引用了不存在的物料且无法新建
	ErrUnknownItem = errors.New("catalog item does not exist")
)

// Repositories 采购比价仓库集合
type Repositories struct {
	Catalog     *CatalogRepository
	Requisition *RequisitionRepository
	PO          *PORepository
	ActivityLog *ActivityLogRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Catalog:     NewCatalogRepository(db),
		Requisition: NewRequisitionRepository(db),
		PO:          NewPORepository(db),
		ActivityLog: NewActivityLogRepository(db),
	}
}

// Models 需要迁移的全部表
func Models() []interface{} {
	return []interface{}{
		&entity.CatalogItem{},
		&entity.VendorPrice{},
		&entity.Requisition{},
		&entity.RequisitionLine{},
		&entity.LineSelection{},
		&entity.FleetCost{},
		&entity.PurchaseOrder{},
		&entity.POItem{},
		&entity.ActivityLog{},
	}
}

// AutoMigrate 迁移全部表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
