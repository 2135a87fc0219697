package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PORepository 采购订单仓库
type PORepository struct {
	db *gorm.DB
}

func NewPORepository(db *gorm.DB) *PORepository {
	return &PORepository{db: db}
}

// FindByID 根据ID查找采购订单（含行项）
func (r *PORepository) FindByID(ctx context.Context, id string) (*entity.PurchaseOrder, error) {
	var po entity.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &po, nil
}

// FindByRequisition 查询请购单生成的采购订单，按供应商分组顺序
func (r *PORepository) FindByRequisition(ctx context.Context, requisitionID string) ([]entity.PurchaseOrder, error) {
	var pos []entity.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("requisition_id = ?", requisitionID).
		Order("sort_order ASC").
		Find(&pos).Error
	return pos, err
}

// CreateFromDrafts 在一个事务中按草稿生成采购订单，每个供应商一张
func (r *PORepository) CreateFromDrafts(ctx context.Context, requisitionID string, drafts []comparison.PurchaseOrderDraft, codePrefix, currency, userID string) ([]entity.PurchaseOrder, error) {
	var created []entity.PurchaseOrder

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&entity.PurchaseOrder{}).
			Where("requisition_id = ?", requisitionID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrPOsExist
		}

		for i, d := range drafts {
			code, err := nextCode(tx, &entity.PurchaseOrder{}, "po_code", codePrefix)
			if err != nil {
				return fmt.Errorf("生成PO编码失败: %w", err)
			}

			po := entity.PurchaseOrder{
				ID:            uuid.New().String()[:32],
				POCode:        code,
				RequisitionID: requisitionID,
				VendorID:      d.VendorID,
				VendorName:    d.VendorName,
				Status:        d.Status,
				Currency:      currency,
				SortOrder:     i + 1,
				ItemsSubtotal: d.ItemsSubtotal,
				ItemsGST:      d.ItemsGST,
				FleetCost:     d.FleetCost,
				FleetGST:      d.FleetGST,
				TotalAmount:   d.TotalAmount,
				CreatedBy:     userID,
			}
			for j, item := range d.Items {
				po.Items = append(po.Items, entity.POItem{
					ID:                uuid.New().String()[:32],
					POID:              po.ID,
					RequisitionLineID: item.LineID,
					CatalogItemID:     item.CatalogItemID,
					ItemName:          item.ItemName,
					Unit:              item.Unit,
					Quantity:          item.Quantity,
					UnitPrice:         item.UnitPrice,
					UnitGST:           item.UnitGST,
					TotalAmount:       item.TotalAmount,
					OverrideReason:    item.OverrideReason,
					Status:            comparison.POItemStatusPending,
					SortOrder:         j + 1,
				})
			}

			if err := tx.Create(&po).Error; err != nil {
				return fmt.Errorf("创建PO失败: %w", err)
			}
			created = append(created, po)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// 浮点累计误差
const receiptTolerance = 1e-9

// ReceiveItem 收货（累加行项收货数量，重新推导行项与订单状态），超过订购数量时拒绝
func (r *PORepository) ReceiveItem(ctx context.Context, poID, itemID string, receivedQty float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item entity.POItem
		if err := tx.Where("id = ? AND po_id = ?", itemID, poID).First(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if item.ReceivedQty+receivedQty > item.Quantity+receiptTolerance {
			return fmt.Errorf("%w: ordered %g, received %g, receiving %g",
				ErrOverReceipt, item.Quantity, item.ReceivedQty, receivedQty)
		}
		item.ReceivedQty += receivedQty
		item.Status = comparison.ItemReceiptStatus(item.Quantity, item.ReceivedQty)
		if err := tx.Save(&item).Error; err != nil {
			return err
		}

		var po entity.PurchaseOrder
		if err := tx.Preload("Items").Where("id = ?", poID).First(&po).Error; err != nil {
			return err
		}
		return tx.Model(&entity.PurchaseOrder{}).
			Where("id = ?", poID).
			Update("status", comparison.DerivePOStatus(po.Receipts())).Error
	})
}
