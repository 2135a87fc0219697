package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogRepository 物料目录仓库，同时作为比价引擎的报价来源
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

var _ comparison.CatalogProvider = (*CatalogRepository)(nil)

// GetVendorOptions 读取物料的全部供应商报价（含停用），按录入顺序
func (r *CatalogRepository) GetVendorOptions(ctx context.Context, catalogItemID string) ([]comparison.VendorPriceRecord, error) {
	var prices []entity.VendorPrice
	err := r.db.WithContext(ctx).
		Where("catalog_item_id = ?", catalogItemID).
		Order("sort_order ASC").
		Order("created_at ASC").
		Find(&prices).Error
	if err != nil {
		return nil, err
	}

	records := make([]comparison.VendorPriceRecord, 0, len(prices))
	for _, p := range prices {
		records = append(records, p.ToRecord())
	}
	return records, nil
}

// FindItemByID 根据ID查找物料（含报价）
func (r *CatalogRepository) FindItemByID(ctx context.Context, id string) (*entity.CatalogItem, error) {
	var item entity.CatalogItem
	err := r.db.WithContext(ctx).
		Preload("Prices", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

// CreateItem 创建物料（含报价）
func (r *CatalogRepository) CreateItem(ctx context.Context, item *entity.CatalogItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()[:32]
	}
	for i := range item.Prices {
		if item.Prices[i].ID == "" {
			item.Prices[i].ID = uuid.New().String()[:32]
		}
		if item.Prices[i].SortOrder == 0 {
			item.Prices[i].SortOrder = i + 1
		}
	}
	return r.db.WithContext(ctx).Create(item).Error
}

// SetPriceActive 启用/停用某条报价
func (r *CatalogRepository) SetPriceActive(ctx context.Context, catalogItemID, vendorID string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&entity.VendorPrice{}).
		Where("catalog_item_id = ? AND vendor_id = ?", catalogItemID, vendorID).
		Update("active", active)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindItems 物料列表，search 匹配编码或名称
func (r *CatalogRepository) FindItems(ctx context.Context, page, pageSize int, search string) ([]entity.CatalogItem, int64, error) {
	var items []entity.CatalogItem
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.CatalogItem{})
	if search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(code) LIKE ? OR LOWER(name) LIKE ?", like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Prices", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Order("code ASC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error
	return items, total, err
}

// PriceListRow 价目表中的一行：物料 × 供应商报价
type PriceListRow struct {
	ItemCode   string
	ItemName   string
	Unit       string
	Category   string
	VendorID   string
	VendorName string
	UnitPrice  float64
	UnitGST    float64
}

// PriceListStats 价目表导入统计
type PriceListStats struct {
	ItemsCreated  int `json:"items_created"`
	PricesCreated int `json:"prices_created"`
	PricesUpdated int `json:"prices_updated"`
}

// ImportPriceList 按物料编码写入报价：新物料自动创建，已有报价更新价格并重新启用
func (r *CatalogRepository) ImportPriceList(ctx context.Context, rows []PriceListRow) (*PriceListStats, error) {
	stats := &PriceListStats{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items := make(map[string]*entity.CatalogItem)

		for _, row := range rows {
			item, ok := items[row.ItemCode]
			if !ok {
				var found entity.CatalogItem
				err := tx.Where("code = ?", row.ItemCode).First(&found).Error
				switch {
				case err == nil:
					item = &found
				case errors.Is(err, gorm.ErrRecordNotFound):
					if row.ItemName == "" {
						return fmt.Errorf("%w: %s 未提供名称", ErrUnknownItem, row.ItemCode)
					}
					item = &entity.CatalogItem{
						ID:       uuid.New().String()[:32],
						Code:     row.ItemCode,
						Name:     row.ItemName,
						Unit:     row.Unit,
						Category: row.Category,
					}
					if item.Unit == "" {
						item.Unit = "nos"
					}
					if err := tx.Create(item).Error; err != nil {
						return fmt.Errorf("create item %s: %w", row.ItemCode, err)
					}
					stats.ItemsCreated++
				default:
					return err
				}
				items[row.ItemCode] = item
			}

			var price entity.VendorPrice
			err := tx.Where("catalog_item_id = ? AND vendor_id = ?", item.ID, row.VendorID).First(&price).Error
			if err == nil {
				updates := map[string]interface{}{
					"unit_price": row.UnitPrice,
					"unit_gst":   row.UnitGST,
					"active":     true,
				}
				if row.VendorName != "" {
					updates["vendor_name"] = row.VendorName
				}
				if err := tx.Model(&price).Updates(updates).Error; err != nil {
					return fmt.Errorf("update price %s/%s: %w", row.ItemCode, row.VendorID, err)
				}
				stats.PricesUpdated++
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			// 新报价排在已有报价之后
			var maxOrder int
			if err := tx.Model(&entity.VendorPrice{}).
				Where("catalog_item_id = ?", item.ID).
				Select("COALESCE(MAX(sort_order), 0)").
				Scan(&maxOrder).Error; err != nil {
				return err
			}
			price = entity.VendorPrice{
				ID:            uuid.New().String()[:32],
				CatalogItemID: item.ID,
				VendorID:      row.VendorID,
				VendorName:    row.VendorName,
				UnitPrice:     row.UnitPrice,
				UnitGST:       row.UnitGST,
				Active:        true,
				SortOrder:     maxOrder + 1,
			}
			if err := tx.Create(&price).Error; err != nil {
				return fmt.Errorf("create price %s/%s: %w", row.ItemCode, row.VendorID, err)
			}
			stats.PricesCreated++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
