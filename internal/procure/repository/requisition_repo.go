package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"gorm.io/gorm"
)

// RequisitionRepository 请购单仓库
type RequisitionRepository struct {
	db *gorm.DB
}

func NewRequisitionRepository(db *gorm.DB) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

// FindAll 查询请购单列表，未指定状态时不含已删除
func (r *RequisitionRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Requisition, int64, error) {
	var items []entity.Requisition
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Requisition{})

	if status := filters["status"]; status != "" {
		query = query.Where("status = ?", status)
	} else {
		query = query.Where("status <> ?", comparison.StatusDeleted)
	}
	if projectID := filters["project_id"]; projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if search := filters["search"]; search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(code) LIKE ?", like, like)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindByID 根据ID查找请购单（含行、选择、运费）
func (r *RequisitionRepository) FindByID(ctx context.Context, id string) (*entity.Requisition, error) {
	var req entity.Requisition
	err := r.db.WithContext(ctx).
		Preload("Lines", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload("Selections").
		Preload("FleetCosts").
		Where("id = ?", id).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// Create 创建请购单（含行）
func (r *RequisitionRepository) Create(ctx context.Context, req *entity.Requisition) error {
	return r.db.WithContext(ctx).Create(req).Error
}

// SaveComparisonState 整体替换选择与运费，revision 不匹配时返回 ErrRevisionConflict
func (r *RequisitionRepository) SaveComparisonState(ctx context.Context, id string, revision int, selections comparison.Selections, fleet comparison.FleetCosts, operatorID string) (int, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entity.Requisition{}).
			Where("id = ? AND revision = ?", id, revision).
			Updates(map[string]interface{}{
				"revision":   gorm.Expr("revision + 1"),
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrRevisionConflict
		}

		if err := tx.Where("requisition_id = ?", id).Delete(&entity.LineSelection{}).Error; err != nil {
			return fmt.Errorf("清除行选择失败: %w", err)
		}
		if err := tx.Where("requisition_id = ?", id).Delete(&entity.FleetCost{}).Error; err != nil {
			return fmt.Errorf("清除运费失败: %w", err)
		}

		if rows := selectionRows(id, selections, operatorID); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("保存行选择失败: %w", err)
			}
		}
		if rows := fleetRows(id, fleet); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("保存运费失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revision + 1, nil
}

// UpdateStatus 条件更新状态（from 必须仍是当前状态），extra 为需同时写入的字段
func (r *RequisitionRepository) UpdateStatus(ctx context.Context, id, from, to string, extra map[string]interface{}) error {
	fields := map[string]interface{}{
		"status":     to,
		"revision":   gorm.Expr("revision + 1"),
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		fields[k] = v
	}

	result := r.db.WithContext(ctx).
		Model(&entity.Requisition{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRevisionConflict
	}
	return nil
}

// GenerateCode 生成请购单编码 REQ-{year}-{4位}
func (r *RequisitionRepository) GenerateCode(ctx context.Context) (string, error) {
	return nextCode(r.db.WithContext(ctx), &entity.Requisition{}, "code", "REQ")
}

func selectionRows(requisitionID string, selections comparison.Selections, operatorID string) []entity.LineSelection {
	lineIDs := make([]string, 0, len(selections))
	for id := range selections {
		lineIDs = append(lineIDs, id)
	}
	sort.Strings(lineIDs)

	rows := make([]entity.LineSelection, 0, len(lineIDs))
	for _, lineID := range lineIDs {
		sel := selections[lineID]
		rows = append(rows, entity.LineSelection{
			LineID:         lineID,
			RequisitionID:  requisitionID,
			VendorID:       sel.VendorID,
			OverrideReason: sel.OverrideReason,
			SelectedBy:     operatorID,
		})
	}
	return rows
}

func fleetRows(requisitionID string, fleet comparison.FleetCosts) []entity.FleetCost {
	vendorIDs := make([]string, 0, len(fleet))
	for id := range fleet {
		vendorIDs = append(vendorIDs, id)
	}
	sort.Strings(vendorIDs)

	rows := make([]entity.FleetCost, 0, len(vendorIDs))
	for _, vendorID := range vendorIDs {
		fc := fleet[vendorID]
		rows = append(rows, entity.FleetCost{
			RequisitionID: requisitionID,
			VendorID:      vendorID,
			Cost:          fc.Cost,
			GST:           fc.GST,
		})
	}
	return rows
}

// nextCode 按 {prefix}-{year}-{4位} 取下一个编码
func nextCode(db *gorm.DB, model interface{}, column, prefix string) (string, error) {
	year := time.Now().Format("2006")
	head := fmt.Sprintf("%s-%s-", prefix, year)

	var maxCode string
	err := db.Model(model).
		Select(fmt.Sprintf("COALESCE(MAX(%s), '')", column)).
		Where(column+" LIKE ?", head+"%").
		Scan(&maxCode).Error
	if err != nil {
		return "", err
	}

	var seq int
	if maxCode != "" {
		fmt.Sscanf(strings.TrimPrefix(maxCode, head), "%04d", &seq)
	}
	seq++
	return fmt.Sprintf("%s%04d", head, seq), nil
}
