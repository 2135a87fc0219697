package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequisitionService 请购单服务
type RequisitionService struct {
	reqRepo         *repository.RequisitionRepository
	catalogRepo     *repository.CatalogRepository
	activityLogRepo *repository.ActivityLogRepository
	logger          *zap.Logger
}

func NewRequisitionService(repos *repository.Repositories, logger *zap.Logger) *RequisitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequisitionService{
		reqRepo:         repos.Requisition,
		catalogRepo:     repos.Catalog,
		activityLogRepo: repos.ActivityLog,
		logger:          logger,
	}
}

// CreateRequisitionRequest 创建请购单请求
type CreateRequisitionRequest struct {
	Title     string                  `json:"title" binding:"required"`
	ProjectID *string                 `json:"project_id"`
	Notes     string                  `json:"notes"`
	Lines     []CreateRequisitionLine `json:"lines" binding:"required,dive"`
}

type CreateRequisitionLine struct {
	CatalogItemID string  `json:"catalog_item_id" binding:"required"`
	Quantity      float64 `json:"quantity" binding:"required"`
	Remark        string  `json:"remark"`
}

// Create 创建草稿请购单，物料名称与单位取自目录
func (s *RequisitionService) Create(ctx context.Context, userID string, req *CreateRequisitionRequest) (*entity.Requisition, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyRequisition
	}

	code, err := s.reqRepo.GenerateCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("生成请购单编码失败: %w", err)
	}

	r := &entity.Requisition{
		ID:          uuid.New().String()[:32],
		Code:        code,
		Title:       req.Title,
		ProjectID:   req.ProjectID,
		Status:      comparison.StatusDraft,
		RequestedBy: userID,
		Notes:       req.Notes,
	}

	for i, line := range req.Lines {
		if !(line.Quantity > 0) {
			return nil, fmt.Errorf("%w: line %d", ErrInvalidQuantity, i+1)
		}
		item, err := s.catalogRepo.FindItemByID(ctx, line.CatalogItemID)
		if err != nil {
			return nil, fmt.Errorf("物料 %s: %w", line.CatalogItemID, err)
		}
		r.Lines = append(r.Lines, entity.RequisitionLine{
			ID:            uuid.New().String()[:32],
			RequisitionID: r.ID,
			CatalogItemID: item.ID,
			ItemName:      item.Name,
			Unit:          item.Unit,
			Quantity:      line.Quantity,
			Remark:        line.Remark,
			SortOrder:     i + 1,
		})
	}

	if err := s.reqRepo.Create(ctx, r); err != nil {
		return nil, err
	}

	if err := s.activityLogRepo.LogActivity(ctx, "requisition", r.ID, r.Code, entity.ActionCreate, "", r.Status,
		fmt.Sprintf("创建请购单，共 %d 行", len(r.Lines)), userID); err != nil {
		s.logger.Warn("write activity log", zap.String("requisition_id", r.ID), zap.Error(err))
	}
	s.logger.Info("requisition created", zap.String("requisition_id", r.ID), zap.String("code", r.Code))
	return r, nil
}

// List 请购单列表
func (s *RequisitionService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Requisition, int64, error) {
	return s.reqRepo.FindAll(ctx, page, pageSize, filters)
}

// Get 请购单详情
func (s *RequisitionService) Get(ctx context.Context, id string) (*entity.Requisition, error) {
	r, err := s.reqRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status == comparison.StatusDeleted {
		return nil, repository.ErrNotFound
	}
	return r, nil
}

// VendorOptions 物料的有效报价，按含税单价排序
func (s *RequisitionService) VendorOptions(ctx context.Context, catalogItemID string) (*comparison.ResolvedLine, error) {
	item, err := s.catalogRepo.FindItemByID(ctx, catalogItemID)
	if err != nil {
		return nil, err
	}
	records, err := s.catalogRepo.GetVendorOptions(ctx, catalogItemID)
	if err != nil {
		return nil, err
	}
	line := comparison.ResolveLine(comparison.Line{
		ID:            item.ID,
		CatalogItemID: item.ID,
		ItemName:      item.Name,
		Unit:          item.Unit,
		Quantity:      1,
	}, records)
	return &line, nil
}
