package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var (
	// ErrInvalidPrice 报价不能为负
	ErrInvalidPrice = errors.New("unit price and gst must be non-negative")

	// ErrDuplicateVendorPrice 同一物料同一供应商只能有一条报价
	ErrDuplicateVendorPrice = errors.New("vendor already quoted for this item")
)

// CatalogService 物料目录与供应商报价维护
type CatalogService struct {
	catalogRepo     *repository.CatalogRepository
	activityLogRepo *repository.ActivityLogRepository
	logger          *zap.Logger
}

func NewCatalogService(repos *repository.Repositories, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		catalogRepo:     repos.Catalog,
		activityLogRepo: repos.ActivityLog,
		logger:          logger,
	}
}

type CatalogPriceInput struct {
	VendorID   string  `json:"vendor_id" binding:"required"`
	VendorName string  `json:"vendor_name"`
	UnitPrice  float64 `json:"unit_price"`
	UnitGST    float64 `json:"unit_gst"`
}

type CreateCatalogItemRequest struct {
	Code     string              `json:"code" binding:"required"`
	Name     string              `json:"name" binding:"required"`
	Unit     string              `json:"unit"`
	Category string              `json:"category"`
	Prices   []CatalogPriceInput `json:"prices"`
}

// Create 新建物料，报价按传入顺序排序
func (s *CatalogService) Create(ctx context.Context, userID string, req *CreateCatalogItemRequest) (*entity.CatalogItem, error) {
	item := &entity.CatalogItem{
		Code:     strings.TrimSpace(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Unit:     req.Unit,
		Category: req.Category,
	}
	if item.Unit == "" {
		item.Unit = "nos"
	}
	seen := make(map[string]bool)
	for _, p := range req.Prices {
		if p.UnitPrice < 0 || p.UnitGST < 0 {
			return nil, fmt.Errorf("%w: vendor %s", ErrInvalidPrice, p.VendorID)
		}
		if seen[p.VendorID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateVendorPrice, p.VendorID)
		}
		seen[p.VendorID] = true
		item.Prices = append(item.Prices, entity.VendorPrice{
			VendorID:   p.VendorID,
			VendorName: p.VendorName,
			UnitPrice:  p.UnitPrice,
			UnitGST:    p.UnitGST,
			Active:     true,
		})
	}

	if err := s.catalogRepo.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("创建物料失败: %w", err)
	}
	s.logActivity(ctx, item.ID, item.Code, entity.ActionCreate,
		fmt.Sprintf("新建物料 %s（%d 条报价）", item.Name, len(item.Prices)), userID)
	return item, nil
}

func (s *CatalogService) Get(ctx context.Context, id string) (*entity.CatalogItem, error) {
	return s.catalogRepo.FindItemByID(ctx, id)
}

func (s *CatalogService) List(ctx context.Context, page, pageSize int, search string) ([]entity.CatalogItem, int64, error) {
	return s.catalogRepo.FindItems(ctx, page, pageSize, search)
}

// SetPriceActive 启用或停用供应商报价；停用后已选该报价的比价行会出现失效提示
func (s *CatalogService) SetPriceActive(ctx context.Context, userID, itemID, vendorID string, active bool) error {
	item, err := s.catalogRepo.FindItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if err := s.catalogRepo.SetPriceActive(ctx, itemID, vendorID, active); err != nil {
		return err
	}

	action := "停用"
	if active {
		action = "启用"
	}
	s.logActivity(ctx, item.ID, item.Code, entity.ActionPriceActive,
		fmt.Sprintf("%s供应商 %s 报价", action, vendorID), userID)
	s.logger.Info("vendor price toggled",
		zap.String("item", item.Code),
		zap.String("vendor", vendorID),
		zap.Bool("active", active))
	return nil
}

// ImportResult 价目表导入结果
type ImportResult struct {
	repository.PriceListStats
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// ImportPriceList 导入文本价目表（CSV 或制表符分隔），encoding 为 gbk 时先转码
func (s *CatalogService) ImportPriceList(ctx context.Context, userID string, r io.Reader, encoding string) (*ImportResult, error) {
	records, err := readPriceListText(r, encoding)
	if err != nil {
		return nil, err
	}
	return s.importRecords(ctx, userID, records)
}

// ImportPriceListExcel 从Excel首个工作表导入价目表
func (s *CatalogService) ImportPriceListExcel(ctx context.Context, userID string, f *excelize.File) (*ImportResult, error) {
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read excel: %w", err)
	}
	return s.importRecords(ctx, userID, rows)
}

func (s *CatalogService) importRecords(ctx context.Context, userID string, records [][]string) (*ImportResult, error) {
	rows, rowErrors, err := parsePriceList(records)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Failed: len(rowErrors), Errors: rowErrors}
	if len(rows) > 0 {
		stats, err := s.catalogRepo.ImportPriceList(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("导入价目表失败: %w", err)
		}
		result.PriceListStats = *stats
	}

	s.logActivity(ctx, "price_list", "", entity.ActionImportPrices,
		fmt.Sprintf("导入价目表：新增物料 %d，新增报价 %d，更新报价 %d，失败 %d",
			result.ItemsCreated, result.PricesCreated, result.PricesUpdated, result.Failed), userID)
	s.logger.Info("price list imported",
		zap.Int("rows", len(rows)),
		zap.Int("failed", result.Failed),
		zap.String("operator", userID))
	return result, nil
}

// GeneratePriceListTemplate 价目表导入模板
func (s *CatalogService) GeneratePriceListTemplate() (*excelize.File, error) {
	f := excelize.NewFile()
	sheet := "价目表"
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	writeHeader(f, sheet, priceListHeaders, boldStyle)
	setColWidths(f, sheet, []float64{16, 24, 8, 14, 14, 24, 10, 10})

	helpSheet := "填写说明"
	if _, err := f.NewSheet(helpSheet); err != nil {
		return nil, err
	}
	helpData := [][]string{
		{"列名", "说明", "是否必填"},
		{"物料编码", "目录物料编码，不存在时按名称新建", "是"},
		{"物料名称", "新建物料时必填", "否"},
		{"单位", "bag/rod/cft，默认nos", "否"},
		{"分类", "物料分类", "否"},
		{"供应商编码", "供应商唯一编码", "是"},
		{"供应商名称", "显示名称", "否"},
		{"单价", "不含税单价", "是"},
		{"GST", "单位GST金额，默认0", "否"},
	}
	for i, row := range helpData {
		for j, v := range row {
			col, _ := excelize.ColumnNumberToName(j + 1)
			f.SetCellValue(helpSheet, fmt.Sprintf("%s%d", col, i+1), v)
		}
	}
	setColWidths(f, helpSheet, []float64{14, 36, 10})
	return f, nil
}

func (s *CatalogService) logActivity(ctx context.Context, entityID, entityCode, action, content, operatorID string) {
	if err := s.activityLogRepo.LogActivity(ctx, "catalog", entityID, entityCode, action, "", "", content, operatorID); err != nil {
		s.logger.Warn("write activity log", zap.String("entity_id", entityID), zap.Error(err))
	}
}
