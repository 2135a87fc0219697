package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var comparisonExportHeaders = []string{
	"序号", "物料", "单位", "数量", "供应商", "单价", "GST", "含税单价", "金额", "GST金额", "合计", "最低价", "议价理由",
}

// ExportComparison 导出比价结果：汇总页 + 每个供应商一页
func (s *ComparisonService) ExportComparison(ctx context.Context, id string) (*excelize.File, string, error) {
	req, session, err := s.load(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return buildComparisonWorkbook(req, session)
}

func buildComparisonWorkbook(req *entity.Requisition, session *comparison.Session) (*excelize.File, string, error) {
	result := session.ComparisonResult().Rounded()

	f := excelize.NewFile()
	summary := "汇总"
	f.SetSheetName("Sheet1", summary)

	// 表头样式: 加粗
	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	moneyStyle, _ := f.NewStyle(&excelize.Style{NumFmt: 4})
	totalStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: 4})

	summaryHeaders := []string{"供应商", "行数", "物料金额", "物料GST", "物料合计", "运费", "运费GST", "总计"}
	writeHeader(f, summary, summaryHeaders, boldStyle)
	for i, g := range result.Groups {
		row := i + 2
		f.SetCellValue(summary, fmt.Sprintf("A%d", row), g.VendorName)
		f.SetCellValue(summary, fmt.Sprintf("B%d", row), len(g.Entries))
		f.SetCellValue(summary, fmt.Sprintf("C%d", row), g.ItemsSubtotal)
		f.SetCellValue(summary, fmt.Sprintf("D%d", row), g.ItemsGST)
		f.SetCellValue(summary, fmt.Sprintf("E%d", row), g.ItemsGrandTotal)
		f.SetCellValue(summary, fmt.Sprintf("F%d", row), g.FleetCost)
		f.SetCellValue(summary, fmt.Sprintf("G%d", row), g.FleetGST)
		f.SetCellValue(summary, fmt.Sprintf("H%d", row), g.FinalTotal)
		f.SetCellStyle(summary, fmt.Sprintf("C%d", row), fmt.Sprintf("H%d", row), moneyStyle)
	}
	totalRow := len(result.Groups) + 2
	f.SetCellValue(summary, fmt.Sprintf("A%d", totalRow), "合计")
	f.SetCellValue(summary, fmt.Sprintf("H%d", totalRow), result.OverallTotal)
	f.SetCellStyle(summary, fmt.Sprintf("A%d", totalRow), fmt.Sprintf("H%d", totalRow), totalStyle)
	setColWidths(f, summary, []float64{24, 8, 14, 12, 14, 12, 12, 14})

	for _, g := range result.Groups {
		sheet := vendorSheetName(f, g)
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, "", fmt.Errorf("new sheet: %w", err)
		}
		writeHeader(f, sheet, comparisonExportHeaders, boldStyle)
		for i, e := range g.Entries {
			writeEntry(f, sheet, i+2, i+1, g.VendorName, e, moneyStyle)
		}

		row := len(g.Entries) + 2
		for _, t := range []struct {
			label string
			value float64
		}{
			{"物料合计", g.ItemsGrandTotal},
			{"运费", g.FleetCost},
			{"运费GST", g.FleetGST},
			{"总计", g.FinalTotal},
		} {
			f.SetCellValue(sheet, fmt.Sprintf("J%d", row), t.label)
			f.SetCellValue(sheet, fmt.Sprintf("K%d", row), t.value)
			f.SetCellStyle(sheet, fmt.Sprintf("J%d", row), fmt.Sprintf("K%d", row), totalStyle)
			row++
		}
		setColWidths(f, sheet, []float64{6, 24, 8, 8, 20, 10, 10, 10, 12, 12, 12, 8, 30})
	}

	filename := fmt.Sprintf("Comparison_%s_r%d.xlsx", req.Code, req.Revision)
	return f, filename, nil
}

func writeHeader(f *excelize.File, sheet string, headers []string, style int) {
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, style)
	}
}

func writeEntry(f *excelize.File, sheet string, row, seq int, vendorName string, e comparison.GroupEntry, moneyStyle int) {
	lowest := "否"
	if e.IsLowest {
		lowest = "是"
	}
	values := []interface{}{
		seq, e.ItemName, e.Unit, e.Quantity, vendorName,
		e.UnitPrice, e.UnitGST, e.UnitTotal,
		e.ExtendedCost, e.ExtendedGST, e.ExtendedTotal,
		lowest, e.OverrideReason,
	}
	for i, v := range values {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v)
	}
	f.SetCellStyle(sheet, fmt.Sprintf("I%d", row), fmt.Sprintf("K%d", row), moneyStyle)
}

func setColWidths(f *excelize.File, sheet string, widths []float64) {
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}
}

var sheetNameReplacer = strings.NewReplacer(":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")")

// vendorSheetName 工作表名最长31字符且不可重复
func vendorSheetName(f *excelize.File, g comparison.VendorGroup) string {
	name := g.VendorName
	if name == "" {
		name = g.VendorID
	}
	runes := []rune(sheetNameReplacer.Replace(name))
	if len(runes) > 28 {
		runes = runes[:28]
	}
	base := string(runes)
	name = base
	for n := 2; ; n++ {
		if idx, _ := f.GetSheetIndex(name); idx == -1 {
			return name
		}
		name = fmt.Sprintf("%s~%d", base, n)
	}
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Archiver 导出文件归档存储
type Archiver interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
}

// ArchiveResult 归档后的对象信息
type ArchiveResult struct {
	ObjectKey string `json:"object_key"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	Revision  int    `json:"revision"`
}

// SetArchiver 启用比价导出归档
func (s *ComparisonService) SetArchiver(a Archiver) {
	s.archiver = a
}

// ArchiveComparison 导出当前比价并存档，对象键按请购单编码和版本区分
func (s *ComparisonService) ArchiveComparison(ctx context.Context, id string, actor Actor) (*ArchiveResult, error) {
	if s.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	req, session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	f, filename, err := buildComparisonWorkbook(req, session)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}

	key := fmt.Sprintf("comparisons/%s/%s", req.Code, filename)
	size := int64(buf.Len())
	if err := s.archiver.PutObject(ctx, key, bytes.NewReader(buf.Bytes()), size, xlsxContentType); err != nil {
		return nil, fmt.Errorf("归档比价导出失败: %w", err)
	}

	s.logActivity(ctx, req, entity.ActionArchive, "", "", "归档比价导出 "+key, actor.UserID)
	s.logger.Info("comparison export archived",
		zap.String("requisition_id", req.ID),
		zap.String("object_key", key),
		zap.Int64("size", size))

	return &ArchiveResult{ObjectKey: key, Filename: filename, Size: size, Revision: req.Revision}, nil
}
