package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// ErrInvalidPriceList 价目表缺少必需列或无法解析
var ErrInvalidPriceList = errors.New("invalid price list")

var priceListHeaders = []string{"物料编码", "物料名称", "单位", "分类", "供应商编码", "供应商名称", "单价", "GST"}

// 表头别名 → 字段
var priceListColumns = map[string]string{
	"物料编码": "item_code", "item_code": "item_code", "code": "item_code",
	"物料名称": "item_name", "item_name": "item_name", "name": "item_name",
	"单位": "unit", "unit": "unit",
	"分类": "category", "category": "category",
	"供应商编码": "vendor_id", "vendor_id": "vendor_id", "vendor": "vendor_id",
	"供应商名称": "vendor_name", "vendor_name": "vendor_name",
	"单价": "unit_price", "unit_price": "unit_price", "price": "unit_price",
	"gst": "unit_gst", "unit_gst": "unit_gst",
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readPriceListText 读取 CSV 或制表符分隔的价目表
func readPriceListText(r io.Reader, encoding string) ([][]string, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
	case "gbk", "gb2312", "gb18030":
		// GBK → UTF-8
		r = transform.NewReader(r, simplifiedchinese.GBK.NewDecoder())
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %s", ErrInvalidPriceList, encoding)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read price list: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	reader := csv.NewReader(bytes.NewReader(data))
	firstLine := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		firstLine = data[:i]
	}
	if bytes.IndexByte(firstLine, '\t') >= 0 {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPriceList, err)
	}
	return records, nil
}

// parsePriceList 首行为表头；无效行跳过并记录原因
func parsePriceList(records [][]string) ([]repository.PriceListRow, []string, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: empty file", ErrInvalidPriceList)
	}

	index := make(map[string]int)
	for i, h := range records[0] {
		key := strings.ToLower(strings.TrimSpace(h))
		if field, ok := priceListColumns[key]; ok {
			if _, dup := index[field]; !dup {
				index[field] = i
			}
		}
	}
	for _, required := range []string{"item_code", "vendor_id", "unit_price"} {
		if _, ok := index[required]; !ok {
			return nil, nil, fmt.Errorf("%w: missing column %s", ErrInvalidPriceList, required)
		}
	}

	cell := func(row []string, field string) string {
		i, ok := index[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var rows []repository.PriceListRow
	var rowErrors []string
	for n, rec := range records[1:] {
		lineNo := n + 2
		if isBlankRecord(rec) {
			continue
		}

		row := repository.PriceListRow{
			ItemCode:   cell(rec, "item_code"),
			ItemName:   cell(rec, "item_name"),
			Unit:       cell(rec, "unit"),
			Category:   cell(rec, "category"),
			VendorID:   cell(rec, "vendor_id"),
			VendorName: cell(rec, "vendor_name"),
		}
		if row.ItemCode == "" || row.VendorID == "" {
			rowErrors = append(rowErrors, fmt.Sprintf("第%d行: 缺少物料编码或供应商编码", lineNo))
			continue
		}

		price, err := strconv.ParseFloat(cell(rec, "unit_price"), 64)
		if err != nil || price < 0 {
			rowErrors = append(rowErrors, fmt.Sprintf("第%d行: 单价无效", lineNo))
			continue
		}
		row.UnitPrice = price

		if v := cell(rec, "unit_gst"); v != "" {
			gst, err := strconv.ParseFloat(v, 64)
			if err != nil || gst < 0 {
				rowErrors = append(rowErrors, fmt.Sprintf("第%d行: GST无效", lineNo))
				continue
			}
			row.UnitGST = gst
		}
		rows = append(rows, row)
	}
	return rows, rowErrors, nil
}

func isBlankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
