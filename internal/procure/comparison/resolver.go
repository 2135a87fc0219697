package comparison

import (
	"context"
	"fmt"
	"sort"
)

// VendorPriceRecord 目录物料的一条供应商报价
type VendorPriceRecord struct {
	VendorID   string  `json:"vendor_id"`
	VendorName string  `json:"vendor_name"`
	UnitPrice  float64 `json:"unit_price"`
	UnitGST    float64 `json:"unit_gst"`
	Active     bool    `json:"active"`
}

// CatalogProvider supplies vendor price records per catalog item, in the
// order the catalog holds them.
type CatalogProvider interface {
	GetVendorOptions(ctx context.Context, catalogItemID string) ([]VendorPriceRecord, error)
}

// Catalog is an immutable snapshot of vendor price records keyed by catalog item ID.
type Catalog map[string][]VendorPriceRecord

// FetchCatalog reads the price records of every distinct catalog item referenced
// by lines. The snapshot is not refreshed afterwards.
func FetchCatalog(ctx context.Context, provider CatalogProvider, lines []Line) (Catalog, error) {
	catalog := make(Catalog, len(lines))
	for _, line := range lines {
		if _, ok := catalog[line.CatalogItemID]; ok {
			continue
		}
		records, err := provider.GetVendorOptions(ctx, line.CatalogItemID)
		if err != nil {
			return nil, fmt.Errorf("load vendor options for %s: %w", line.CatalogItemID, err)
		}
		catalog[line.CatalogItemID] = records
	}
	return catalog, nil
}

// Line 请购行
type Line struct {
	ID            string  `json:"id"`
	CatalogItemID string  `json:"catalog_item_id"`
	ItemName      string  `json:"item_name"`
	Unit          string  `json:"unit"`
	Quantity      float64 `json:"quantity"`
	Remark        string  `json:"remark"`
}

// VendorOption 单行单供应商的比价明细
type VendorOption struct {
	VendorID      string  `json:"vendor_id"`
	VendorName    string  `json:"vendor_name"`
	UnitPrice     float64 `json:"unit_price"`
	UnitGST       float64 `json:"unit_gst"`
	UnitTotal     float64 `json:"unit_total"`
	ExtendedCost  float64 `json:"extended_cost"`
	ExtendedGST   float64 `json:"extended_gst"`
	ExtendedTotal float64 `json:"extended_total"`
	IsLowest      bool    `json:"is_lowest"`
}

// ResolvedLine is a line together with its ranked vendor options.
type ResolvedLine struct {
	Line
	Options          []VendorOption `json:"options"`
	HasActiveVendors bool           `json:"has_active_vendors"`
}

// Lowest returns the option flagged lowest, or nil when the line has no active vendors.
func (r *ResolvedLine) Lowest() *VendorOption {
	if len(r.Options) == 0 {
		return nil
	}
	return &r.Options[0]
}

// Option returns the option offered by vendorID.
func (r *ResolvedLine) Option(vendorID string) (*VendorOption, bool) {
	for i := range r.Options {
		if r.Options[i].VendorID == vendorID {
			return &r.Options[i], true
		}
	}
	return nil, false
}

// ResolveLine ranks the active vendor records of one line by unit total.
// Equal unit totals keep the order the records were supplied in.
func ResolveLine(line Line, records []VendorPriceRecord) ResolvedLine {
	options := make([]VendorOption, 0, len(records))
	for _, rec := range records {
		if !rec.Active {
			continue
		}
		unitTotal := rec.UnitPrice + rec.UnitGST
		options = append(options, VendorOption{
			VendorID:      rec.VendorID,
			VendorName:    rec.VendorName,
			UnitPrice:     rec.UnitPrice,
			UnitGST:       rec.UnitGST,
			UnitTotal:     unitTotal,
			ExtendedCost:  line.Quantity * rec.UnitPrice,
			ExtendedGST:   line.Quantity * rec.UnitGST,
			ExtendedTotal: line.Quantity * unitTotal,
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].UnitTotal < options[j].UnitTotal
	})
	if len(options) > 0 {
		options[0].IsLowest = true
	}

	return ResolvedLine{
		Line:             line,
		Options:          options,
		HasActiveVendors: len(options) > 0,
	}
}

// ResolveOptions resolves every line against the catalog snapshot, preserving line order.
func ResolveOptions(lines []Line, catalog Catalog) []ResolvedLine {
	resolved := make([]ResolvedLine, 0, len(lines))
	for _, line := range lines {
		resolved = append(resolved, ResolveLine(line, catalog[line.CatalogItemID]))
	}
	return resolved
}
