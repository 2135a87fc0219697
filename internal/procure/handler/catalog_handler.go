package handler

import (
	"path/filepath"
	"strings"

	"github.com/bitfantasy/nimo-procure/internal/procure/service"
	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
)

// CatalogHandler 物料目录与价目表
type CatalogHandler struct {
	svc *service.CatalogService
}

func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// List GET /api/v1/procure/catalog/items?search=xxx
func (h *CatalogHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, c.Query("search"))
	if err != nil {
		InternalError(c, "获取物料列表失败: "+err.Error())
		return
	}
	Success(c, newListResponse(items, total, page, pageSize))
}

// Get GET /api/v1/procure/catalog/items/:id
func (h *CatalogHandler) Get(c *gin.Context) {
	item, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, item)
}

// Create POST /api/v1/procure/catalog/items
func (h *CatalogHandler) Create(c *gin.Context) {
	var req service.CreateCatalogItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	item, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	Created(c, item)
}

// SetPriceActive PUT /api/v1/procure/catalog/items/:id/prices/:vendorId/active
func (h *CatalogHandler) SetPriceActive(c *gin.Context) {
	var req struct {
		Active *bool `json:"active" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	err := h.svc.SetPriceActive(c.Request.Context(), GetUserID(c), c.Param("id"), c.Param("vendorId"), *req.Active)
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, gin.H{"active": *req.Active})
}

// ImportPriceList 上传价目表：.xlsx 或 .csv/.txt，文本文件可带 ?encoding=gbk
// POST /api/v1/procure/catalog/price-list/import
func (h *CatalogHandler) ImportPriceList(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		BadRequest(c, "请上传价目表文件")
		return
	}
	defer file.Close()

	var result *service.ImportResult
	if strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		f, err := excelize.OpenReader(file)
		if err != nil {
			BadRequest(c, "无法解析Excel文件: "+err.Error())
			return
		}
		defer f.Close()
		result, err = h.svc.ImportPriceListExcel(c.Request.Context(), GetUserID(c), f)
		if err != nil {
			handleError(c, err)
			return
		}
	} else {
		result, err = h.svc.ImportPriceList(c.Request.Context(), GetUserID(c), file, c.Query("encoding"))
		if err != nil {
			handleError(c, err)
			return
		}
	}
	Success(c, result)
}

// DownloadTemplate GET /api/v1/procure/catalog/price-list/template
func (h *CatalogHandler) DownloadTemplate(c *gin.Context) {
	f, err := h.svc.GeneratePriceListTemplate()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\"Price_List_Template.xlsx\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write template: "+err.Error())
	}
}
