package handler

import (
	"github.com/bitfantasy/nimo-procure/internal/procure/service"
	"github.com/gin-gonic/gin"
)

// RequisitionHandler 请购单处理器
type RequisitionHandler struct {
	svc *service.RequisitionService
}

func NewRequisitionHandler(svc *service.RequisitionService) *RequisitionHandler {
	return &RequisitionHandler{svc: svc}
}

// Create 创建请购单
// POST /api/v1/procure/requisitions
func (h *RequisitionHandler) Create(c *gin.Context) {
	var req service.CreateRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	r, err := h.svc.Create(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	Created(c, r)
}

// List 请购单列表
// GET /api/v1/procure/requisitions?status=xxx&project_id=xxx&search=xxx
func (h *RequisitionHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"status":     c.Query("status"),
		"project_id": c.Query("project_id"),
		"search":     c.Query("search"),
	}

	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		InternalError(c, "获取请购单列表失败: "+err.Error())
		return
	}
	Success(c, newListResponse(items, total, page, pageSize))
}

// Get 请购单详情
// GET /api/v1/procure/requisitions/:id
func (h *RequisitionHandler) Get(c *gin.Context) {
	r, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, r)
}

// VendorOptions 物料的有效报价（按含税单价排序）
// GET /api/v1/procure/catalog/items/:id/vendor-options
func (h *RequisitionHandler) VendorOptions(c *gin.Context) {
	line, err := h.svc.VendorOptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, line)
}
