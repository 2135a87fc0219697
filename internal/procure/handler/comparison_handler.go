package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-procure/internal/procure/service"
	"github.com/gin-gonic/gin"
)

// ComparisonHandler 供应商比价处理器
type ComparisonHandler struct {
	svc *service.ComparisonService
}

func NewComparisonHandler(svc *service.ComparisonService) *ComparisonHandler {
	return &ComparisonHandler{svc: svc}
}

// revisionRequest 可选的乐观锁版本
type revisionRequest struct {
	ExpectedRevision *int `json:"expected_revision"`
}

type selectionRequest struct {
	VendorID         string `json:"vendor_id"`
	OverrideReason   string `json:"override_reason"`
	ExpectedRevision *int   `json:"expected_revision"`
}

type overrideReasonRequest struct {
	OverrideReason   string `json:"override_reason"`
	ExpectedRevision *int   `json:"expected_revision"`
}

type fleetCostRequest struct {
	Cost             *float64 `json:"cost" binding:"required"`
	GST              float64  `json:"gst"`
	ExpectedRevision *int     `json:"expected_revision"`
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// bindOptional 允许空请求体
func bindOptional(c *gin.Context, obj interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(obj)
}

// expectedRevision 请求体优先，其次 ?expected_revision=
func expectedRevision(c *gin.Context, fromBody *int) *int {
	if fromBody != nil {
		return fromBody
	}
	if v, err := strconv.Atoi(c.Query("expected_revision")); err == nil {
		return &v
	}
	return nil
}

// GetComparison 比价结果
// GET /api/v1/procure/requisitions/:id/comparison
func (h *ComparisonHandler) GetComparison(c *gin.Context) {
	view, err := h.svc.GetComparison(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// Validate 提交校验
// GET /api/v1/procure/requisitions/:id/validation
func (h *ComparisonHandler) Validate(c *gin.Context) {
	errs, err := h.svc.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, gin.H{"submittable": len(errs) == 0, "errors": errs})
}

// ApplySelection 选择行供应商
// PUT /api/v1/procure/requisitions/:id/lines/:lineId/selection
func (h *ComparisonHandler) ApplySelection(c *gin.Context) {
	var req selectionRequest
	if err := bindOptional(c, &req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.ApplySelection(c.Request.Context(), c.Param("id"), GetActor(c),
		c.Param("lineId"), req.VendorID, req.OverrideReason, expectedRevision(c, req.ExpectedRevision))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// SetOverrideReason 议价理由
// PUT /api/v1/procure/requisitions/:id/lines/:lineId/override-reason
func (h *ComparisonHandler) SetOverrideReason(c *gin.Context) {
	var req overrideReasonRequest
	if err := bindOptional(c, &req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.SetOverrideReason(c.Request.Context(), c.Param("id"), GetActor(c),
		c.Param("lineId"), req.OverrideReason, expectedRevision(c, req.ExpectedRevision))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// AutoSelectLowest 全部选择最低价
// POST /api/v1/procure/requisitions/:id/selections/auto-lowest
func (h *ComparisonHandler) AutoSelectLowest(c *gin.Context) {
	var req revisionRequest
	if err := bindOptional(c, &req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.AutoSelectLowest(c.Request.Context(), c.Param("id"), GetActor(c), expectedRevision(c, req.ExpectedRevision))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// ClearSelections 清除全部选择
// DELETE /api/v1/procure/requisitions/:id/selections
func (h *ComparisonHandler) ClearSelections(c *gin.Context) {
	view, err := h.svc.ClearSelections(c.Request.Context(), c.Param("id"), GetActor(c), expectedRevision(c, nil))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// SetFleetCost 设置供应商运费
// PUT /api/v1/procure/requisitions/:id/fleet-costs/:vendorId
func (h *ComparisonHandler) SetFleetCost(c *gin.Context) {
	var req fleetCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.SetFleetCost(c.Request.Context(), c.Param("id"), GetActor(c),
		c.Param("vendorId"), *req.Cost, req.GST, expectedRevision(c, req.ExpectedRevision))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// ClearFleetCost 清除供应商运费
// DELETE /api/v1/procure/requisitions/:id/fleet-costs/:vendorId
func (h *ComparisonHandler) ClearFleetCost(c *gin.Context) {
	view, err := h.svc.ClearFleetCost(c.Request.Context(), c.Param("id"), GetActor(c),
		c.Param("vendorId"), expectedRevision(c, nil))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// StartComparison 开始比价
// POST /api/v1/procure/requisitions/:id/start-comparison
func (h *ComparisonHandler) StartComparison(c *gin.Context) {
	view, err := h.svc.StartComparison(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// Submit 提交审批，校验失败返回 42200 及全部错误
// POST /api/v1/procure/requisitions/:id/submit
func (h *ComparisonHandler) Submit(c *gin.Context) {
	view, err := h.svc.SubmitForApproval(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// Approve 审批通过
// POST /api/v1/procure/requisitions/:id/approve
func (h *ComparisonHandler) Approve(c *gin.Context) {
	view, err := h.svc.Approve(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// Reject 审批驳回
// POST /api/v1/procure/requisitions/:id/reject
func (h *ComparisonHandler) Reject(c *gin.Context) {
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "请填写驳回原因")
		return
	}
	view, err := h.svc.Reject(c.Request.Context(), c.Param("id"), GetActor(c), req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// Rework 驳回后重新比价
// POST /api/v1/procure/requisitions/:id/rework
func (h *ComparisonHandler) Rework(c *gin.Context) {
	view, err := h.svc.Rework(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, view)
}

// Delete 删除请购单
// DELETE /api/v1/procure/requisitions/:id
func (h *ComparisonHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), GetActor(c)); err != nil {
		handleError(c, err)
		return
	}
	Success(c, nil)
}

// Export 导出比价Excel
// GET /api/v1/procure/requisitions/:id/comparison/export
func (h *ComparisonHandler) Export(c *gin.Context) {
	f, filename, err := h.svc.ExportComparison(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write excel: "+err.Error())
	}
}

// Archive 导出比价并存入对象存储
// POST /api/v1/procure/requisitions/:id/comparison/archive
func (h *ComparisonHandler) Archive(c *gin.Context) {
	result, err := h.svc.ArchiveComparison(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		handleError(c, err)
		return
	}
	Created(c, result)
}

// Activities 操作日志
// GET /api/v1/procure/requisitions/:id/activities
func (h *ComparisonHandler) Activities(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.Activities(c.Request.Context(), c.Param("id"), page, pageSize)
	if err != nil {
		InternalError(c, "获取操作日志失败: "+err.Error())
		return
	}
	Success(c, newListResponse(items, total, page, pageSize))
}
