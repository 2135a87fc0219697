package handler

import (
	"github.com/bitfantasy/nimo-procure/internal/procure/service"
	"github.com/gin-gonic/gin"
)

// POHandler 采购订单处理器
type POHandler struct {
	svc *service.ComparisonService
}

func NewPOHandler(svc *service.ComparisonService) *POHandler {
	return &POHandler{svc: svc}
}

// Generate 审批通过的比价生成采购订单（每个供应商一张）
// POST /api/v1/procure/requisitions/:id/purchase-orders
func (h *POHandler) Generate(c *gin.Context) {
	pos, err := h.svc.GeneratePurchaseOrders(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		handleError(c, err)
		return
	}
	Created(c, pos)
}

// ListByRequisition 请购单的采购订单
// GET /api/v1/procure/requisitions/:id/purchase-orders
func (h *POHandler) ListByRequisition(c *gin.Context) {
	pos, err := h.svc.ListPurchaseOrders(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, "获取采购订单失败: "+err.Error())
		return
	}
	Success(c, pos)
}

// Get 采购订单详情
// GET /api/v1/procure/purchase-orders/:id
func (h *POHandler) Get(c *gin.Context) {
	po, err := h.svc.GetPurchaseOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, po)
}

type receiveRequest struct {
	Quantity float64 `json:"quantity" binding:"required"`
}

// ReceiveItem 收货
// POST /api/v1/procure/purchase-orders/:id/items/:itemId/receive
func (h *POHandler) ReceiveItem(c *gin.Context) {
	var req receiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	po, err := h.svc.ReceiveItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), req.Quantity, GetUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	Success(c, po)
}
