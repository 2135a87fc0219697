package handler

import (
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-procure/internal/middleware"
	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
	"github.com/bitfantasy/nimo-procure/internal/procure/service"
	"github.com/bitfantasy/nimo-procure/internal/procure/sse"
	"github.com/gin-gonic/gin"
)

// Handlers 采购比价处理器集合
type Handlers struct {
	Requisition *RequisitionHandler
	Catalog     *CatalogHandler
	Comparison  *ComparisonHandler
	PO          *POHandler
	SSE         *SSEHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(reqSvc *service.RequisitionService, catalogSvc *service.CatalogService, cmpSvc *service.ComparisonService, hub *sse.Hub) *Handlers {
	return &Handlers{
		Requisition: NewRequisitionHandler(reqSvc),
		Catalog:     NewCatalogHandler(catalogSvc),
		Comparison:  NewComparisonHandler(cmpSvc),
		PO:          NewPOHandler(cmpSvc),
		SSE:         NewSSEHandler(hub),
	}
}

// RegisterRoutes 注册 /api/v1/procure 下的路由，api 需已挂载 JWT 认证
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	reqs := api.Group("/requisitions")
	{
		reqs.POST("", h.Requisition.Create)
		reqs.GET("", h.Requisition.List)
		reqs.GET("/:id", h.Requisition.Get)
		reqs.DELETE("/:id", h.Comparison.Delete)
		reqs.GET("/:id/activities", h.Comparison.Activities)

		reqs.POST("/:id/start-comparison", h.Comparison.StartComparison)
		reqs.GET("/:id/comparison", h.Comparison.GetComparison)
		reqs.GET("/:id/comparison/export", h.Comparison.Export)
		reqs.POST("/:id/comparison/archive", h.Comparison.Archive)
		reqs.GET("/:id/validation", h.Comparison.Validate)
		reqs.PUT("/:id/lines/:lineId/selection", h.Comparison.ApplySelection)
		reqs.PUT("/:id/lines/:lineId/override-reason", h.Comparison.SetOverrideReason)
		reqs.POST("/:id/selections/auto-lowest", h.Comparison.AutoSelectLowest)
		reqs.DELETE("/:id/selections", h.Comparison.ClearSelections)
		reqs.PUT("/:id/fleet-costs/:vendorId", h.Comparison.SetFleetCost)
		reqs.DELETE("/:id/fleet-costs/:vendorId", h.Comparison.ClearFleetCost)

		reqs.POST("/:id/submit", h.Comparison.Submit)
		reqs.POST("/:id/approve", h.Comparison.Approve)
		reqs.POST("/:id/reject", h.Comparison.Reject)
		reqs.POST("/:id/rework", h.Comparison.Rework)

		reqs.POST("/:id/purchase-orders", h.PO.Generate)
		reqs.GET("/:id/purchase-orders", h.PO.ListByRequisition)
	}

	api.GET("/purchase-orders/:id", h.PO.Get)
	api.POST("/purchase-orders/:id/items/:itemId/receive", h.PO.ReceiveItem)
	catalog := api.Group("/catalog")
	{
		catalog.GET("/items", h.Catalog.List)
		catalog.GET("/items/:id", h.Catalog.Get)
		catalog.GET("/items/:id/vendor-options", h.Requisition.VendorOptions)
		catalog.GET("/price-list/template", h.Catalog.DownloadTemplate)

		manage := catalog.Group("", middleware.RequirePermission(middleware.PermManageCatalog))
		manage.POST("/items", h.Catalog.Create)
		manage.PUT("/items/:id/prices/:vendorId/active", h.Catalog.SetPriceActive)
		manage.POST("/price-list/import", h.Catalog.ImportPriceList)
	}
	api.GET("/events", h.SSE.Stream)
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}

func newListResponse(items interface{}, total int64, page, pageSize int) ListResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	}
}

// GetActor 当前用户及其比价能力（来自 JWT perms）
func GetActor(c *gin.Context) service.Actor {
	return service.Actor{
		UserID: GetUserID(c),
		Caps: comparison.Capabilities{
			CanSelectVendor:  middleware.HasPermission(c, middleware.PermSelectVendor),
			CanOverridePrice: middleware.HasPermission(c, middleware.PermOverridePrice),
			CanApprove:       middleware.HasPermission(c, middleware.PermApprove),
		},
	}
}

// handleError 把服务层错误映射为响应码
func handleError(c *gin.Context, err error) {
	var vf *comparison.ValidationFailedError
	switch {
	case errors.As(err, &vf):
		ErrorWithData(c, 42200, "提交校验未通过", gin.H{"errors": vf.Errors})
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, comparison.ErrUnknownLine):
		NotFound(c, err.Error())
	case errors.Is(err, comparison.ErrPermissionDenied):
		Forbidden(c, err.Error())
	case errors.Is(err, service.ErrRevisionConflict),
		errors.Is(err, service.ErrLeaseHeld),
		errors.Is(err, service.ErrNotComparing),
		errors.Is(err, service.ErrNotApproved),
		errors.Is(err, service.ErrStaleComparison),
		errors.Is(err, repository.ErrPOsExist),
		errors.Is(err, comparison.ErrInvalidTransition):
		Conflict(c, err.Error())
	case errors.Is(err, comparison.ErrUnknownVendor),
		errors.Is(err, comparison.ErrInvalidFleetCost),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrEmptyRequisition),
		errors.Is(err, service.ErrInvalidPrice),
		errors.Is(err, service.ErrDuplicateVendorPrice),
		errors.Is(err, service.ErrInvalidPriceList),
		errors.Is(err, repository.ErrUnknownItem),
		errors.Is(err, repository.ErrOverReceipt):
		BadRequest(c, err.Error())
	case errors.Is(err, service.ErrArchiveDisabled):
		Error(c, 50300, err.Error())
	default:
		_ = c.Error(err)
		InternalError(c, err.Error())
	}
}
