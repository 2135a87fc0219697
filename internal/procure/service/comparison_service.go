package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-procure/internal/config"
	"github.com/bitfantasy/nimo-procure/internal/procure/comparison"
	"github.com/bitfantasy/nimo-procure/internal/procure/entity"
	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
	"github.com/bitfantasy/nimo-procure/internal/procure/sse"
	"go.uber.org/zap"
)

// Publisher 比价变化通知
type Publisher interface {
	PublishRequisitionUpdate(update sse.RequisitionUpdate)
}

// Actor 操作人及其能力
type Actor struct {
	UserID string
	Caps   comparison.Capabilities
}

// ComparisonService 供应商比价服务
type ComparisonService struct {
	reqRepo         *repository.RequisitionRepository
	poRepo          *repository.PORepository
	activityLogRepo *repository.ActivityLogRepository
	catalog         comparison.CatalogProvider
	leases          LeaseStore
	publisher       Publisher
	archiver        Archiver
	cfg             config.ProcureConfig
	logger          *zap.Logger
}

func NewComparisonService(repos *repository.Repositories, leases LeaseStore, publisher Publisher, cfg config.ProcureConfig, logger *zap.Logger) *ComparisonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.POCodePrefix == "" {
		cfg.POCodePrefix = "PO"
	}
	return &ComparisonService{
		reqRepo:         repos.Requisition,
		poRepo:          repos.PO,
		activityLogRepo: repos.ActivityLog,
		catalog:         repos.Catalog,
		leases:          leases,
		publisher:       publisher,
		cfg:             cfg,
		logger:          logger,
	}
}

// LineView 比价行：候选报价与当前选择
type LineView struct {
	comparison.ResolvedLine
	Selection *comparison.Selection `json:"selection,omitempty"`
}

// ComparisonView 比价页面数据，金额已按两位小数呈现
type ComparisonView struct {
	RequisitionID string                       `json:"requisition_id"`
	Code          string                       `json:"code"`
	Status        string                       `json:"status"`
	Revision      int                          `json:"revision"`
	Lines         []LineView                   `json:"lines"`
	FleetCosts    comparison.FleetCosts        `json:"fleet_costs"`
	Result        comparison.Result            `json:"result"`
	Errors        []comparison.ValidationError `json:"errors"`
	Warnings      []comparison.Warning         `json:"warnings"`
	Submittable   bool                         `json:"submittable"`
}

// load 读取请购单并按当前目录报价构建会话
func (s *ComparisonService) load(ctx context.Context, id string) (*entity.Requisition, *comparison.Session, error) {
	req, err := s.reqRepo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if req.Status == comparison.StatusDeleted {
		return nil, nil, repository.ErrNotFound
	}

	lines := req.EngineLines()
	catalog, err := comparison.FetchCatalog(ctx, s.catalog, lines)
	if err != nil {
		return nil, nil, fmt.Errorf("读取供应商报价失败: %w", err)
	}
	session := comparison.NewSession(
		comparison.ResolveOptions(lines, catalog),
		req.EngineSelections(),
		req.EngineFleetCosts(),
	)
	return req, session, nil
}

func (s *ComparisonService) view(req *entity.Requisition, session *comparison.Session) *ComparisonView {
	selections := session.Selections()
	lines := session.Lines()

	v := &ComparisonView{
		RequisitionID: req.ID,
		Code:          req.Code,
		Status:        req.Status,
		Revision:      req.Revision,
		Lines:         make([]LineView, 0, len(lines)),
		FleetCosts:    session.FleetCosts(),
		Result:        session.ComparisonResult().Rounded(),
		Errors:        session.Validate(),
		Warnings:      session.Warnings(),
	}
	v.Submittable = len(v.Errors) == 0

	for _, l := range lines {
		lv := LineView{ResolvedLine: l}
		lv.Options = make([]comparison.VendorOption, len(l.Options))
		for i, opt := range l.Options {
			opt.ExtendedCost = comparison.Round2(opt.ExtendedCost)
			opt.ExtendedGST = comparison.Round2(opt.ExtendedGST)
			opt.ExtendedTotal = comparison.Round2(opt.ExtendedTotal)
			lv.Options[i] = opt
		}
		if sel, ok := selections[l.ID]; ok {
			sel := sel
			lv.Selection = &sel
		}
		v.Lines = append(v.Lines, lv)
	}
	if v.Errors == nil {
		v.Errors = []comparison.ValidationError{}
	}
	if v.Warnings == nil {
		v.Warnings = []comparison.Warning{}
	}
	return v
}

// GetComparison 获取比价结果（分组、合计、校验、告警）
func (s *ComparisonService) GetComparison(ctx context.Context, id string) (*ComparisonView, error) {
	req, session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(req, session), nil
}

// Validate 当前选择的提交校验结果
func (s *ComparisonService) Validate(ctx context.Context, id string) ([]comparison.ValidationError, error) {
	_, session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	errs := session.Validate()
	if errs == nil {
		errs = []comparison.ValidationError{}
	}
	return errs, nil
}

// mutation 一次比价修改
type mutation struct {
	action           string
	content          string
	expectedRevision *int
	apply            func(*comparison.Session) error
}

// mutate 加载 → 校验状态/版本/租约 → 修改 → 保存 → 记录日志 → 通知
func (s *ComparisonService) mutate(ctx context.Context, id string, actor Actor, m mutation) (*ComparisonView, error) {
	req, session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !comparison.IsEditable(req.Status) {
		return nil, fmt.Errorf("%w: status %s", ErrNotComparing, req.Status)
	}
	if m.expectedRevision != nil && *m.expectedRevision != req.Revision {
		return nil, fmt.Errorf("%w: expected revision %d, current %d", ErrRevisionConflict, *m.expectedRevision, req.Revision)
	}
	// 修改被拒绝时不占用租约
	if err := m.apply(session); err != nil {
		return nil, err
	}
	if err := s.acquireLease(ctx, req.ID, actor.UserID); err != nil {
		return nil, err
	}

	rev, err := s.reqRepo.SaveComparisonState(ctx, req.ID, req.Revision, session.Selections(), session.FleetCosts(), actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			return nil, fmt.Errorf("%w: requisition %s", ErrRevisionConflict, req.Code)
		}
		return nil, fmt.Errorf("保存比价失败: %w", err)
	}
	req.Revision = rev

	s.logActivity(ctx, req, m.action, "", "", m.content, actor.UserID)
	s.publish(req, m.action, actor.UserID)
	s.logger.Info("comparison updated",
		zap.String("requisition_id", req.ID),
		zap.String("action", m.action),
		zap.Int("revision", rev),
		zap.String("operator", actor.UserID))

	return s.view(req, session), nil
}

func (s *ComparisonService) acquireLease(ctx context.Context, requisitionID, userID string) error {
	if s.leases == nil || s.cfg.LeaseTTL <= 0 {
		return nil
	}
	ok, err := s.leases.Acquire(ctx, requisitionID, userID, s.cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("获取编辑租约失败: %w", err)
	}
	if !ok {
		return ErrLeaseHeld
	}
	return nil
}

func (s *ComparisonService) releaseLease(ctx context.Context, requisitionID, userID string) {
	if s.leases == nil {
		return
	}
	if err := s.leases.Release(ctx, requisitionID, userID); err != nil {
		s.logger.Warn("release lease", zap.String("requisition_id", requisitionID), zap.Error(err))
	}
}

// ApplySelection 为一行选择供应商（空 vendorID 为清除），非最低价需议价权限
func (s *ComparisonService) ApplySelection(ctx context.Context, id string, actor Actor, lineID, vendorID, reason string, expectedRevision *int) (*ComparisonView, error) {
	action := entity.ActionSelectVendor
	content := fmt.Sprintf("行 %s 选择供应商 %s", lineID, vendorID)
	if vendorID == "" {
		content = fmt.Sprintf("行 %s 清除供应商选择", lineID)
	}

	return s.mutate(ctx, id, actor, mutation{
		action:           action,
		content:          content,
		expectedRevision: expectedRevision,
		apply: func(session *comparison.Session) error {
			if err := session.ApplySelection(actor.Caps, lineID, vendorID, reason); err != nil {
				return err
			}
			for _, l := range session.Lines() {
				if l.ID != lineID {
					continue
				}
				if opt, ok := l.Option(vendorID); ok && !opt.IsLowest {
					s.logger.Info("lowest price overridden",
						zap.String("requisition_id", id),
						zap.String("line_id", lineID),
						zap.String("vendor_id", vendorID),
						zap.String("operator", actor.UserID))
				}
			}
			return nil
		},
	})
}

// SetOverrideReason 记录行的议价理由
func (s *ComparisonService) SetOverrideReason(ctx context.Context, id string, actor Actor, lineID, reason string, expectedRevision *int) (*ComparisonView, error) {
	return s.mutate(ctx, id, actor, mutation{
		action:           entity.ActionOverride,
		content:          fmt.Sprintf("行 %s 议价理由: %s", lineID, reason),
		expectedRevision: expectedRevision,
		apply: func(session *comparison.Session) error {
			if !actor.Caps.CanSelectVendor {
				return fmt.Errorf("%w: select vendor", comparison.ErrPermissionDenied)
			}
			return session.SetOverrideReason(lineID, reason)
		},
	})
}

// AutoSelectLowest 所有有报价的行选择最低价供应商
func (s *ComparisonService) AutoSelectLowest(ctx context.Context, id string, actor Actor, expectedRevision *int) (*ComparisonView, error) {
	return s.mutate(ctx, id, actor, mutation{
		action:           entity.ActionAutoSelect,
		content:          "全部行选择最低价",
		expectedRevision: expectedRevision,
		apply: func(session *comparison.Session) error {
			if !actor.Caps.CanSelectVendor {
				return fmt.Errorf("%w: select vendor", comparison.ErrPermissionDenied)
			}
			session.AutoSelectLowestAll()
			return nil
		},
	})
}

// ClearSelections 清除全部选择与议价理由
func (s *ComparisonService) ClearSelections(ctx context.Context, id string, actor Actor, expectedRevision *int) (*ComparisonView, error) {
	return s.mutate(ctx, id, actor, mutation{
		action:           entity.ActionClear,
		content:          "清除全部选择",
		expectedRevision: expectedRevision,
		apply: func(session *comparison.Session) error {
			if !actor.Caps.CanSelectVendor {
				return fmt.Errorf("%w: select vendor", comparison.ErrPermissionDenied)
			}
			session.ClearAllSelections()
			return nil
		},
	})
}

// SetFleetCost 设置供应商运费
func (s *ComparisonService) SetFleetCost(ctx context.Context, id string, actor Actor, vendorID string, cost, gst float64, expectedRevision *int) (*ComparisonView, error) {
	return s.mutate(ctx, id, actor, mutation{
		action:           entity.ActionFleetCost,
		content:          fmt.Sprintf("供应商 %s 运费 %.2f + GST %.2f", vendorID, cost, gst),
		expectedRevision: expectedRevision,
		apply: func(session *comparison.Session) error {
			return session.SetFleetCost(vendorID, cost, gst)
		},
	})
}

// ClearFleetCost 清除供应商运费
func (s *ComparisonService) ClearFleetCost(ctx context.Context, id string, actor Actor, vendorID string, expectedRevision *int) (*ComparisonView, error) {
	return s.mutate(ctx, id, actor, mutation{
		action:           entity.ActionFleetCost,
		content:          fmt.Sprintf("供应商 %s 清除运费", vendorID),
		expectedRevision: expectedRevision,
		apply: func(session *comparison.Session) error {
			return session.ClearFleetCost(vendorID)
		},
	})
}

// === 状态流转 ===

// StartComparison draft → compare
func (s *ComparisonService) StartComparison(ctx context.Context, id string, actor Actor) (*ComparisonView, error) {
	return s.transition(ctx, id, actor, comparison.StatusCompare, nil, "开始比价")
}

// SubmitForApproval compare → approval；校验失败时返回 *comparison.ValidationFailedError，状态不变
func (s *ComparisonService) SubmitForApproval(ctx context.Context, id string, actor Actor) (*ComparisonView, error) {
	now := time.Now()
	view, err := s.transition(ctx, id, actor, comparison.StatusApproval, map[string]interface{}{
		"submitted_by": actor.UserID,
		"submitted_at": now,
	}, "提交审批")
	if err != nil {
		return nil, err
	}
	s.releaseLease(ctx, id, actor.UserID)
	return view, nil
}

// Approve approval → approved
func (s *ComparisonService) Approve(ctx context.Context, id string, actor Actor) (*ComparisonView, error) {
	now := time.Now()
	return s.transition(ctx, id, actor, comparison.StatusApproved, map[string]interface{}{
		"approved_by": actor.UserID,
		"approved_at": now,
	}, "审批通过")
}

// Reject approval → rejected
func (s *ComparisonService) Reject(ctx context.Context, id string, actor Actor, reason string) (*ComparisonView, error) {
	return s.transition(ctx, id, actor, comparison.StatusRejected, map[string]interface{}{
		"reject_reason": reason,
	}, "审批驳回: "+reason)
}

// Rework rejected → compare
func (s *ComparisonService) Rework(ctx context.Context, id string, actor Actor) (*ComparisonView, error) {
	return s.transition(ctx, id, actor, comparison.StatusCompare, nil, "重新比价")
}

// Delete {draft, compare, rejected} → deleted
func (s *ComparisonService) Delete(ctx context.Context, id string, actor Actor) error {
	if _, err := s.transition(ctx, id, actor, comparison.StatusDeleted, nil, "删除请购单"); err != nil {
		return err
	}
	s.releaseLease(ctx, id, actor.UserID)
	return nil
}

func (s *ComparisonService) transition(ctx context.Context, id string, actor Actor, to string, extra map[string]interface{}, content string) (*ComparisonView, error) {
	req, session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := req.Status

	if err := comparison.Transition(from, to, actor.Caps, session.Validate); err != nil {
		if errors.Is(err, comparison.ErrValidationFailed) {
			s.logger.Info("submission blocked",
				zap.String("requisition_id", req.ID),
				zap.Int("errors", len(session.Validate())))
		}
		return nil, err
	}
	if to == comparison.StatusApproved {
		if err := ensureCurrent(session); err != nil {
			return nil, err
		}
	}
	if comparison.IsEditable(from) {
		if err := s.acquireLease(ctx, req.ID, actor.UserID); err != nil {
			return nil, err
		}
	}

	if err := s.reqRepo.UpdateStatus(ctx, req.ID, from, to, extra); err != nil {
		if errors.Is(err, repository.ErrRevisionConflict) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrRevisionConflict)
		}
		return nil, fmt.Errorf("更新请购单状态失败: %w", err)
	}
	req.Status = to
	req.Revision++

	s.logActivity(ctx, req, entity.ActionStatusChange, from, to, content, actor.UserID)
	s.publish(req, entity.ActionStatusChange, actor.UserID)
	s.logger.Info("requisition status changed",
		zap.String("requisition_id", req.ID),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("operator", actor.UserID))

	return s.view(req, session), nil
}

// === 采购订单 ===

// GeneratePurchaseOrders 审批通过后按供应商分组生成开放采购订单
func (s *ComparisonService) GeneratePurchaseOrders(ctx context.Context, id string, actor Actor) ([]entity.PurchaseOrder, error) {
	req, session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status != comparison.StatusApproved {
		return nil, fmt.Errorf("%w: status %s", ErrNotApproved, req.Status)
	}
	if err := ensureCurrent(session); err != nil {
		return nil, err
	}

	drafts := comparison.BuildPurchaseOrders(session.ComparisonResult())
	pos, err := s.poRepo.CreateFromDrafts(ctx, req.ID, drafts, s.cfg.POCodePrefix, s.cfg.Currency, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("生成采购订单失败: %w", err)
	}

	for _, po := range pos {
		s.logActivity(ctx, req, entity.ActionGeneratePO, "", po.Status,
			fmt.Sprintf("生成采购订单 %s（%s，%.2f）", po.POCode, po.VendorName, po.TotalAmount), actor.UserID)
	}
	s.logger.Info("purchase orders generated",
		zap.String("requisition_id", req.ID),
		zap.Int("count", len(pos)),
		zap.String("operator", actor.UserID))
	return pos, nil
}

// ensureCurrent 提交后目录报价变化（停用、降价、新增更低报价）使原选择失效时拒绝继续
func ensureCurrent(session *comparison.Session) error {
	if warnings := session.Warnings(); len(warnings) > 0 {
		return fmt.Errorf("%w: %s", ErrStaleComparison, warnings[0].Message)
	}
	if errs := session.Validate(); len(errs) > 0 {
		return fmt.Errorf("%w: line %s %s", ErrStaleComparison, errs[0].LineID, errs[0].Code)
	}
	return nil
}

// ListPurchaseOrders 请购单已生成的采购订单
func (s *ComparisonService) ListPurchaseOrders(ctx context.Context, id string) ([]entity.PurchaseOrder, error) {
	return s.poRepo.FindByRequisition(ctx, id)
}

// GetPurchaseOrder 采购订单详情
func (s *ComparisonService) GetPurchaseOrder(ctx context.Context, poID string) (*entity.PurchaseOrder, error) {
	return s.poRepo.FindByID(ctx, poID)
}

// ReceiveItem 收货，订单状态 open → partial → closed
func (s *ComparisonService) ReceiveItem(ctx context.Context, poID, itemID string, quantity float64, operatorID string) (*entity.PurchaseOrder, error) {
	if !(quantity > 0) {
		return nil, ErrInvalidQuantity
	}
	before, err := s.poRepo.FindByID(ctx, poID)
	if err != nil {
		return nil, err
	}
	if err := s.poRepo.ReceiveItem(ctx, poID, itemID, quantity); err != nil {
		return nil, err
	}
	po, err := s.poRepo.FindByID(ctx, poID)
	if err != nil {
		return nil, err
	}

	if err := s.activityLogRepo.LogActivity(ctx, "po", po.ID, po.POCode, entity.ActionReceive, before.Status, po.Status,
		fmt.Sprintf("行项 %s 收货 %g", itemID, quantity), operatorID); err != nil {
		s.logger.Warn("write activity log", zap.String("po_id", po.ID), zap.Error(err))
	}
	return po, nil
}

// Activities 请购单操作日志
func (s *ComparisonService) Activities(ctx context.Context, id string, page, pageSize int) ([]entity.ActivityLog, int64, error) {
	return s.activityLogRepo.FindByEntity(ctx, "requisition", id, page, pageSize)
}

func (s *ComparisonService) logActivity(ctx context.Context, req *entity.Requisition, action, from, to, content, operatorID string) {
	if err := s.activityLogRepo.LogActivity(ctx, "requisition", req.ID, req.Code, action, from, to, content, operatorID); err != nil {
		s.logger.Warn("write activity log", zap.String("requisition_id", req.ID), zap.Error(err))
	}
}

func (s *ComparisonService) publish(req *entity.Requisition, action, operatorID string) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishRequisitionUpdate(sse.RequisitionUpdate{
		RequisitionID: req.ID,
		Action:        action,
		Status:        req.Status,
		Revision:      req.Revision,
		OperatorID:    operatorID,
	})
}
