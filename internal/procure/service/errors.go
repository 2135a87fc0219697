package service

import (
	"errors"

	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
)

var (
	// ErrNotComparing 请购单当前状态不允许修改比价
	ErrNotComparing = errors.New("requisition is not open for vendor comparison")

	// ErrRevisionConflict 比价状态已被他人修改，需刷新后重试
	ErrRevisionConflict = repository.ErrRevisionConflict

	// ErrLeaseHeld 比价正被其他用户编辑
	ErrLeaseHeld = errors.New("requisition is being edited by another user")

	// ErrNotApproved 只有审批通过的请购单才能生成采购订单
	ErrNotApproved = errors.New("requisition is not approved")

	// ErrStaleComparison 审批后报价已停用，选择失效
	ErrStaleComparison = errors.New("approved selections no longer match active vendor prices")

	// ErrInvalidQuantity 数量必须为正数
	ErrInvalidQuantity = errors.New("quantity must be positive")

	// ErrArchiveDisabled 未配置对象存储
	ErrArchiveDisabled = errors.New("export archive storage is not configured")

	// ErrEmptyRequisition 请购单至少需要一行
	ErrEmptyRequisition = errors.New("requisition needs at least one line")
)
