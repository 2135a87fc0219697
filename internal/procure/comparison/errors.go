package comparison

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownLine       = errors.New("requisition line not found")
	ErrUnknownVendor     = errors.New("vendor is not an active option")
	ErrInvalidFleetCost  = errors.New("fleet cost and gst must be non-negative")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrValidationFailed  = errors.New("comparison is not submittable")
)

// ValidationCode 校验错误类型
type ValidationCode string

const (
	CodeMissingSelection      ValidationCode = "missing_selection"
	CodeMissingOverrideReason ValidationCode = "missing_override_reason"
)

// ValidationError describes one line that blocks submission.
type ValidationError struct {
	LineID   string         `json:"line_id"`
	Code     ValidationCode `json:"code"`
	VendorID string         `json:"vendor_id,omitempty"`
	Message  string         `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("line %s: %s", e.LineID, e.Message)
}

// ValidationFailedError carries every validation error found at submission time.
type ValidationFailedError struct {
	Errors []ValidationError
}

func (e *ValidationFailedError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ve := range e.Errors {
		msgs = append(msgs, ve.Error())
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed.Error(), strings.Join(msgs, "; "))
}

func (e *ValidationFailedError) Is(target error) bool {
	return target == ErrValidationFailed
}

// WarningCode 提示类型
type WarningCode string

const CodeStaleSelectionReference WarningCode = "stale_selection_reference"

// Warning is informational and never blocks progression.
type Warning struct {
	LineID   string      `json:"line_id"`
	Code     WarningCode `json:"code"`
	VendorID string      `json:"vendor_id,omitempty"`
	Message  string      `json:"message"`
}
