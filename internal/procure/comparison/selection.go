package comparison

import (
	"fmt"
	"math"
	"strings"
)

// Selection 行选择状态
type Selection struct {
	VendorID       string `json:"vendor_id"`
	OverrideReason string `json:"override_reason"`
}

// Selections is keyed by line ID.
type Selections map[string]Selection

// Clone returns an independent copy.
func (s Selections) Clone() Selections {
	out := make(Selections, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// FleetCost 运费及其税额
type FleetCost struct {
	Cost float64 `json:"cost"`
	GST  float64 `json:"gst"`
}

// FleetCosts is keyed by vendor ID.
type FleetCosts map[string]FleetCost

func (f FleetCosts) Clone() FleetCosts {
	out := make(FleetCosts, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Capabilities is the permission set injected by the caller.
type Capabilities struct {
	CanSelectVendor  bool `json:"can_select_vendor"`
	CanOverridePrice bool `json:"can_override_price"`
	CanApprove       bool `json:"can_approve"`
}

// AllCapabilities grants every capability.
func AllCapabilities() Capabilities {
	return Capabilities{CanSelectVendor: true, CanOverridePrice: true, CanApprove: true}
}

// Session holds the mutable selection and fleet state of one comparison pass
// over an immutable set of resolved lines.
type Session struct {
	lines      []ResolvedLine
	index      map[string]int
	vendors    map[string]bool
	selections Selections
	fleet      FleetCosts
	warnings   []Warning
}

// NewSession builds a session from resolved lines and previously saved state.
// Saved selections that no longer point at an active option of their line are
// dropped and reported through Warnings.
func NewSession(lines []ResolvedLine, saved Selections, fleet FleetCosts) *Session {
	s := &Session{
		lines:      lines,
		index:      make(map[string]int, len(lines)),
		vendors:    make(map[string]bool),
		selections: make(Selections, len(saved)),
		fleet:      make(FleetCosts, len(fleet)),
	}
	for i := range lines {
		s.index[lines[i].ID] = i
		for _, opt := range lines[i].Options {
			s.vendors[opt.VendorID] = true
		}
	}

	for i := range lines {
		sel, ok := saved[lines[i].ID]
		if !ok {
			continue
		}
		if sel.VendorID == "" {
			if sel.OverrideReason != "" {
				s.selections[lines[i].ID] = sel
			}
			continue
		}
		if _, found := lines[i].Option(sel.VendorID); !found {
			s.warnings = append(s.warnings, Warning{
				LineID:   lines[i].ID,
				Code:     CodeStaleSelectionReference,
				VendorID: sel.VendorID,
				Message:  fmt.Sprintf("vendor %s is no longer an active option; pick again", sel.VendorID),
			})
			continue
		}
		s.selections[lines[i].ID] = sel
	}

	for vendorID, fc := range fleet {
		if !s.vendors[vendorID] || validateFleet(fc.Cost, fc.GST) != nil {
			continue
		}
		s.fleet[vendorID] = fc
	}
	return s
}

// Lines returns the resolved lines in requisition order.
func (s *Session) Lines() []ResolvedLine {
	return s.lines
}

// Selections returns a copy of the current selections.
func (s *Session) Selections() Selections {
	return s.selections.Clone()
}

// FleetCosts returns a copy of the current fleet costs.
func (s *Session) FleetCosts() FleetCosts {
	return s.fleet.Clone()
}

// Warnings lists stale references dropped when the session was built.
func (s *Session) Warnings() []Warning {
	return append([]Warning(nil), s.warnings...)
}

func (s *Session) line(lineID string) (*ResolvedLine, error) {
	i, ok := s.index[lineID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLine, lineID)
	}
	return &s.lines[i], nil
}

// SelectVendor picks vendorID for the line and clears any override reason.
func (s *Session) SelectVendor(lineID, vendorID string) error {
	line, err := s.line(lineID)
	if err != nil {
		return err
	}
	if _, ok := line.Option(vendorID); !ok {
		return fmt.Errorf("%w: %s on line %s", ErrUnknownVendor, vendorID, lineID)
	}
	s.selections[lineID] = Selection{VendorID: vendorID}
	return nil
}

// SetOverrideReason records the justification for the line's choice.
func (s *Session) SetOverrideReason(lineID, text string) error {
	if _, err := s.line(lineID); err != nil {
		return err
	}
	sel := s.selections[lineID]
	sel.OverrideReason = text
	s.selections[lineID] = sel
	return nil
}

// ApplySelection sets or clears the line's vendor and reason in one step.
// An empty vendorID clears the line. Choosing a vendor other than the lowest
// requires CanOverridePrice.
func (s *Session) ApplySelection(caps Capabilities, lineID, vendorID, reason string) error {
	if !caps.CanSelectVendor {
		return fmt.Errorf("%w: select vendor", ErrPermissionDenied)
	}
	line, err := s.line(lineID)
	if err != nil {
		return err
	}
	if vendorID == "" {
		delete(s.selections, lineID)
		return nil
	}
	opt, ok := line.Option(vendorID)
	if !ok {
		return fmt.Errorf("%w: %s on line %s", ErrUnknownVendor, vendorID, lineID)
	}
	if !opt.IsLowest && !caps.CanOverridePrice {
		return fmt.Errorf("%w: override lowest price", ErrPermissionDenied)
	}
	s.selections[lineID] = Selection{VendorID: vendorID, OverrideReason: reason}
	return nil
}

// AutoSelectLowestAll picks the lowest option on every priced line.
func (s *Session) AutoSelectLowestAll() {
	for i := range s.lines {
		lowest := s.lines[i].Lowest()
		if lowest == nil {
			continue
		}
		s.selections[s.lines[i].ID] = Selection{VendorID: lowest.VendorID}
	}
}

// ClearAllSelections resets every line's vendor and reason.
func (s *Session) ClearAllSelections() {
	s.selections = make(Selections)
}

// SetFleetCost sets the freight charge for a vendor. The previous value is
// kept when the input is rejected.
func (s *Session) SetFleetCost(vendorID string, cost, gst float64) error {
	if err := validateFleet(cost, gst); err != nil {
		return err
	}
	if !s.vendors[vendorID] {
		return fmt.Errorf("%w: %s", ErrUnknownVendor, vendorID)
	}
	if cost == 0 && gst == 0 {
		delete(s.fleet, vendorID)
		return nil
	}
	s.fleet[vendorID] = FleetCost{Cost: cost, GST: gst}
	return nil
}

// ClearFleetCost is SetFleetCost(vendorID, 0, 0).
func (s *Session) ClearFleetCost(vendorID string) error {
	return s.SetFleetCost(vendorID, 0, 0)
}

// Validate reports what blocks submission of the current selections.
func (s *Session) Validate() []ValidationError {
	return Validate(s.lines, s.selections)
}

// IsSubmittable reports whether Validate finds nothing.
func (s *Session) IsSubmittable() bool {
	return len(s.Validate()) == 0
}

// ComparisonResult recomputes groups and totals from the current state.
func (s *Session) ComparisonResult() Result {
	return Aggregate(Consolidate(s.lines, s.selections), s.fleet)
}

func validateFleet(cost, gst float64) error {
	for _, v := range []float64{cost, gst} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: cost=%v gst=%v", ErrInvalidFleetCost, cost, gst)
		}
	}
	return nil
}

// Validate checks every priced line: it must have a selection, and a selection
// other than the lowest must carry a non-blank reason. Lines without active
// vendors are skipped.
func Validate(lines []ResolvedLine, selections Selections) []ValidationError {
	var errs []ValidationError
	for i := range lines {
		line := &lines[i]
		if !line.HasActiveVendors {
			continue
		}
		sel := selections[line.ID]
		opt, ok := line.Option(sel.VendorID)
		if sel.VendorID == "" || !ok {
			errs = append(errs, ValidationError{
				LineID:  line.ID,
				Code:    CodeMissingSelection,
				Message: "no vendor selected",
			})
			continue
		}
		if !opt.IsLowest && strings.TrimSpace(sel.OverrideReason) == "" {
			errs = append(errs, ValidationError{
				LineID:   line.ID,
				Code:     CodeMissingOverrideReason,
				VendorID: sel.VendorID,
				Message:  "selected vendor is not the lowest price; an override reason is required",
			})
		}
	}
	return errs
}

// validSelection returns the chosen option when the line's selection would pass Validate.
func validSelection(line *ResolvedLine, sel Selection) (*VendorOption, bool) {
	if !line.HasActiveVendors || sel.VendorID == "" {
		return nil, false
	}
	opt, ok := line.Option(sel.VendorID)
	if !ok {
		return nil, false
	}
	if !opt.IsLowest && strings.TrimSpace(sel.OverrideReason) == "" {
		return nil, false
	}
	return opt, true
}
