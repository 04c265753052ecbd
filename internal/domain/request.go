package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle stage of a print request.
type Status string

const (
	// StatusPending indicates the shopkeeper has not answered yet.
	StatusPending Status = "Pending"
	// StatusResponded indicates the shopkeeper accepted or declined the request.
	StatusResponded Status = "Responded"
	// StatusPrinted indicates accepted work has been printed.
	StatusPrinted Status = "Printed"
)

// Action records the shopkeeper's answer. It leaves Pending only together with Status.
type Action string

const (
	ActionPending  Action = "Pending"
	ActionAccepted Action = "Accepted"
	ActionDeclined Action = "Declined"
)

// Decision is the shopkeeper's answer to a pending request.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// ParseDecision maps a route segment onto a Decision.
func ParseDecision(s string) (Decision, error) {
	switch Decision(strings.ToLower(strings.TrimSpace(s))) {
	case DecisionAccept:
		return DecisionAccept, nil
	case DecisionDecline:
		return DecisionDecline, nil
	}
	return "", fmt.Errorf("%w: decision must be 'accept' or 'decline'", ErrValidation)
}

// Print types and sides understood by shops.
const (
	PrintTypeColor      = "color"
	PrintTypeBlackWhite = "black&white"

	PrintSideSingle = "single"
	PrintSideDouble = "double"
)

// Upper bounds on a single request. Both fit the INTEGER columns of every backend.
const (
	MaxTotalPages = 100_000
	MaxCopies     = 10_000
)

// Spec holds what the user wants printed.
type Spec struct {
	TotalPages int    `json:"total_pages"`
	PrintType  string `json:"print_type"`
	PrintSide  string `json:"print_side"`
	PageSize   string `json:"page_size"`
	Copies     int    `json:"copies"`
	Comments   string `json:"comments,omitempty"`
}

// Normalize lowercases enumerated fields and folds the "bw" shorthand.
func (s Spec) Normalize() Spec {
	s.PrintType = strings.ToLower(strings.TrimSpace(s.PrintType))
	if s.PrintType == "bw" || s.PrintType == "black-white" || s.PrintType == "black_white" {
		s.PrintType = PrintTypeBlackWhite
	}
	s.PrintSide = strings.ToLower(strings.TrimSpace(s.PrintSide))
	s.PageSize = strings.TrimSpace(s.PageSize)
	s.Comments = strings.TrimSpace(s.Comments)
	return s
}

// Validate reports the first missing or malformed field.
func (s Spec) Validate() error {
	if s.TotalPages <= 0 {
		return fmt.Errorf("%w: total_pages must be a positive integer", ErrValidation)
	}
	if s.TotalPages > MaxTotalPages {
		return fmt.Errorf("%w: total_pages must not exceed %d", ErrValidation, MaxTotalPages)
	}
	if s.Copies <= 0 {
		return fmt.Errorf("%w: copies must be a positive integer", ErrValidation)
	}
	if s.Copies > MaxCopies {
		return fmt.Errorf("%w: copies must not exceed %d", ErrValidation, MaxCopies)
	}
	switch s.PrintType {
	case PrintTypeColor, PrintTypeBlackWhite:
	default:
		return fmt.Errorf("%w: print_type must be 'color' or 'black&white'", ErrValidation)
	}
	switch s.PrintSide {
	case PrintSideSingle, PrintSideDouble:
	default:
		return fmt.Errorf("%w: print_side must be 'single' or 'double'", ErrValidation)
	}
	if s.PageSize == "" {
		return fmt.Errorf("%w: page_size is required", ErrValidation)
	}
	return nil
}

// SpecPatch carries the fields of an UpdateSpec call. Nil fields are left untouched.
// NoOfCopies is the submit form's name for Copies; Copies wins when both are set.
type SpecPatch struct {
	TotalPages *int    `json:"total_pages,omitempty"`
	PrintType  *string `json:"print_type,omitempty"`
	PrintSide  *string `json:"print_side,omitempty"`
	PageSize   *string `json:"page_size,omitempty"`
	Copies     *int    `json:"copies,omitempty"`
	NoOfCopies *int    `json:"no_of_copies,omitempty"`
	Comments   *string `json:"comments,omitempty"`
}

// Empty reports whether the patch names no field at all.
func (p SpecPatch) Empty() bool {
	return p == SpecPatch{}
}

// Apply returns s with the patch's provided fields replaced.
func (p SpecPatch) Apply(s Spec) Spec {
	if p.TotalPages != nil {
		s.TotalPages = *p.TotalPages
	}
	if p.PrintType != nil {
		s.PrintType = *p.PrintType
	}
	if p.PrintSide != nil {
		s.PrintSide = *p.PrintSide
	}
	if p.PageSize != nil {
		s.PageSize = *p.PageSize
	}
	if p.Copies != nil {
		s.Copies = *p.Copies
	} else if p.NoOfCopies != nil {
		s.Copies = *p.NoOfCopies
	}
	if p.Comments != nil {
		s.Comments = *p.Comments
	}
	return s
}

// PrintRequest is a user's document submitted to a shop, together with its lifecycle state.
type PrintRequest struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	ShopID    int64     `json:"shop_id"`
	Spec      Spec      `json:"spec"`
	Artifact  string    `json:"artifact"`
	Status    Status    `json:"status"`
	Action    Action    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Touch advances UpdatedAt to now, never moving it backwards.
func (r *PrintRequest) Touch(now time.Time) {
	if now.Before(r.UpdatedAt) {
		return
	}
	r.UpdatedAt = now
}
