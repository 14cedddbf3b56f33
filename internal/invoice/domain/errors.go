package domain

import "errors"

var (
	ErrEmptyLineItems     = errors.New("empty_line_items")
	ErrBlankDescription   = errors.New("blank_description")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidUnitPrice   = errors.New("invalid_unit_price")
	ErrInvalidVATRate     = errors.New("invalid_vat_rate")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidDueDate     = errors.New("invalid_due_date")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrNotFound           = errors.New("invoice_not_found")
	ErrEditConflict       = errors.New("edit_conflict")
	ErrInvalidTransition  = errors.New("invalid_transition")
	ErrInvariantViolation = errors.New("invariant_violation")
)
