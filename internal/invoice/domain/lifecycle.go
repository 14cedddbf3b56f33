package domain

import "github.com/shopspring/decimal"

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	StatusDraft         InvoiceStatus = "draft"
	StatusPending       InvoiceStatus = "pending"
	StatusSent          InvoiceStatus = "sent"
	StatusPartiallyPaid InvoiceStatus = "partially_paid"
	StatusPaid          InvoiceStatus = "paid"
	StatusOverdue       InvoiceStatus = "overdue"
	StatusCancelled     InvoiceStatus = "cancelled"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusSent, StatusPartiallyPaid,
		StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further edits or transitions are permitted.
func (s InvoiceStatus) IsTerminal() bool {
	return s == StatusPaid || s == StatusCancelled
}

// Editable reports whether line items, vat_rate, dates, notes and terms
// may still be mutated. Must be re-checked at commit time, not only at
// request entry.
func (s InvoiceStatus) Editable() bool {
	return !s.IsTerminal()
}

// Payable reports whether a payment may be initialized or applied. Draft
// invoices must be activated first; terminal invoices never accept money.
func (s InvoiceStatus) Payable() bool {
	switch s {
	case StatusPending, StatusSent, StatusPartiallyPaid, StatusOverdue:
		return true
	}
	return false
}

var transitions = map[InvoiceStatus][]InvoiceStatus{
	StatusDraft:         {StatusPending, StatusCancelled},
	StatusPending:       {StatusSent, StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
	StatusSent:          {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
	StatusPartiallyPaid: {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
	StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusCancelled},
	StatusPaid:          {},
	StatusCancelled:     {},
}

// CanTransition reports whether the lifecycle permits moving from one
// status to another.
func CanTransition(from, to InvoiceStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StatusForBalance returns the status a payable invoice lands in after a
// payment is applied: paid when the balance clears, partially_paid otherwise.
func StatusForBalance(balanceDue decimal.Decimal) InvoiceStatus {
	if balanceDue.IsZero() {
		return StatusPaid
	}
	return StatusPartiallyPaid
}
