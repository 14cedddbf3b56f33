package domain_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to invoicedomain.InvoiceStatus }{
		{invoicedomain.StatusDraft, invoicedomain.StatusPending},
		{invoicedomain.StatusDraft, invoicedomain.StatusCancelled},
		{invoicedomain.StatusPending, invoicedomain.StatusSent},
		{invoicedomain.StatusPending, invoicedomain.StatusPartiallyPaid},
		{invoicedomain.StatusPending, invoicedomain.StatusPaid},
		{invoicedomain.StatusPending, invoicedomain.StatusOverdue},
		{invoicedomain.StatusSent, invoicedomain.StatusPaid},
		{invoicedomain.StatusSent, invoicedomain.StatusOverdue},
		{invoicedomain.StatusPartiallyPaid, invoicedomain.StatusPaid},
		{invoicedomain.StatusPartiallyPaid, invoicedomain.StatusOverdue},
		{invoicedomain.StatusOverdue, invoicedomain.StatusPaid},
		{invoicedomain.StatusOverdue, invoicedomain.StatusPartiallyPaid},
		{invoicedomain.StatusPartiallyPaid, invoicedomain.StatusCancelled},
		{invoicedomain.StatusOverdue, invoicedomain.StatusCancelled},
	}
	for _, tc := range allowed {
		if !invoicedomain.CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct{ from, to invoicedomain.InvoiceStatus }{
		{invoicedomain.StatusDraft, invoicedomain.StatusPaid},
		{invoicedomain.StatusDraft, invoicedomain.StatusSent},
		{invoicedomain.StatusPaid, invoicedomain.StatusCancelled},
		{invoicedomain.StatusPaid, invoicedomain.StatusPending},
		{invoicedomain.StatusCancelled, invoicedomain.StatusPending},
		{invoicedomain.StatusCancelled, invoicedomain.StatusPaid},
	}
	for _, tc := range denied {
		if invoicedomain.CanTransition(tc.from, tc.to) {
			t.Fatalf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestTerminalStatesRejectEdits(t *testing.T) {
	for _, status := range []invoicedomain.InvoiceStatus{invoicedomain.StatusPaid, invoicedomain.StatusCancelled} {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
		if status.Editable() {
			t.Fatalf("expected %s to reject edits", status)
		}
		if status.Payable() {
			t.Fatalf("expected %s to reject payments", status)
		}
	}
	for _, status := range []invoicedomain.InvoiceStatus{
		invoicedomain.StatusDraft, invoicedomain.StatusPending, invoicedomain.StatusSent,
		invoicedomain.StatusPartiallyPaid, invoicedomain.StatusOverdue,
	} {
		if status.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
		if !status.Editable() {
			t.Fatalf("expected %s to be editable", status)
		}
	}
}

func TestStatusForBalance(t *testing.T) {
	if got := invoicedomain.StatusForBalance(decimal.Zero); got != invoicedomain.StatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}
	if got := invoicedomain.StatusForBalance(decimal.RequireFromString("650.00")); got != invoicedomain.StatusPartiallyPaid {
		t.Fatalf("expected partially_paid, got %s", got)
	}
}

func TestEffectiveStatusDerivesOverdue(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	inv := invoicedomain.Invoice{
		Status:     invoicedomain.StatusPending,
		DueDate:    now.AddDate(0, 0, -3),
		BalanceDue: decimal.RequireFromString("100.00"),
	}
	if got := inv.EffectiveStatus(now); got != invoicedomain.StatusOverdue {
		t.Fatalf("expected derived overdue, got %s", got)
	}

	// A cleared balance never shows overdue.
	inv.BalanceDue = decimal.Zero
	inv.Status = invoicedomain.StatusPaid
	if got := inv.EffectiveStatus(now); got != invoicedomain.StatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}

	// Not yet due.
	inv.Status = invoicedomain.StatusSent
	inv.DueDate = now.AddDate(0, 0, 3)
	inv.BalanceDue = decimal.RequireFromString("100.00")
	if got := inv.EffectiveStatus(now); got != invoicedomain.StatusSent {
		t.Fatalf("expected sent, got %s", got)
	}
}
