package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/docbill/internal/clock"
	"github.com/smallbiznis/docbill/internal/companyctx"
	"github.com/smallbiznis/docbill/internal/config"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/docbill/internal/invoice/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*Service, *gorm.DB, snowflake.ID) {
	svc, db, companyID, _ := setupServiceAt(t, time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	return svc, db, companyID
}

func setupServiceAt(t *testing.T, now time.Time) (*Service, *gorm.DB, snowflake.ID, *clock.FakeClock) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(now)
	svc := NewService(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  invoicerepo.Provide(),
		Cfg:   config.Config{DefaultCurrency: "USD"},
	}).(*Service)

	companyID := node.Generate()
	return svc, db, companyID, fake
}

func createRequest() invoicedomain.CreateInvoiceRequest {
	now := time.Now().UTC()
	return invoicedomain.CreateInvoiceRequest{
		IssueDate: now,
		DueDate:   now.Add(14 * 24 * time.Hour),
		VATRate:   decimal.RequireFromString("15"),
		LineItems: []invoicedomain.LineItemRequest{
			{Description: "Document conversion plan", Quantity: decimal.NewFromInt(10), UnitPrice: decimal.RequireFromString("100.00")},
		},
	}
}

func TestCreateComputesTotals(t *testing.T) {
	svc, _, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	assert.Equal(t, invoicedomain.StatusDraft, invoice.Status)
	assert.True(t, strings.HasPrefix(invoice.InvoiceNumber, "INV-"))
	assert.Equal(t, "1000.00", invoice.Subtotal.StringFixed(2))
	assert.Equal(t, "150.00", invoice.VATAmount.StringFixed(2))
	assert.Equal(t, "1150.00", invoice.TotalAmount.StringFixed(2))
	assert.Equal(t, "0.00", invoice.AmountPaid.StringFixed(2))
	assert.Equal(t, "1150.00", invoice.BalanceDue.StringFixed(2))
	assert.Equal(t, "USD", invoice.Currency)
	assert.EqualValues(t, 1, invoice.Version)
	require.Len(t, invoice.LineItems, 1)
	assert.Equal(t, "1000.00", invoice.LineItems[0].Amount.StringFixed(2))
}

func TestTimestampsFollowInjectedClock(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	svc, _, companyID, fake := setupServiceAt(t, now)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	assert.True(t, invoice.CreatedAt.Equal(now))
	assert.True(t, invoice.UpdatedAt.Equal(now))

	fake.Advance(time.Hour)
	notes := "follow up"
	updated, err := svc.Update(ctx, invoice.ID, invoicedomain.UpdateInvoiceRequest{Notes: &notes})
	require.NoError(t, err)
	assert.True(t, updated.UpdatedAt.Equal(now.Add(time.Hour)))
}

func TestCreateValidation(t *testing.T) {
	svc, _, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	req := createRequest()
	req.LineItems = nil
	_, err := svc.Create(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrEmptyLineItems)

	req = createRequest()
	req.DueDate = req.IssueDate.Add(-time.Hour)
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidDueDate)

	req = createRequest()
	req.Status = invoicedomain.StatusPaid
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidStatus)

	req = createRequest()
	req.LineItems[0].Quantity = decimal.Zero
	_, err = svc.Create(ctx, req)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidQuantity)
}

func TestActivateDraft(t *testing.T) {
	svc, _, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	activated, err := svc.Activate(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusPending, activated.Status)
	assert.EqualValues(t, 2, activated.Version)

	// draft → sent is not a permitted transition, and replaying the
	// activation is rejected the same way.
	_, err = svc.Activate(ctx, invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)
}

func TestMarkSentRequiresPending(t *testing.T) {
	svc, _, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	_, err = svc.MarkSent(ctx, invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrInvalidTransition)

	_, err = svc.Activate(ctx, invoice.ID)
	require.NoError(t, err)

	sent, err := svc.MarkSent(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusSent, sent.Status)
}

func TestUpdateRecomputesTotals(t *testing.T) {
	svc, _, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	items := []invoicedomain.LineItemRequest{
		{Description: "Document conversion plan", Quantity: decimal.NewFromInt(5), UnitPrice: decimal.RequireFromString("100.00")},
		{Description: "Priority processing", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("50.00")},
	}
	updated, err := svc.Update(ctx, invoice.ID, invoicedomain.UpdateInvoiceRequest{LineItems: &items})
	require.NoError(t, err)

	assert.Equal(t, "550.00", updated.Subtotal.StringFixed(2))
	assert.Equal(t, "632.50", updated.TotalAmount.StringFixed(2))
	assert.Equal(t, "632.50", updated.BalanceDue.StringFixed(2))
	assert.EqualValues(t, 2, updated.Version)
	require.Len(t, updated.LineItems, 2)
}

func TestUpdateRejectsTerminalInvoice(t *testing.T) {
	svc, db, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("status", invoicedomain.StatusPaid).Error)

	notes := "late edit"
	_, err = svc.Update(ctx, invoice.ID, invoicedomain.UpdateInvoiceRequest{Notes: &notes})
	assert.ErrorIs(t, err, invoicedomain.ErrEditConflict)

	_, err = svc.Cancel(ctx, invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrEditConflict)
}

func TestUpdateRejectsTotalBelowAmountPaid(t *testing.T) {
	svc, db, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Updates(map[string]any{
			"status":      invoicedomain.StatusPartiallyPaid,
			"amount_paid": decimal.RequireFromString("600.00"),
			"balance_due": decimal.RequireFromString("550.00"),
		}).Error)

	items := []invoicedomain.LineItemRequest{
		{Description: "Document conversion plan", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("100.00")},
	}
	_, err = svc.Update(ctx, invoice.ID, invoicedomain.UpdateInvoiceRequest{LineItems: &items})
	assert.ErrorIs(t, err, invoicedomain.ErrInvariantViolation)
}

func TestCancelNonTerminal(t *testing.T) {
	svc, _, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicedomain.StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrEditConflict)
}

func TestGetByIDScopesToCompany(t *testing.T) {
	svc, _, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	invoice, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, got.ID)

	otherCtx := companyctx.WithCompanyID(context.Background(), svc.genID.Generate())
	_, err = svc.GetByID(otherCtx, invoice.ID)
	assert.ErrorIs(t, err, invoicedomain.ErrNotFound)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _, companyID := setupService(t)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	first, err := svc.Create(ctx, createRequest())
	require.NoError(t, err)
	_, err = svc.Activate(ctx, first.ID)
	require.NoError(t, err)

	_, err = svc.Create(ctx, createRequest())
	require.NoError(t, err)

	pending := invoicedomain.StatusPending
	resp, err := svc.List(ctx, invoicedomain.ListInvoiceRequest{Status: &pending})
	require.NoError(t, err)
	require.Len(t, resp.Invoices, 1)
	assert.Equal(t, first.ID, resp.Invoices[0].ID)

	all, err := svc.List(ctx, invoicedomain.ListInvoiceRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Invoices, 2)
}
