package service

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/docbill/internal/clock"
	"github.com/smallbiznis/docbill/internal/companyctx"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/docbill/internal/invoice/repository"
	paymentdomain "github.com/smallbiznis/docbill/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/docbill/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeGateway struct {
	verifyResult *paymentdomain.VerifyResult
	verifyErr    error
	verifyCalls  int
	initErr      error
}

func (f *fakeGateway) Provider() string { return "fake" }

func (f *fakeGateway) Initialize(ctx context.Context, req paymentdomain.InitializeRequest) (*paymentdomain.InitializeResult, error) {
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &paymentdomain.InitializeResult{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (f *fakeGateway) Verify(ctx context.Context, reference string) (*paymentdomain.VerifyResult, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.verifyResult, nil
}

func (f *fakeGateway) VerifyWebhook(payload []byte, headers http.Header) error {
	return nil
}

func (f *fakeGateway) ParseWebhookReference(payload []byte) (string, error) {
	return "", paymentdomain.ErrEventIgnored
}

func setupService(t *testing.T, gw *fakeGateway) (*Service, *gorm.DB, snowflake.ID) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&paymentdomain.Payment{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clock.NewSystemClock(),
		Repo:        paymentrepo.Provide(),
		InvoiceRepo: invoicerepo.Provide(),
		Gateway:     gw,
	}).(*Service)

	companyID := node.Generate()
	return svc, db, companyID
}

func seedInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, companyID snowflake.ID, status invoicedomain.InvoiceStatus, total string) *invoicedomain.Invoice {
	t.Helper()

	now := time.Now().UTC()
	totalAmount := decimal.RequireFromString(total)
	invoice := &invoicedomain.Invoice{
		ID:            node.Generate(),
		InvoiceNumber: "INV-TEST-" + node.Generate().String(),
		CompanyID:     companyID,
		Status:        status,
		Currency:      "USD",
		IssueDate:     now,
		DueDate:       now.Add(14 * 24 * time.Hour),
		VATRate:       decimal.RequireFromString("15"),
		Subtotal:      totalAmount,
		VATAmount:     decimal.Zero,
		TotalAmount:   totalAmount,
		AmountPaid:    decimal.Zero,
		BalanceDue:    totalAmount,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice
}

func TestInitializeCreatesPendingPayment(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusPending, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	resp, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AuthorizationURL)
	assert.Equal(t, paymentdomain.PaymentStatusPending, resp.Payment.Status)
	assert.Equal(t, "500.00", resp.Payment.Amount.StringFixed(2))
	assert.Equal(t, "USD", resp.Payment.Currency)

	stored, err := svc.repo.FindByReference(ctx, db, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusPending, stored.Status)
}

func TestInitializeRejectsDraftInvoice(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusDraft, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	_, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvoiceNotPayable)
}

func TestInitializeRejectsAmountAboveBalance(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusPending, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	_, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("1150.01"),
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)

	_, err = svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.Zero,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidAmount)
}

func TestVerifyAndApplyPartialThenFull(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusPending, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	first, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	gw.verifyResult = &paymentdomain.VerifyResult{
		Status:               paymentdomain.VerifyStatusSuccess,
		Amount:               decimal.RequireFromString("500.00"),
		Currency:             "USD",
		GatewayTransactionID: "txn_1",
	}
	result, err := svc.VerifyAndApply(ctx, first.Reference)
	require.NoError(t, err)
	assert.False(t, result.AlreadyApplied)
	assert.Equal(t, string(invoicedomain.StatusPartiallyPaid), result.InvoiceStatus)
	assert.Equal(t, "650.00", result.BalanceDue.StringFixed(2))
	assert.Equal(t, "500.00", result.AmountPaid.StringFixed(2))

	second, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("650.00"),
	})
	require.NoError(t, err)

	gw.verifyResult = &paymentdomain.VerifyResult{
		Status:               paymentdomain.VerifyStatusSuccess,
		Amount:               decimal.RequireFromString("650.00"),
		Currency:             "USD",
		GatewayTransactionID: "txn_2",
	}
	result, err = svc.VerifyAndApply(ctx, second.Reference)
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.StatusPaid), result.InvoiceStatus)
	assert.Equal(t, "0.00", result.BalanceDue.StringFixed(2))
	assert.Equal(t, "1150.00", result.AmountPaid.StringFixed(2))
}

func TestVerifyAndApplyIsIdempotent(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusPending, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	resp, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	gw.verifyResult = &paymentdomain.VerifyResult{
		Status:               paymentdomain.VerifyStatusSuccess,
		Amount:               decimal.RequireFromString("500.00"),
		Currency:             "USD",
		GatewayTransactionID: "txn_1",
	}

	_, err = svc.VerifyAndApply(ctx, resp.Reference)
	require.NoError(t, err)

	replay, err := svc.VerifyAndApply(ctx, resp.Reference)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyApplied)
	assert.Equal(t, "500.00", replay.AmountPaid.StringFixed(2))
	assert.Equal(t, "650.00", replay.BalanceDue.StringFixed(2))

	// The replay must not hit the gateway again, nor move the invoice.
	assert.Equal(t, 1, gw.verifyCalls)
	reloaded, err := svc.invoiceRepo.FindByID(ctx, db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", reloaded.AmountPaid.StringFixed(2))
	assert.Equal(t, invoicedomain.StatusPartiallyPaid, reloaded.Status)
}

func TestVerifyAndApplyAmountMismatchFlagsReview(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusPending, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	resp, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	gw.verifyResult = &paymentdomain.VerifyResult{
		Status:               paymentdomain.VerifyStatusSuccess,
		Amount:               decimal.RequireFromString("400.00"),
		Currency:             "USD",
		GatewayTransactionID: "txn_1",
	}
	_, err = svc.VerifyAndApply(ctx, resp.Reference)
	assert.ErrorIs(t, err, paymentdomain.ErrAmountMismatch)

	stored, err := svc.repo.FindByReference(ctx, db, resp.Reference)
	require.NoError(t, err)
	assert.True(t, stored.ReviewRequired)
	assert.Equal(t, paymentdomain.PaymentStatusPending, stored.Status)

	reloaded, err := svc.invoiceRepo.FindByID(ctx, db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.00", reloaded.AmountPaid.StringFixed(2))
	assert.Equal(t, invoicedomain.StatusPending, reloaded.Status)
}

func TestVerifyAndApplyRejectsReusedGatewayTransaction(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusPending, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	first, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)
	second, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	gw.verifyResult = &paymentdomain.VerifyResult{
		Status:               paymentdomain.VerifyStatusSuccess,
		Amount:               decimal.RequireFromString("500.00"),
		Currency:             "USD",
		GatewayTransactionID: "txn_dup",
	}
	_, err = svc.VerifyAndApply(ctx, first.Reference)
	require.NoError(t, err)

	// Same external charge reported under a second reference: the row must
	// not settle and the money must not double-apply.
	_, err = svc.VerifyAndApply(ctx, second.Reference)
	assert.ErrorIs(t, err, paymentdomain.ErrDuplicateTransaction)

	stored, err := svc.repo.FindByReference(ctx, db, second.Reference)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusPending, stored.Status)
	assert.True(t, stored.ReviewRequired)

	reloaded, err := svc.invoiceRepo.FindByID(ctx, db, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", reloaded.AmountPaid.StringFixed(2))
	assert.Equal(t, invoicedomain.StatusPartiallyPaid, reloaded.Status)
}

func TestVerifyAndApplyGatewayFailure(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusPending, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	resp, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	gw.verifyResult = &paymentdomain.VerifyResult{
		Status:        paymentdomain.VerifyStatusFailed,
		FailureReason: "insufficient funds",
	}
	_, err = svc.VerifyAndApply(ctx, resp.Reference)
	assert.ErrorIs(t, err, paymentdomain.ErrPaymentFailed)

	stored, err := svc.repo.FindByReference(ctx, db, resp.Reference)
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.PaymentStatusFailed, stored.Status)
	assert.Equal(t, "insufficient funds", stored.FailureReason)
}

func TestVerifyAndApplyUnknownReference(t *testing.T) {
	gw := &fakeGateway{}
	svc, _, companyID := setupService(t, gw)
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	_, err := svc.VerifyAndApply(ctx, "pay_doesnotexist")
	assert.ErrorIs(t, err, paymentdomain.ErrUnknownReference)
}

func TestMarkPaidManuallySettlesInvoice(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusSent, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	result, err := svc.MarkPaidManually(ctx, invoice.ID, decimal.RequireFromString("1150.00"), "bank_transfer")
	require.NoError(t, err)
	assert.Equal(t, string(invoicedomain.StatusPaid), result.InvoiceStatus)
	assert.Equal(t, "0.00", result.BalanceDue.StringFixed(2))
	assert.Equal(t, paymentdomain.PaymentStatusSuccess, result.Payment.Status)
	assert.Equal(t, "bank_transfer", result.Payment.Method)

	// No further money can flow in.
	_, err = svc.MarkPaidManually(ctx, invoice.ID, decimal.RequireFromString("1.00"), "")
	assert.ErrorIs(t, err, paymentdomain.ErrInvoiceNotPayable)
}

func TestMarkPaidManuallyRollsBackPaymentOnApplyFailure(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusSent, "100.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	// Stored balance out of step with total and amount_paid: the entry
	// check accepts the amount, settlement then trips the invariant.
	require.NoError(t, db.Model(&invoicedomain.Invoice{}).
		Where("id = ?", invoice.ID).
		Update("amount_paid", decimal.RequireFromString("90.00")).Error)

	_, err := svc.MarkPaidManually(ctx, invoice.ID, decimal.RequireFromString("100.00"), "bank_transfer")
	assert.ErrorIs(t, err, invoicedomain.ErrInvariantViolation)

	// The pending row must roll back with the failed settlement.
	var count int64
	require.NoError(t, db.Model(&paymentdomain.Payment{}).
		Where("invoice_id = ?", invoice.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetByIDScopesToCompany(t *testing.T) {
	gw := &fakeGateway{}
	svc, db, companyID := setupService(t, gw)
	invoice := seedInvoice(t, db, svc.genID, companyID, invoicedomain.StatusPending, "1150.00")
	ctx := companyctx.WithCompanyID(context.Background(), companyID)

	resp, err := svc.Initialize(ctx, paymentdomain.InitializePaymentRequest{
		InvoiceID: invoice.ID,
		Amount:    decimal.RequireFromString("500.00"),
	})
	require.NoError(t, err)

	got, err := svc.GetByID(ctx, resp.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.Payment.ID, got.ID)

	otherCtx := companyctx.WithCompanyID(context.Background(), svc.genID.Generate())
	_, err = svc.GetByID(otherCtx, resp.Payment.ID)
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
}
