package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/docbill/internal/audit/domain"
	"github.com/smallbiznis/docbill/internal/clock"
	"github.com/smallbiznis/docbill/internal/companyctx"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/docbill/internal/payment/domain"
	"github.com/smallbiznis/docbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	Gateway     paymentdomain.Gateway `optional:"true"`
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	gateway     paymentdomain.Gateway
	auditSvc    auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		gateway:     p.Gateway,
		auditSvc:    p.AuditSvc,
	}
}

// Initialize records the expected amount as a pending payment, then opens
// a checkout session with the gateway under the same reference.
func (s *Service) Initialize(ctx context.Context, req paymentdomain.InitializePaymentRequest) (*paymentdomain.InitializePaymentResponse, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if s.gateway == nil {
		return nil, paymentdomain.ErrProviderNotFound
	}
	if !req.Amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, req.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.CompanyID != companyID {
		return nil, invoicedomain.ErrNotFound
	}
	now := s.clock.Now()
	if !invoice.EffectiveStatus(now).Payable() {
		return nil, paymentdomain.ErrInvoiceNotPayable
	}
	if req.Amount.GreaterThan(invoice.BalanceDue) {
		return nil, paymentdomain.ErrInvalidAmount
	}

	invoiceID := invoice.ID
	payment := &paymentdomain.Payment{
		ID:        s.genID.Generate(),
		InvoiceID: &invoiceID,
		CompanyID: companyID,
		Amount:    req.Amount.Round(2),
		Currency:  invoice.Currency,
		Method:    paymentdomain.MethodGateway,
		Provider:  s.gateway.Provider(),
		Reference: newPaymentReference(),
		Status:    paymentdomain.PaymentStatusPending,
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, s.db, payment); err != nil {
		return nil, err
	}

	session, err := s.gateway.Initialize(ctx, paymentdomain.InitializeRequest{
		Reference:   payment.Reference,
		Amount:      payment.Amount,
		Currency:    payment.Currency,
		CustomerRef: req.CustomerRef,
	})
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, s.db, payment.ID, "gateway initialize failed", s.clock.Now()); markErr != nil {
			s.log.Warn("failed to mark payment failed after initialize error",
				zap.String("reference", payment.Reference), zap.Error(markErr))
		}
		return nil, err
	}

	s.audit(ctx, payment, "payment.initialized", map[string]any{
		"invoice_id": invoice.ID.String(),
		"amount":     payment.Amount.StringFixed(2),
		"provider":   payment.Provider,
	})

	return &paymentdomain.InitializePaymentResponse{
		Payment:          payment,
		AuthorizationURL: session.AuthorizationURL,
		Reference:        payment.Reference,
	}, nil
}

// VerifyAndApply reconciles one reference against the gateway's own
// record. Confirmations are never trusted: the amount and status applied
// here are the ones the gateway reports on Verify. Replays of an already
// settled reference return the recorded outcome unchanged.
func (s *Service) VerifyAndApply(ctx context.Context, reference string) (*paymentdomain.ApplyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, paymentdomain.ErrUnknownReference
	}

	payment, err := s.repo.FindByReference(ctx, s.db, reference)
	if err != nil {
		return nil, err
	}

	if payment.Status == paymentdomain.PaymentStatusSuccess {
		return s.recordedResult(ctx, payment)
	}
	if payment.Status != paymentdomain.PaymentStatusPending {
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrPaymentFailed, payment.FailureReason)
	}

	if s.gateway == nil {
		return nil, paymentdomain.ErrProviderNotFound
	}
	verified, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, err
	}

	switch verified.Status {
	case paymentdomain.VerifyStatusPending:
		return nil, paymentdomain.ErrPaymentPending
	case paymentdomain.VerifyStatusFailed:
		now := s.clock.Now()
		if err := s.repo.MarkFailed(ctx, s.db, payment.ID, verified.FailureReason, now); err != nil {
			return nil, err
		}
		s.audit(ctx, payment, "payment.failed", map[string]any{
			"reference": payment.Reference,
			"reason":    verified.FailureReason,
		})
		return nil, fmt.Errorf("%w: %s", paymentdomain.ErrPaymentFailed, verified.FailureReason)
	}

	if !verified.Amount.Equal(payment.Amount) {
		reason := fmt.Sprintf("amount mismatch: expected %s, gateway reported %s",
			payment.Amount.StringFixed(2), verified.Amount.StringFixed(2))
		if err := s.repo.FlagForReview(ctx, s.db, payment.ID, reason); err != nil {
			return nil, err
		}
		s.audit(ctx, payment, "payment.amount_mismatch", map[string]any{
			"reference": payment.Reference,
			"expected":  payment.Amount.StringFixed(2),
			"reported":  verified.Amount.StringFixed(2),
		})
		return nil, paymentdomain.ErrAmountMismatch
	}

	return s.apply(ctx, payment, verified.GatewayTransactionID)
}

// MarkPaidManually records an out-of-band receipt and applies it to the
// invoice in one step. Bank transfers and cheques come in this way.
func (s *Service) MarkPaidManually(ctx context.Context, invoiceID snowflake.ID, amount decimal.Decimal, method string) (*paymentdomain.ApplyResult, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, paymentdomain.ErrInvalidAmount
	}
	method = strings.TrimSpace(method)
	if method == "" {
		method = paymentdomain.MethodManual
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.CompanyID != companyID {
		return nil, invoicedomain.ErrNotFound
	}
	now := s.clock.Now()
	if !invoice.EffectiveStatus(now).Payable() {
		return nil, paymentdomain.ErrInvoiceNotPayable
	}
	if amount.GreaterThan(invoice.BalanceDue) {
		return nil, paymentdomain.ErrInvalidAmount
	}

	payment := &paymentdomain.Payment{
		ID:        s.genID.Generate(),
		InvoiceID: &invoiceID,
		CompanyID: companyID,
		Amount:    amount.Round(2),
		Currency:  invoice.Currency,
		Method:    method,
		Reference: newManualReference(),
		Status:    paymentdomain.PaymentStatusPending,
		CreatedAt: now,
	}

	// Insert and settle in one transaction so a lost invoice CAS rolls the
	// pending row back with it instead of leaving it orphaned.
	var result *paymentdomain.ApplyResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, payment); err != nil {
			return err
		}
		applied, err := s.applyTx(ctx, tx, payment, "", now)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, payment, "payment.manual", map[string]any{
		"invoice_id": invoiceID.String(),
		"amount":     payment.Amount.StringFixed(2),
		"method":     method,
	})
	return result, nil
}

// apply settles a pending payment against its invoice. ClaimSuccess is
// the serialization point: the first transaction to flip the row owns the
// monetary write, every concurrent replay rolls back and re-reads the
// recorded outcome.
func (s *Service) apply(ctx context.Context, payment *paymentdomain.Payment, gatewayTransactionID string) (*paymentdomain.ApplyResult, error) {
	if payment.InvoiceID == nil {
		return nil, paymentdomain.ErrInvoiceNotPayable
	}
	now := s.clock.Now()

	var result *paymentdomain.ApplyResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		applied, err := s.applyTx(ctx, tx, payment, gatewayTransactionID, now)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	if err != nil {
		// The unique index on gateway_transaction_id fires when a second
		// reference tries to claim a charge that already settled another
		// payment. This row must never apply; park it for an operator.
		if db.IsDuplicateKeyErr(err) {
			reason := fmt.Sprintf("gateway transaction %s already settled another payment", gatewayTransactionID)
			if flagErr := s.repo.FlagForReview(ctx, s.db, payment.ID, reason); flagErr != nil {
				s.log.Warn("failed to flag duplicate gateway transaction for review",
					zap.String("reference", payment.Reference), zap.Error(flagErr))
			}
			s.audit(ctx, payment, "payment.duplicate_transaction", map[string]any{
				"reference":              payment.Reference,
				"gateway_transaction_id": gatewayTransactionID,
			})
			return nil, paymentdomain.ErrDuplicateTransaction
		}
		return nil, err
	}
	if result == nil {
		// Lost the claim to a concurrent confirmation.
		settled, err := s.repo.FindByReference(ctx, s.db, payment.Reference)
		if err != nil {
			return nil, err
		}
		return s.recordedResult(ctx, settled)
	}

	s.audit(ctx, payment, "payment.applied", map[string]any{
		"reference":      payment.Reference,
		"amount":         payment.Amount.StringFixed(2),
		"invoice_status": result.InvoiceStatus,
		"balance_due":    result.BalanceDue.StringFixed(2),
	})
	return result, nil
}

// applyTx runs the settlement inside the caller's transaction. A nil result
// with a nil error means the claim was lost to a concurrent confirmation.
func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, payment *paymentdomain.Payment, gatewayTransactionID string, now time.Time) (*paymentdomain.ApplyResult, error) {
	claimed, err := s.repo.ClaimSuccess(ctx, tx, payment.ID, gatewayTransactionID, now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, nil
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, tx, *payment.InvoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, invoicedomain.ErrNotFound
	}
	if invoice.Status == invoicedomain.StatusCancelled {
		return nil, paymentdomain.ErrInvoiceNotPayable
	}

	amountPaid := invoice.AmountPaid.Add(payment.Amount).Round(2)
	balanceDue := invoice.TotalAmount.Sub(amountPaid).Round(2)
	if balanceDue.IsNegative() {
		return nil, invoicedomain.ErrInvariantViolation
	}

	expectedVersion := invoice.Version
	invoice.AmountPaid = amountPaid
	invoice.BalanceDue = balanceDue
	invoice.Status = invoicedomain.StatusForBalance(balanceDue)

	updated, err := s.invoiceRepo.ApplyPayment(ctx, tx, invoice, expectedVersion, now)
	if err != nil {
		return nil, err
	}
	if !updated {
		return nil, invoicedomain.ErrEditConflict
	}

	payment.Status = paymentdomain.PaymentStatusSuccess
	payment.ProcessedAt = &now
	if gatewayTransactionID != "" {
		payment.GatewayTransactionID = &gatewayTransactionID
	}
	return &paymentdomain.ApplyResult{
		Payment:       payment,
		InvoiceStatus: string(invoice.Status),
		BalanceDue:    balanceDue,
		AmountPaid:    amountPaid,
	}, nil
}

// recordedResult rebuilds the outcome of a settlement that already
// happened, without touching any row.
func (s *Service) recordedResult(ctx context.Context, payment *paymentdomain.Payment) (*paymentdomain.ApplyResult, error) {
	result := &paymentdomain.ApplyResult{
		Payment:        payment,
		AlreadyApplied: true,
		AmountPaid:     payment.Amount,
	}
	if payment.InvoiceID != nil {
		invoice, err := s.invoiceRepo.FindByID(ctx, s.db, *payment.InvoiceID)
		if err != nil {
			return nil, err
		}
		if invoice == nil {
			return nil, invoicedomain.ErrNotFound
		}
		result.InvoiceStatus = string(invoice.Status)
		result.BalanceDue = invoice.BalanceDue
		result.AmountPaid = invoice.AmountPaid
	}
	return result, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*paymentdomain.Payment, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	payment, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payment.CompanyID != companyID {
		return nil, paymentdomain.ErrNotFound
	}
	return payment, nil
}

func (s *Service) List(ctx context.Context, filter paymentdomain.ListPaymentFilter) ([]paymentdomain.Payment, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, s.db, companyID, filter)
}

func (s *Service) companyIDFromContext(ctx context.Context) (snowflake.ID, error) {
	companyID, ok := companyctx.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return 0, auditdomain.ErrInvalidCompany
	}
	return companyID, nil
}

func (s *Service) audit(ctx context.Context, payment *paymentdomain.Payment, action string, metadata map[string]any) {
	if s.auditSvc == nil || payment == nil {
		return
	}
	targetID := payment.ID.String()
	companyID := payment.CompanyID
	if err := s.auditSvc.AuditLog(ctx, &companyID, "", nil, action, "payment", &targetID, metadata); err != nil {
		s.log.Warn("failed to write payment audit log", zap.String("action", action), zap.Error(err))
	}
}

func newPaymentReference() string {
	return "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newManualReference() string {
	return "man_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
