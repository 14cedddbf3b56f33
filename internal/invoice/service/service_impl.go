package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/docbill/internal/audit/domain"
	"github.com/smallbiznis/docbill/internal/clock"
	"github.com/smallbiznis/docbill/internal/companyctx"
	"github.com/smallbiznis/docbill/internal/config"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     invoicedomain.Repository
	AuditSvc auditdomain.Service
	Cfg      config.Config
}

type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	genID           *snowflake.Node
	clock           clock.Clock
	repo            invoicedomain.Repository
	auditSvc        auditdomain.Service
	defaultCurrency string
}

func NewService(p Params) invoicedomain.Service {
	return &Service{
		db:              p.DB,
		log:             p.Log.Named("invoice.service"),
		genID:           p.GenID,
		clock:           p.Clock,
		repo:            p.Repo,
		auditSvc:        p.AuditSvc,
		defaultCurrency: p.Cfg.DefaultCurrency,
	}
}

func (s *Service) Create(ctx context.Context, req invoicedomain.CreateInvoiceRequest) (*invoicedomain.Invoice, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = invoicedomain.StatusDraft
	}
	if status != invoicedomain.StatusDraft && status != invoicedomain.StatusPending {
		return nil, invoicedomain.ErrInvalidStatus
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.defaultCurrency
	}
	if len(currency) != 3 {
		return nil, invoicedomain.ErrInvalidCurrency
	}

	if req.IssueDate.IsZero() || req.DueDate.IsZero() || req.DueDate.Before(req.IssueDate) {
		return nil, invoicedomain.ErrInvalidDueDate
	}

	totals, err := invoicedomain.ComputeTotals(toLineInputs(req.LineItems), req.VATRate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invoice := &invoicedomain.Invoice{
		ID:                 s.genID.Generate(),
		InvoiceNumber:      newInvoiceNumber(),
		CompanyID:          companyID,
		Status:             status,
		Currency:           currency,
		BillingPeriodStart: req.BillingPeriodStart,
		BillingPeriodEnd:   req.BillingPeriodEnd,
		IssueDate:          req.IssueDate.UTC(),
		DueDate:            req.DueDate.UTC(),
		VATRate:            req.VATRate,
		Subtotal:           totals.Subtotal,
		VATAmount:          totals.VATAmount,
		TotalAmount:        totals.Total,
		AmountPaid:         decimal.Zero,
		BalanceDue:         totals.Total,
		Notes:              req.Notes,
		Terms:              req.Terms,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	items := s.buildItems(invoice.ID, req.LineItems, totals, now)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, invoice, items)
	})
	if err != nil {
		return nil, err
	}
	invoice.LineItems = items

	s.audit(ctx, invoice, "invoice.created", map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"total_amount":   invoice.TotalAmount.String(),
		"status":         string(invoice.Status),
	})
	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	invoice, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.CompanyID != companyID {
		return nil, invoicedomain.ErrNotFound
	}

	items, err := s.repo.ListItems(ctx, s.db, invoice.ID)
	if err != nil {
		return nil, err
	}
	invoice.LineItems = items
	return invoice, nil
}

func (s *Service) List(ctx context.Context, req invoicedomain.ListInvoiceRequest) (invoicedomain.ListInvoiceResponse, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}

	invoices, err := s.repo.List(ctx, s.db, companyID, req)
	if err != nil {
		return invoicedomain.ListInvoiceResponse{}, err
	}
	return invoicedomain.ListInvoiceResponse{
		PageInfo: req.Pagination.PageInfo(),
		Invoices: invoices,
	}, nil
}

// Update mutates the editable fields. The edit guard is enforced twice: on
// the loaded row, and again by the guarded UPDATE so an edit racing a
// payment application or cancellation fails at commit instead of clobbering.
func (s *Service) Update(ctx context.Context, id snowflake.ID, req invoicedomain.UpdateInvoiceRequest) (*invoicedomain.Invoice, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var updated *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil || invoice.CompanyID != companyID {
			return invoicedomain.ErrNotFound
		}
		if !invoice.Status.Editable() {
			return invoicedomain.ErrEditConflict
		}

		expectedVersion := invoice.Version

		if req.IssueDate != nil {
			invoice.IssueDate = req.IssueDate.UTC()
		}
		if req.DueDate != nil {
			invoice.DueDate = req.DueDate.UTC()
		}
		if invoice.DueDate.Before(invoice.IssueDate) {
			return invoicedomain.ErrInvalidDueDate
		}
		if req.Notes != nil {
			invoice.Notes = *req.Notes
		}
		if req.Terms != nil {
			invoice.Terms = *req.Terms
		}
		if req.VATRate != nil {
			invoice.VATRate = *req.VATRate
		}

		lineItems := req.LineItems
		itemInputs, err := s.resolveItemInputs(ctx, tx, invoice.ID, lineItems)
		if err != nil {
			return err
		}

		totals, err := invoicedomain.ComputeTotals(itemInputs, invoice.VATRate)
		if err != nil {
			return err
		}
		if invoice.AmountPaid.GreaterThan(totals.Total) {
			return invoicedomain.ErrInvariantViolation
		}

		now := s.clock.Now()
		invoice.Subtotal = totals.Subtotal
		invoice.VATAmount = totals.VATAmount
		invoice.TotalAmount = totals.Total
		invoice.BalanceDue = totals.Total.Sub(invoice.AmountPaid)
		invoice.UpdatedAt = now

		ok, err := s.repo.UpdateEditable(ctx, tx, invoice, expectedVersion)
		if err != nil {
			return err
		}
		if !ok {
			return invoicedomain.ErrEditConflict
		}

		if lineItems != nil {
			items := s.buildItems(invoice.ID, *lineItems, totals, now)
			if err := s.repo.ReplaceItems(ctx, tx, invoice.ID, items); err != nil {
				return err
			}
			invoice.LineItems = items
		} else {
			items, err := s.repo.ListItems(ctx, tx, invoice.ID)
			if err != nil {
				return err
			}
			invoice.LineItems = items
		}

		invoice.Version = expectedVersion + 1
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, updated, "invoice.updated", map[string]any{
		"total_amount": updated.TotalAmount.String(),
		"balance_due":  updated.BalanceDue.String(),
	})
	return updated, nil
}

func (s *Service) Activate(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.StatusPending, "invoice.activated")
}

func (s *Service) MarkSent(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.StatusSent, "invoice.sent")
}

func (s *Service) Cancel(ctx context.Context, id snowflake.ID) (*invoicedomain.Invoice, error) {
	return s.transition(ctx, id, invoicedomain.StatusCancelled, "invoice.cancelled")
}

func (s *Service) transition(ctx context.Context, id snowflake.ID, to invoicedomain.InvoiceStatus, action string) (*invoicedomain.Invoice, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var result *invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if invoice == nil || invoice.CompanyID != companyID {
			return invoicedomain.ErrNotFound
		}
		if invoice.Status.IsTerminal() {
			return invoicedomain.ErrEditConflict
		}
		if !invoicedomain.CanTransition(invoice.Status, to) {
			return invoicedomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		ok, err := s.repo.Transition(ctx, tx, invoice.ID, invoice.Version, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return invoicedomain.ErrEditConflict
		}

		invoice.Status = to
		invoice.Version++
		invoice.UpdatedAt = now
		result = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, result, action, map[string]any{"status": string(result.Status)})
	return result, nil
}

func (s *Service) resolveItemInputs(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID, requested *[]invoicedomain.LineItemRequest) ([]invoicedomain.LineItemInput, error) {
	if requested != nil {
		return toLineInputs(*requested), nil
	}
	existing, err := s.repo.ListItems(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	inputs := make([]invoicedomain.LineItemInput, 0, len(existing))
	for _, item := range existing {
		inputs = append(inputs, invoicedomain.LineItemInput{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}
	return inputs, nil
}

func (s *Service) buildItems(invoiceID snowflake.ID, reqs []invoicedomain.LineItemRequest, totals invoicedomain.Totals, now time.Time) []invoicedomain.LineItem {
	items := make([]invoicedomain.LineItem, 0, len(reqs))
	for i, req := range reqs {
		items = append(items, invoicedomain.LineItem{
			ID:          s.genID.Generate(),
			InvoiceID:   invoiceID,
			Position:    i,
			Description: strings.TrimSpace(req.Description),
			Quantity:    req.Quantity,
			UnitPrice:   req.UnitPrice,
			Amount:      totals.LineAmounts[i],
			CreatedAt:   now,
		})
	}
	return items
}

func (s *Service) companyIDFromContext(ctx context.Context) (snowflake.ID, error) {
	companyID, ok := companyctx.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return 0, auditdomain.ErrInvalidCompany
	}
	return companyID, nil
}

func (s *Service) audit(ctx context.Context, invoice *invoicedomain.Invoice, action string, metadata map[string]any) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	targetID := invoice.ID.String()
	companyID := invoice.CompanyID
	if err := s.auditSvc.AuditLog(ctx, &companyID, "", nil, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("failed to write invoice audit log", zap.String("action", action), zap.Error(err))
	}
}

func toLineInputs(reqs []invoicedomain.LineItemRequest) []invoicedomain.LineItemInput {
	inputs := make([]invoicedomain.LineItemInput, 0, len(reqs))
	for _, req := range reqs {
		inputs = append(inputs, invoicedomain.LineItemInput{
			Description: req.Description,
			Quantity:    req.Quantity,
			UnitPrice:   req.UnitPrice,
		})
	}
	return inputs
}

func newInvoiceNumber() string {
	return fmt.Sprintf("INV-%s", ulid.Make().String())
}
