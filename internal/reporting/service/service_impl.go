package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/docbill/internal/audit/domain"
	"github.com/smallbiznis/docbill/internal/clock"
	"github.com/smallbiznis/docbill/internal/companyctx"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	"github.com/smallbiznis/docbill/internal/reporting/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reporting.service"),
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Summary(ctx context.Context) (*domain.Summary, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rollups, err := s.repo.Rollup(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}

	summary := &domain.Summary{
		ByStatus:         rollups,
		TotalInvoiced:    decimal.Zero,
		TotalCollected:   decimal.Zero,
		TotalOutstanding: decimal.Zero,
		OverdueAmount:    decimal.Zero,
	}
	for _, rollup := range rollups {
		if rollup.Status == invoicedomain.StatusCancelled || rollup.Status == invoicedomain.StatusDraft {
			continue
		}
		summary.TotalInvoiced = summary.TotalInvoiced.Add(rollup.TotalAmount)
		summary.TotalCollected = summary.TotalCollected.Add(rollup.AmountPaid)
		summary.TotalOutstanding = summary.TotalOutstanding.Add(rollup.BalanceDue)
	}

	count, amount, err := s.repo.OverdueTotals(ctx, s.db, companyID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	summary.OverdueCount = count
	summary.OverdueAmount = amount

	return summary, nil
}

// ListOverdue reports derived overdue: invoices past due with money
// outstanding show up here even when the sweep has not flipped them yet.
func (s *Service) ListOverdue(ctx context.Context, limit int) ([]invoicedomain.Invoice, error) {
	companyID, err := s.companyIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	invoices, err := s.repo.Overdue(ctx, s.db, companyID, now, limit)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].Status = invoices[i].EffectiveStatus(now)
	}
	return invoices, nil
}

func (s *Service) companyIDFromContext(ctx context.Context) (snowflake.ID, error) {
	companyID, ok := companyctx.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return 0, auditdomain.ErrInvalidCompany
	}
	return companyID, nil
}
