// Package scheduler runs the overdue sweep: a periodic pass that flips
// invoices past their due date with money outstanding to overdue. The
// sweep writes status only; amounts move exclusively through payment
// reconciliation, so running it concurrently with confirmations is safe.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/docbill/internal/clock"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	InvoiceRepo invoicedomain.Repository
	Clock       clock.Clock
	Config      SchedulerConfig `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	cfg         SchedulerConfig
	invoiceRepo invoicedomain.Repository
	clock       clock.Clock
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.InvoiceRepo == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler"),
		cfg:         p.Config.withDefaults(),
		invoiceRepo: p.InvoiceRepo,
		clock:       p.Clock,
	}, nil
}

// RunOnce executes a single sweep pass. The underlying update is
// idempotent: invoices already flipped no longer match the predicate.
func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	now := s.clock.Now()
	flipped, err := s.invoiceRepo.SweepOverdue(ctx, s.db, now, s.cfg.BatchSize)
	if err != nil {
		s.log.Warn("overdue sweep failed", zap.Error(err))
		return err
	}
	if flipped > 0 {
		s.log.Info("overdue sweep flipped invoices", zap.Int64("count", flipped))
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
