package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/docbill/internal/clock"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	invoicerepo "github.com/smallbiznis/docbill/internal/invoice/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupScheduler(t *testing.T, fake *clock.FakeClock) (*Scheduler, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&invoicedomain.Invoice{}, &invoicedomain.LineItem{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	sched, err := New(Params{
		DB:          db,
		Log:         zap.NewNop(),
		InvoiceRepo: invoicerepo.Provide(),
		Clock:       fake,
		Config:      SchedulerConfig{RunInterval: time.Minute, BatchSize: 10},
	})
	require.NoError(t, err)
	return sched, db, node
}

func seedInvoice(t *testing.T, db *gorm.DB, node *snowflake.Node, status invoicedomain.InvoiceStatus, total, paid string, dueDate time.Time) snowflake.ID {
	t.Helper()

	totalAmount := decimal.RequireFromString(total)
	amountPaid := decimal.RequireFromString(paid)
	created := dueDate.Add(-14 * 24 * time.Hour)
	invoice := &invoicedomain.Invoice{
		ID:            node.Generate(),
		InvoiceNumber: "INV-TEST-" + node.Generate().String(),
		CompanyID:     node.Generate(),
		Status:        status,
		Currency:      "USD",
		IssueDate:     created,
		DueDate:       dueDate,
		VATRate:       decimal.Zero,
		Subtotal:      totalAmount,
		VATAmount:     decimal.Zero,
		TotalAmount:   totalAmount,
		AmountPaid:    amountPaid,
		BalanceDue:    totalAmount.Sub(amountPaid),
		Version:       1,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice.ID
}

func TestRunOnceFlipsPastDueInvoices(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	sched, db, node := setupScheduler(t, fake)

	pastDue := now.Add(-24 * time.Hour)
	futureDue := now.Add(24 * time.Hour)
	overdueID := seedInvoice(t, db, node, invoicedomain.StatusPending, "1150.00", "500.00", pastDue)
	paidID := seedInvoice(t, db, node, invoicedomain.StatusPaid, "300.00", "300.00", pastDue)
	notDueID := seedInvoice(t, db, node, invoicedomain.StatusSent, "400.00", "0.00", futureDue)

	require.NoError(t, sched.RunOnce(context.Background()))

	var flipped invoicedomain.Invoice
	require.NoError(t, db.First(&flipped, "id = ?", overdueID).Error)
	assert.Equal(t, invoicedomain.StatusOverdue, flipped.Status)
	assert.Equal(t, int64(2), flipped.Version)

	// Monetary columns never move through the sweep.
	assert.Equal(t, "500.00", flipped.AmountPaid.StringFixed(2))
	assert.Equal(t, "650.00", flipped.BalanceDue.StringFixed(2))

	var terminal invoicedomain.Invoice
	require.NoError(t, db.First(&terminal, "id = ?", paidID).Error)
	assert.Equal(t, invoicedomain.StatusPaid, terminal.Status)

	var notDue invoicedomain.Invoice
	require.NoError(t, db.First(&notDue, "id = ?", notDueID).Error)
	assert.Equal(t, invoicedomain.StatusSent, notDue.Status)
}

func TestRunOnceIsIdempotent(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	sched, db, node := setupScheduler(t, fake)

	id := seedInvoice(t, db, node, invoicedomain.StatusPending, "1150.00", "0.00", now.Add(-time.Hour))

	require.NoError(t, sched.RunOnce(context.Background()))
	require.NoError(t, sched.RunOnce(context.Background()))

	var invoice invoicedomain.Invoice
	require.NoError(t, db.First(&invoice, "id = ?", id).Error)
	assert.Equal(t, invoicedomain.StatusOverdue, invoice.Status)
	assert.Equal(t, int64(2), invoice.Version)
}

func TestSweepOnlyAfterDueDatePasses(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	fake := clock.NewFakeClock(now)
	sched, db, node := setupScheduler(t, fake)

	id := seedInvoice(t, db, node, invoicedomain.StatusSent, "400.00", "0.00", now.Add(time.Hour))

	require.NoError(t, sched.RunOnce(context.Background()))
	var before invoicedomain.Invoice
	require.NoError(t, db.First(&before, "id = ?", id).Error)
	assert.Equal(t, invoicedomain.StatusSent, before.Status)

	fake.Advance(2 * time.Hour)
	require.NoError(t, sched.RunOnce(context.Background()))
	var after invoicedomain.Invoice
	require.NoError(t, db.First(&after, "id = ?", id).Error)
	assert.Equal(t, invoicedomain.StatusOverdue, after.Status)
}
