package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/docbill/internal/audit"
	auditdomain "github.com/smallbiznis/docbill/internal/audit/domain"
	"github.com/smallbiznis/docbill/internal/clock"
	"github.com/smallbiznis/docbill/internal/config"
	"github.com/smallbiznis/docbill/internal/invoice"
	invoicedomain "github.com/smallbiznis/docbill/internal/invoice/domain"
	"github.com/smallbiznis/docbill/internal/migration"
	"github.com/smallbiznis/docbill/internal/payment"
	paymentdomain "github.com/smallbiznis/docbill/internal/payment/domain"
	"github.com/smallbiznis/docbill/internal/reporting"
	reportingdomain "github.com/smallbiznis/docbill/internal/reporting/domain"
	"github.com/smallbiznis/docbill/internal/scheduler"
	"github.com/smallbiznis/docbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	db.Module,
	clock.Module,
	migration.Module,
	audit.Module,
	invoice.Module,
	payment.Module,
	reporting.Module,
	scheduler.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(MetricsMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log, NewHTTPMetrics())
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine       *gin.Engine
	cfg          config.Config
	genID        *snowflake.Node
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	webhookSvc   paymentdomain.WebhookService
	reportingSvc reportingdomain.Service
	auditSvc     auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	GenID        *snowflake.Node
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	WebhookSvc   paymentdomain.WebhookService
	ReportingSvc reportingdomain.Service
	AuditSvc     auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		genID:        p.GenID,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		webhookSvc:   p.WebhookSvc,
		reportingSvc: p.ReportingSvc,
		auditSvc:     p.AuditSvc,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(CompanyContext())

	v1.POST("/invoices", s.CreateInvoice)
	v1.GET("/invoices", s.ListInvoices)
	v1.GET("/invoices/:id", s.GetInvoiceByID)
	v1.PATCH("/invoices/:id", s.UpdateInvoice)
	v1.POST("/invoices/:id/activate", s.ActivateInvoice)
	v1.POST("/invoices/:id/send", s.MarkInvoiceSent)
	v1.POST("/invoices/:id/cancel", s.CancelInvoice)
	v1.POST("/invoices/:id/mark-paid", s.MarkInvoicePaid)
	v1.POST("/invoices/:id/payments", s.InitializePayment)

	v1.GET("/payments", s.ListPayments)
	v1.GET("/payments/verify", s.VerifyPayment)
	v1.GET("/payments/:id", s.GetPaymentByID)

	v1.GET("/reports/summary", s.ReportSummary)
	v1.GET("/reports/overdue", s.ReportOverdue)

	v1.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerWebhookRoutes() {
	// Webhooks authenticate by signature, not by company header.
	s.engine.POST("/v1/webhooks/payments/:provider", s.PaymentWebhook)
}
