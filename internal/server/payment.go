package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/docbill/internal/payment/domain"
)

type initializePaymentBody struct {
	Amount      decimal.Decimal `json:"amount"`
	CustomerRef string          `json:"customer_ref"`
}

func (s *Server) InitializePayment(c *gin.Context) {
	invoiceID, ok := s.invoiceID(c)
	if !ok {
		return
	}

	var body initializePaymentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	resp, err := s.paymentSvc.Initialize(c.Request.Context(), paymentdomain.InitializePaymentRequest{
		InvoiceID:   invoiceID,
		Amount:      body.Amount,
		CustomerRef: body.CustomerRef,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

type markPaidBody struct {
	Amount decimal.Decimal `json:"amount"`
	Method string          `json:"method"`
}

func (s *Server) MarkInvoicePaid(c *gin.Context) {
	invoiceID, ok := s.invoiceID(c)
	if !ok {
		return
	}

	var body markPaidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request body"))
		return
	}

	result, err := s.paymentSvc.MarkPaidManually(c.Request.Context(), invoiceID, body.Amount, body.Method)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// VerifyPayment is the redirect callback target: the customer lands here
// after checkout and reconciliation re-derives the result from the gateway.
func (s *Server) VerifyPayment(c *gin.Context) {
	reference := strings.TrimSpace(c.Query("reference"))
	if reference == "" {
		AbortWithError(c, newValidationError("reference", "invalid_reference", "reference is required"))
		return
	}

	result, err := s.paymentSvc.VerifyAndApply(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) GetPaymentByID(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return
	}

	item, err := s.paymentSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListPayments(c *gin.Context) {
	filter := paymentdomain.ListPaymentFilter{}

	if raw := strings.TrimSpace(c.Query("invoice_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("invoice_id", "invalid_id", "invalid invoice id"))
			return
		}
		filter.InvoiceID = &id
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := paymentdomain.PaymentStatus(raw)
		switch status {
		case paymentdomain.PaymentStatusPending, paymentdomain.PaymentStatusSuccess,
			paymentdomain.PaymentStatusFailed, paymentdomain.PaymentStatusRefunded:
		default:
			AbortWithError(c, newValidationError("status", "invalid_status", "invalid status"))
			return
		}
		filter.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("review_required")); raw != "" {
		review := raw == "true"
		filter.ReviewRequired = &review
	}

	payments, err := s.paymentSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payments})
}
