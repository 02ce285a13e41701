package http

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/investment-billing/internal/application/port"
	"github.com/garyjia/investment-billing/internal/application/service"
	"github.com/garyjia/investment-billing/internal/domain/entity"
	"github.com/garyjia/investment-billing/internal/domain/workflow"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger *zap.Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
}

// ListBillsRequest represents query parameters for listing bills
type ListBillsRequest struct {
	Type   string `form:"type"`
	Year   int    `form:"year"`
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// QuoteRequest is the body of a fee quote
type QuoteRequest struct {
	Type           string           `json:"type" binding:"required"`
	InvestmentID   int64            `json:"investment_id"`
	InvestorID     int64            `json:"investor_id"`
	Amount         decimal.Decimal  `json:"amount"`
	FeesPercentage *decimal.Decimal `json:"fees_percentage,omitempty"`
	Year           int              `json:"year"`
}

// QuoteResponse is a quoted fee
type QuoteResponse struct {
	Type   string          `json:"type"`
	Year   int             `json:"year,omitempty"`
	Amount decimal.Decimal `json:"amount"`
	Fees   decimal.Decimal `json:"fees"`
	Rate   decimal.Decimal `json:"rate"`
}

// CreateCashCallRequest is the body of a cash call request
type CreateCashCallRequest struct {
	BillID       int64    `json:"bill_id" binding:"required"`
	CCEmails     []string `json:"cc_emails"`
	InvestorName *string  `json:"investor_name"`
}

// CreateCashCallResponse reports what a cash call request did
type CreateCashCallResponse struct {
	Status   service.CreateStatus `json:"status"`
	Bill     *entity.Bill         `json:"bill"`
	CashCall *entity.CashCall     `json:"cashcall,omitempty"`
}

// ManagementFeesRequest starts a management fee run
type ManagementFeesRequest struct {
	Year    int  `json:"year" binding:"required"`
	Publish bool `json:"publish"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK

	if h.services.Health != nil {
		response.Components = make(map[string]string)
		for name, err := range h.services.Health(c.Request.Context()) {
			if err != nil {
				response.Components[name] = err.Error()
				response.Status = "unhealthy"
				code = http.StatusServiceUnavailable
				continue
			}
			response.Components[name] = "ok"
		}
	}

	c.JSON(code, Response{
		Success: code == http.StatusOK,
		Data:    response,
	})
}

// ListBills handles GET /api/v1/bills
func (h *Handlers) ListBills(c *gin.Context) {
	filter, ok := h.billFilter(c)
	if !ok {
		return
	}

	summaries, err := h.services.Bills.List(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to list bills", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    summaries,
	})
}

// ExportBills handles GET /api/v1/bills/export
func (h *Handlers) ExportBills(c *gin.Context) {
	filter, ok := h.billFilter(c)
	if !ok {
		return
	}
	filter.Limit = 0
	filter.Offset = 0

	doc, err := h.services.Bills.Export(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, "Failed to export bills", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Name))
	c.Data(http.StatusOK, doc.ContentType, doc.Content)
}

// GetBill handles GET /api/v1/bills/:id
func (h *Handlers) GetBill(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	summary, err := h.services.Bills.Summary(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get bill", err, zap.Int64("bill_id", id))
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    summary,
	})
}

// DownloadBillFile handles GET /api/v1/bills/:id/file
func (h *Handlers) DownloadBillFile(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	bill, err := h.services.Bills.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get bill", err, zap.Int64("bill_id", id))
		return
	}
	if bill.File == "" || h.services.Storage == nil || !h.services.Storage.Exists(c.Request.Context(), bill.File) {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   service.ErrNoDocument.Error(),
		})
		return
	}

	c.FileAttachment(h.services.Storage.GetFullPath(bill.File), path.Base(bill.File))
}

// QuoteFees handles POST /api/v1/fees/quote
func (h *Handlers) QuoteFees(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	billType := entity.BillType(req.Type)
	if !billType.IsValid() {
		h.badRequest(c, fmt.Sprintf("invalid bill type %q", req.Type))
		return
	}

	result, err := h.services.Bills.Quote(c.Request.Context(), service.QuoteRequest{
		Type:           billType,
		InvestmentID:   req.InvestmentID,
		InvestorID:     req.InvestorID,
		Amount:         req.Amount,
		FeesPercentage: req.FeesPercentage,
		Year:           req.Year,
	})
	if err != nil {
		h.fail(c, "Failed to quote fees", err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: QuoteResponse{
			Type:   req.Type,
			Year:   req.Year,
			Amount: req.Amount,
			Fees:   result.Amount,
			Rate:   result.Rate,
		},
	})
}

// GenerateManagementFees handles POST /api/v1/management-fees
func (h *Handlers) GenerateManagementFees(c *gin.Context) {
	var req ManagementFeesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	report, err := h.services.Management.Generate(c.Request.Context(), req.Year, req.Publish)
	if err != nil {
		h.fail(c, "Failed to generate management fees", err, zap.Int("year", req.Year))
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    report,
	})
}

// CreateCashCall handles POST /api/v1/cashcalls
func (h *Handlers) CreateCashCall(c *gin.Context) {
	var req CreateCashCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	result, err := h.services.CashCalls.Create(c.Request.Context(), service.CreateRequest{
		BillID:       req.BillID,
		CCEmails:     req.CCEmails,
		InvestorName: req.InvestorName,
	})
	if err != nil {
		h.fail(c, "Failed to create cash call", err, zap.Int64("bill_id", req.BillID))
		return
	}

	code := http.StatusOK
	if result.Status == service.CreateStatusCreated {
		code = http.StatusCreated
	}
	c.JSON(code, Response{
		Success: true,
		Data: CreateCashCallResponse{
			Status:   result.Status,
			Bill:     result.Bill,
			CashCall: result.CashCall,
		},
	})
}

// GetCashCall handles GET /api/v1/cashcalls/:id
func (h *Handlers) GetCashCall(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	cc, err := h.services.CashCalls.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get cash call", err, zap.Int64("cashcall_id", id))
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    cc,
	})
}

// ValidateCashCall handles GET /api/v1/cashcalls/:id/validation
func (h *Handlers) ValidateCashCall(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	cc, err := h.services.CashCalls.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Failed to get cash call", err, zap.Int64("cashcall_id", id))
		return
	}

	validation, err := h.services.CashCalls.CanPublishPayIn(c.Request.Context(), cc)
	if err != nil {
		h.fail(c, "Failed to validate cash call", err, zap.Int64("cashcall_id", id))
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    validation,
	})
}

// SendCashCall handles POST /api/v1/cashcalls/:id/send.
// Emailing is on unless ?send_email=false.
func (h *Handlers) SendCashCall(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	sendEmail := true
	if raw := c.Query("send_email"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			h.badRequest(c, "invalid send_email flag")
			return
		}
		sendEmail = v
	}

	result, err := h.services.CashCalls.Send(c.Request.Context(), id, sendEmail)
	if err != nil {
		h.fail(c, "Failed to send cash call", err, zap.Int64("cashcall_id", id))
		return
	}

	code := http.StatusOK
	switch result.Status {
	case service.SendStatusRejected:
		code = http.StatusUnprocessableEntity
	case service.SendStatusFailed:
		code = http.StatusBadGateway
	}
	c.JSON(code, Response{
		Success: code == http.StatusOK,
		Data:    result,
		Error:   errorMessage(code, result.Message),
	})
}

func errorMessage(code int, msg string) string {
	if code == http.StatusOK {
		return ""
	}
	return msg
}

func (h *Handlers) billFilter(c *gin.Context) (port.BillFilter, bool) {
	var req ListBillsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return port.BillFilter{}, false
	}

	filter := port.BillFilter{
		Type:   entity.BillType(req.Type),
		Year:   req.Year,
		Status: workflow.State(req.Status),
		Limit:  req.Limit,
		Offset: req.Offset,
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		h.badRequest(c, fmt.Sprintf("invalid bill type %q", req.Type))
		return port.BillFilter{}, false
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		h.badRequest(c, fmt.Sprintf("invalid status %q", req.Status))
		return port.BillFilter{}, false
	}

	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return filter, true
}

func (h *Handlers) pathID(c *gin.Context) (int64, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c, fmt.Sprintf("invalid id %q", raw))
		return 0, false
	}
	return id, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   msg,
	})
}

// fail maps service errors to status codes. Internal errors are logged, not echoed.
func (h *Handlers) fail(c *gin.Context, msg string, err error, fields ...zap.Field) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.logger.Error(msg, append(fields, zap.Error(err))...)
		c.JSON(code, Response{
			Success: false,
			Error:   "internal error",
		})
		return
	}

	c.JSON(code, Response{
		Success: false,
		Error:   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrBillNotFound),
		errors.Is(err, service.ErrCashCallNotFound),
		errors.Is(err, service.ErrInvestmentNotFound),
		errors.Is(err, service.ErrInvestorNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalidBillType),
		errors.Is(err, entity.ErrInvalidYear):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrForbiddenUpdate),
		errors.Is(err, workflow.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrNoOwner),
		errors.Is(err, service.ErrNoWallet),
		errors.Is(err, service.ErrNoWireReference),
		errors.Is(err, service.ErrNoDocument):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
