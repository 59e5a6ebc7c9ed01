package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/layer-3/planmint/core"
	"github.com/layer-3/planmint/service"
	"github.com/sirupsen/logrus"
)

func init() {
	binding.EnableDecoderDisallowUnknownFields = true
}

// IssuanceAPI is the plan token surface of the issuance service
type IssuanceAPI interface {
	Issue(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error)
	Burn(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error)
	LogBurn(ctx context.Context, wallet, mint, txID string) error
	Reconcile(ctx context.Context, receipt string) (core.IssuanceResult, error)
}

type SoulboundAPI interface {
	TryClaim(ctx context.Context, req core.AuthorizedRequest) (core.IssuanceResult, error)
}

type HealthAPI interface {
	Check(ctx context.Context) (service.Health, error)
}

// Handlers contains HTTP handlers for the issuance endpoints
type Handlers struct {
	issuance  IssuanceAPI
	soulbound SoulboundAPI
	health    HealthAPI
	logger    logrus.FieldLogger
}

// NewHandlers creates new handlers
func NewHandlers(issuance IssuanceAPI, soulbound SoulboundAPI, health HealthAPI, logger logrus.FieldLogger) *Handlers {
	return &Handlers{
		issuance:  issuance,
		soulbound: soulbound,
		health:    health,
		logger:    logger,
	}
}

type mintRequest struct {
	UserPubkey string `json:"userPubkey" binding:"required"`
	Plan       string `json:"plan" binding:"required"`
	Message    string `json:"message" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
	Quantity   *int   `json:"quantity"`
}

type burnRequest struct {
	UserPubkey string `json:"userPubkey" binding:"required"`
	Plan       string `json:"plan" binding:"required"`
	Message    string `json:"message" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
}

type soulboundRequest struct {
	UserPubkey string `json:"userPubkey" binding:"required"`
	Message    string `json:"message" binding:"required"`
	Signature  string `json:"signature" binding:"required"`
}

type logBurnRequest struct {
	UserPubkey string `json:"userPubkey" binding:"required"`
	Mint       string `json:"mint" binding:"required"`
	TxID       string `json:"txid" binding:"required"`
}

type reconcileRequest struct {
	Receipt string `json:"receipt" binding:"required"`
}

// Root answers liveness checks
func (h *Handlers) Root(c *gin.Context) {
	c.String(http.StatusOK, "planmint is running")
}

// MintNFT handles POST /mint-nft
func (h *Handlers) MintNFT(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	res, err := h.issuance.Issue(c.Request.Context(), core.AuthorizedRequest{
		WalletAddress: req.UserPubkey,
		PlanID:        req.Plan,
		Quantity:      quantity,
		Message:       req.Message,
		Signature:     req.Signature,
	})
	if err != nil {
		failure(c, res)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"txid":    firstTx(res),
		"txids":   res.TransactionIDs,
		"mint":    res.MintAddress,
		"receipt": res.Receipt,
	})
}

// BurnNFT handles POST /burn-nft
func (h *Handlers) BurnNFT(c *gin.Context) {
	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	res, err := h.issuance.Burn(c.Request.Context(), core.AuthorizedRequest{
		WalletAddress: req.UserPubkey,
		PlanID:        req.Plan,
		Message:       req.Message,
		Signature:     req.Signature,
	})
	if err != nil {
		failure(c, res)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"txid":       firstTx(res),
		"needsClose": res.NeedsClose,
		"receipt":    res.Receipt,
	})
}

// MintSoulbound handles POST /mint-soulbound
func (h *Handlers) MintSoulbound(c *gin.Context) {
	var req soulboundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	res, err := h.soulbound.TryClaim(c.Request.Context(), core.AuthorizedRequest{
		WalletAddress: req.UserPubkey,
		Message:       req.Message,
		Signature:     req.Signature,
	})
	if err != nil {
		failure(c, res)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"txid":    firstTx(res),
		"mint":    res.MintAddress,
		"receipt": res.Receipt,
	})
}

// LogBurn records a burn the wallet performed itself
func (h *Handlers) LogBurn(c *gin.Context) {
	var req logBurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	if err := h.issuance.LogBurn(c.Request.Context(), req.UserPubkey, req.Mint, req.TxID); err != nil {
		failure(c, core.Failure(err, core.IssuanceResult{}))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Reconcile resolves a receipt from an earlier LEDGER_TIMEOUT
func (h *Handlers) Reconcile(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, err)
		return
	}

	res, err := h.issuance.Reconcile(c.Request.Context(), req.Receipt)
	if err != nil {
		failure(c, res)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"txid":       firstTx(res),
		"txids":      res.TransactionIDs,
		"mint":       res.MintAddress,
		"needsClose": res.NeedsClose,
	})
}

// Healthz reports the issuing authority and its balance
func (h *Handlers) Healthz(c *gin.Context) {
	health, err := h.health.Check(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "degraded",
			"authority": health.Authority,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"authority":  health.Authority,
		"balanceSol": health.BalanceSol,
	})
}

func (h *Handlers) invalid(c *gin.Context, err error) {
	h.logger.WithError(err).WithField("path", c.FullPath()).Debug("rejected request body")
	failure(c, core.IssuanceResult{Error: core.CodeInvalidRequest})
}

// failure writes the error body for res. Messages are generic; the code is
// what clients branch on.
func failure(c *gin.Context, res core.IssuanceResult) {
	code := res.Error
	if code == "" {
		code = core.CodeInternal
	}

	statusCode := http.StatusInternalServerError
	message := "Internal server error"

	switch code {
	case core.CodeInvalidRequest:
		statusCode = http.StatusBadRequest
		message = "Invalid request"
	case core.CodeUnauthorized:
		statusCode = http.StatusUnauthorized
		message = "Signature verification failed"
	case core.CodeExpired:
		statusCode = http.StatusUnauthorized
		message = "Signed message has expired"
	case core.CodeAlreadyClaimed:
		statusCode = http.StatusConflict
		message = "Soulbound token already claimed"
	case core.CodeNotEligible:
		statusCode = http.StatusForbidden
		message = "Wallet holds no data plan token"
	case core.CodeInsufficientBalance:
		statusCode = http.StatusConflict
		message = "No token available to burn"
	case core.CodeLedgerSubmissionFailed:
		statusCode = http.StatusBadGateway
		message = "Transaction was rejected"
	case core.CodeLedgerTimeout:
		statusCode = http.StatusGatewayTimeout
		message = "Transaction not finalized yet, reconcile with the receipt"
	}

	body := gin.H{
		"success": false,
		"error":   code,
		"message": message,
	}
	if res.Receipt != "" {
		body["receipt"] = res.Receipt
	}
	if len(res.TransactionIDs) > 0 {
		body["txid"] = res.TransactionIDs[0]
		body["txids"] = res.TransactionIDs
	}
	c.JSON(statusCode, body)
}

func firstTx(res core.IssuanceResult) string {
	if len(res.TransactionIDs) == 0 {
		return ""
	}
	return res.TransactionIDs[0]
}
