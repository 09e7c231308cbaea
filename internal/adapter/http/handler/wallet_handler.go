package handler

import (
	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/adapter/http/middleware"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet balance endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	customerID, requestID, ok := mutationContext(c)
	if !ok {
		return
	}

	var req dto.MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	wallet, err := h.walletSvc.Deposit(c.Request.Context(), customerID, req.Amount, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToWalletResponse(wallet))
}

// Withdraw handles POST /api/v1/wallet/withdraw.
func (h *WalletHandler) Withdraw(c *gin.Context) {
	customerID, requestID, ok := mutationContext(c)
	if !ok {
		return
	}

	var req dto.MutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	wallet, err := h.walletSvc.Withdraw(c.Request.Context(), customerID, req.Amount, requestID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToWalletResponse(wallet))
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	customerID, ok := customerFromContext(c)
	if !ok {
		return
	}

	wallet, err := h.walletSvc.GetWallet(c.Request.Context(), customerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToWalletResponse(wallet))
}

func customerFromContext(c *gin.Context) (int64, bool) {
	v, exists := c.Get(middleware.CtxCustomerID)
	if !exists {
		response.Error(c, apperror.Validation("userId header is required"))
		return 0, false
	}
	return v.(int64), true
}

// mutationContext resolves the customer and the mandatory idempotency key
// for balance mutations.
func mutationContext(c *gin.Context) (int64, string, bool) {
	customerID, ok := customerFromContext(c)
	if !ok {
		return 0, "", false
	}
	v, exists := c.Get(middleware.CtxRequestID)
	if !exists {
		response.Error(c, apperror.Validation("requestId header is required"))
		return 0, "", false
	}
	return customerID, v.(string), true
}
