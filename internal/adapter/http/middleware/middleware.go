package middleware

import (
	"net/http"
	"strconv"
	"time"

	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Request headers set by the upstream gateway.
	HeaderUserID    = "userId"
	HeaderRequestID = "requestId"

	// Context keys
	CtxCustomerID = "customer_id"
	CtxRequestID  = "request_id"
)

// WalletContext extracts the customer identity from the userId header and
// stores it on the request context. Requests without a parseable userId are
// rejected. The requestId header, when present, is stored for idempotency
// and response correlation.
func WalletContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(HeaderUserID)
		if userID == "" {
			response.Error(c, apperror.Validation("userId header is required"))
			c.Abort()
			return
		}
		customerID, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			response.Error(c, apperror.Validation("userId header must be an integer"))
			c.Abort()
			return
		}
		c.Set(CtxCustomerID, customerID)

		if requestID := c.GetHeader(HeaderRequestID); requestID != "" {
			c.Set(CtxRequestID, requestID)
		}

		c.Next()
	}
}

// RequestLogger creates a structured request logging middleware.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
