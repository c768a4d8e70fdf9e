package main

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/graphbank/backoffice/internal/config"
	"github.com/graphbank/backoffice/internal/logging"
)

func main() {
	cfg := config.LoadGateway()
	log := logging.New("api-gateway")

	router := gin.New()
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "api-gateway"})
	})

	userProxy := proxyTo(cfg.UserServiceURL, "user-service", log)
	txProxy := proxyTo(cfg.TransactionServiceURL, "transaction-service", log)

	// User routes
	router.GET("/v1/users", userProxy)
	router.POST("/v1/users", userProxy)
	router.GET("/v1/users/email/:email", userProxy)
	router.GET("/v1/users/:userId", userProxy)
	router.PATCH("/v1/users/:userId", userProxy)
	router.DELETE("/v1/users/:userId", userProxy)

	// Transaction routes
	router.GET("/v1/transactions", txProxy)
	router.POST("/v1/transactions", txProxy)
	router.GET("/v1/transactions/stale", txProxy)
	router.GET("/v1/transactions/reference/:reference", txProxy)
	router.GET("/v1/transactions/:id", txProxy)
	router.PATCH("/v1/transactions/:id/status", txProxy)
	router.POST("/v1/transactions/:id/complete", txProxy)
	router.POST("/v1/transactions/:id/fail", txProxy)
	router.POST("/v1/transactions/:id/cancel", txProxy)
	router.DELETE("/v1/transactions/:id", txProxy)
	router.POST("/v1/transfers", txProxy)
	router.GET("/v1/users/:userId/transactions", txProxy)
	router.GET("/v1/users/:userId/transactions/summary", txProxy)
	router.GET("/v1/users/:userId/transactions/count", txProxy)
	router.GET("/v1/accounts/:accountId/transactions", txProxy)
	router.GET("/v1/accounts/:accountId/transactions/totals", txProxy)
	router.POST("/v1/settlements/run", txProxy)

	log.WithService().Infof("API Gateway starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// proxyTo forwards the request to serviceURL. When the downstream is
// unreachable the gateway answers a degraded 503 payload instead of an
// opaque error.
func proxyTo(serviceURL, serviceName string, log *logging.Logger) gin.HandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}
	return func(c *gin.Context) {
		targetURL := serviceURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			targetURL += "?" + c.Request.URL.RawQuery
		}

		var bodyBytes []byte
		if c.Request.Body != nil {
			bodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, bytes.NewBuffer(bodyBytes))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create request"})
			return
		}
		for key, values := range c.Request.Header {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			log.WithService().WithField("target", serviceName).Warnf("Downstream unreachable: %v", err)
			respondDegraded(c, serviceName)
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to read response"})
			return
		}
		for key, values := range resp.Header {
			for _, value := range values {
				c.Header(key, value)
			}
		}
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}
}

// respondDegraded mirrors the degraded shape clients already rely on when a
// backing service is down.
func respondDegraded(c *gin.Context, serviceName string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error":     serviceName + " is currently unavailable",
		"message":   "Please try again later",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   serviceName,
	})
}
