package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"market-service/internal/service"
	"market-service/internal/store"
	"market-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const userIDHeader = "X-User-ID"

// Handler contains HTTP handlers
type Handler struct {
	wallets    *service.WalletService
	checkout   *service.CheckoutService
	refunds    *service.RefundService
	coupons    *service.CouponService
	promotions *service.PromotionService
	store      *store.Store
	logger     *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	wallets *service.WalletService,
	checkout *service.CheckoutService,
	refunds *service.RefundService,
	coupons *service.CouponService,
	promotions *service.PromotionService,
	st *store.Store,
) *Handler {
	return &Handler{
		wallets:    wallets,
		checkout:   checkout,
		refunds:    refunds,
		coupons:    coupons,
		promotions: promotions,
		store:      st,
		logger:     util.NamedLogger("api"),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(requireUser())
	{
		v1.POST("/wallet", h.openWallet)
		v1.GET("/wallet", h.getWallet)
		v1.GET("/wallet/transactions", h.listTransactions)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)

		v1.POST("/checkout", h.checkoutCart)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/refund", h.refundOrder)

		v1.GET("/coupons", h.listCoupons)
		v1.POST("/coupons/validate", h.validateCoupon)

		v1.GET("/notifications", h.listNotifications)
		v1.POST("/notifications/:id/read", h.markNotificationRead)

		v1.GET("/achievement", h.getAchievement)
	}
}

// requireUser extracts the caller identity set by the authenticating proxy
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing " + userIDHeader + " header",
			})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString("userID")
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.store.GetDB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"time":   time.Now().Unix(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// openWallet creates the caller's wallet with the starting balance
func (h *Handler) openWallet(c *gin.Context) {
	wallet, err := h.wallets.Open(c.Request.Context(), currentUser(c))
	if err != nil {
		h.renderError(c, err, "Failed to open wallet")
		return
	}
	c.JSON(http.StatusCreated, wallet)
}

// getWallet returns the caller's wallet balance
func (h *Handler) getWallet(c *gin.Context) {
	balance, err := h.wallets.Balance(c.Request.Context(), currentUser(c))
	if err != nil {
		h.renderError(c, err, "Failed to load wallet")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id": currentUser(c),
		"balance": balance,
	})
}

// listTransactions returns a page of the caller's ledger history
func (h *Handler) listTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.wallets.Transactions(c.Request.Context(), currentUser(c), page, limit)
	if err != nil {
		h.renderError(c, err, "Failed to load transactions")
		return
	}
	c.JSON(http.StatusOK, result)
}

// listProducts returns the catalog
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.store.GetProducts(c.Request.Context())
	if err != nil {
		h.renderError(c, err, "Failed to load products")
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

// getProduct returns one catalog entry
func (h *Handler) getProduct(c *gin.Context) {
	product, err := h.store.GetProductByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err, "Failed to load product")
		return
	}
	c.JSON(http.StatusOK, product)
}

// checkoutCart settles the submitted cart
func (h *Handler) checkoutCart(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}
	req.UserID = currentUser(c)

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.checkout.Checkout(c.Request.Context(), &req)
	if err != nil {
		h.renderError(c, err, "Checkout failed")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// listOrders returns the caller's order history
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.checkout.ListOrders(c.Request.Context(), currentUser(c))
	if err != nil {
		h.renderError(c, err, "Failed to load orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// getOrder returns one of the caller's orders
func (h *Handler) getOrder(c *gin.Context) {
	order, err := h.checkout.GetOrder(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.renderError(c, err, "Failed to load order")
		return
	}
	c.JSON(http.StatusOK, order)
}

// refundOrder processes a refund for one of the caller's orders
func (h *Handler) refundOrder(c *gin.Context) {
	result, err := h.refunds.Process(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.renderError(c, err, "Refund failed")
		return
	}
	c.JSON(http.StatusOK, result)
}

// listCoupons returns the caller's coupons
func (h *Handler) listCoupons(c *gin.Context) {
	coupons, err := h.coupons.ListForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		h.renderError(c, err, "Failed to load coupons")
		return
	}
	c.JSON(http.StatusOK, gin.H{"coupons": coupons})
}

type validateCouponRequest struct {
	Code string `json:"code" binding:"required"`
}

// validateCoupon checks a coupon code without consuming it
func (h *Handler) validateCoupon(c *gin.Context) {
	var req validateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	coupon, err := h.coupons.Validate(c.Request.Context(), req.Code, currentUser(c))
	if err != nil {
		h.renderError(c, err, "Coupon validation failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  true,
		"coupon": coupon,
	})
}

// listNotifications returns the caller's notifications
func (h *Handler) listNotifications(c *gin.Context) {
	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.store.ListNotifications(c.Request.Context(), currentUser(c), unreadOnly)
	if err != nil {
		h.renderError(c, err, "Failed to load notifications")
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// markNotificationRead flags one notification as read
func (h *Handler) markNotificationRead(c *gin.Context) {
	if err := h.store.MarkNotificationRead(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		h.renderError(c, err, "Failed to update notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "read"})
}

// getAchievement reports whether the caller holds the balance achievement
func (h *Handler) getAchievement(c *gin.Context) {
	achievement, err := h.promotions.IsCompleted(c.Request.Context(), currentUser(c))
	if err != nil {
		h.renderError(c, err, "Failed to load achievement")
		return
	}
	if achievement == nil {
		c.JSON(http.StatusOK, gin.H{"completed": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"completed":   true,
		"achievement": achievement,
	})
}

// renderError maps domain errors onto HTTP statuses. Client-correctable
// failures carry their cause; anything unexpected becomes a generic 500
// with the cause logged server-side only.
func (h *Handler) renderError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrWalletNotFound),
		errors.Is(err, store.ErrProductNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrCouponNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicateWallet),
		errors.Is(err, service.ErrDuplicateRequest):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInsufficientFunds),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrCouponAlreadyUsed),
		errors.Is(err, service.ErrEmptyCart),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrCouponNotOwned),
		errors.Is(err, service.ErrCouponExpired),
		errors.Is(err, service.ErrNotRefundable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Please retry shortly"})
	default:
		h.logger.Error(fallback,
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
