package handler

import (
	"voucher-trade-engine/internal/adapter/http/middleware"
	"voucher-trade-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Inventory      ports.InventoryService
	Trades         ports.TradeService
	Wishlists      ports.WishlistService
	Matcher        ports.WishlistMatcher
	Signer         ports.Signer
	NonceStore     ports.NonceStore
	TokenSvc       ports.TokenService
	VerifierSecret string
	RateLimiter    ports.RateLimiter // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	r.Use(middleware.AuditLog(deps.Logger))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	voucherHandler := NewVoucherHandler(deps.Inventory)
	tradeHandler := NewTradeHandler(deps.Trades)
	wishlistHandler := NewWishlistHandler(deps.Wishlists, deps.Matcher)

	// --- User routes (JWT) ---
	v1 := r.Group("/api/v1", middleware.JWTAuth(deps.TokenSvc, deps.Logger))

	vouchers := v1.Group("/vouchers")
	{
		vouchers.GET("", rl("read"), voucherHandler.List)
		vouchers.GET("/expiring", rl("read"), voucherHandler.Expiring)
		vouchers.GET("/:id", rl("read"), voucherHandler.Get)
		vouchers.POST("", rl("vouchers_write"), voucherHandler.Create)
		vouchers.PATCH("/:id/price", rl("vouchers_write"), voucherHandler.UpdatePrice)
		vouchers.POST("/:id/activate", rl("vouchers_write"), voucherHandler.Activate)
	}

	trades := v1.Group("/trades")
	{
		trades.POST("", rl("trades_write"), tradeHandler.Propose)
		trades.GET("", rl("read"), tradeHandler.List)
		trades.GET("/:id", rl("read"), tradeHandler.Get)
		trades.POST("/:id/respond", rl("trades_write"), tradeHandler.Respond)
		trades.POST("/:id/cancel", rl("trades_write"), tradeHandler.Cancel)
	}

	wishlist := v1.Group("/wishlist")
	{
		wishlist.GET("", rl("read"), wishlistHandler.List)
		wishlist.POST("", rl("wishlist_write"), wishlistHandler.Create)
		wishlist.PATCH("/:id", rl("wishlist_write"), wishlistHandler.Update)
		wishlist.DELETE("/:id", rl("wishlist_write"), wishlistHandler.Delete)
	}
	v1.GET("/wishlist-matches", rl("read"), wishlistHandler.Matches)

	// --- Internal routes (HMAC-signed, verification collaborator) ---
	internal := r.Group("/internal/v1",
		middleware.ServiceAuth(deps.VerifierSecret, deps.Signer, deps.NonceStore, deps.Logger))
	{
		internal.POST("/vouchers/:id/verify", rl("internal"), voucherHandler.Verify)
	}

	return r
}
