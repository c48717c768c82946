package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AuditLog creates a middleware that writes an audit line for every
// successful write operation. Routes are matched on their registered pattern.
func AuditLog(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		action, resourceType := mapPathToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		event := log.Info().
			Str("audit_action", action).
			Str("resource_type", resourceType).
			Str("resource_id", c.Param("id")).
			Int("status", c.Writer.Status()).
			Str("ip", c.ClientIP())
		if id, ok := UserID(c); ok {
			event = event.Str("user_id", id.String())
		}
		if client := c.GetString(CtxClientID); client != "" {
			event = event.Str("client_id", client)
		}
		event.Msg("audit")
	}
}

func mapPathToAction(path, method string) (string, string) {
	switch {
	case path == "/api/v1/trades" && method == http.MethodPost:
		return "trade.propose", "trade"
	case path == "/api/v1/trades/:id/respond" && method == http.MethodPost:
		return "trade.respond", "trade"
	case path == "/api/v1/trades/:id/cancel" && method == http.MethodPost:
		return "trade.cancel", "trade"
	case path == "/api/v1/vouchers" && method == http.MethodPost:
		return "voucher.list", "voucher"
	case path == "/api/v1/vouchers/:id/price" && method == http.MethodPatch:
		return "voucher.reprice", "voucher"
	case path == "/api/v1/vouchers/:id/activate" && method == http.MethodPost:
		return "voucher.activate", "voucher"
	case path == "/internal/v1/vouchers/:id/verify" && method == http.MethodPost:
		return "voucher.verify", "voucher"
	case path == "/api/v1/wishlist" && method == http.MethodPost:
		return "wishlist.add", "wishlist_item"
	case path == "/api/v1/wishlist/:id" && method == http.MethodPatch:
		return "wishlist.update", "wishlist_item"
	case path == "/api/v1/wishlist/:id" && method == http.MethodDelete:
		return "wishlist.remove", "wishlist_item"
	}
	return "", ""
}
