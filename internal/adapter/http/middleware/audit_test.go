package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestAuditLog_TradeRespond(t *testing.T) {
	var buf bytes.Buffer
	userID := uuid.New()
	tradeID := uuid.New()

	r := gin.New()
	r.Use(AuditLog(zerolog.New(&buf)))
	r.POST("/api/v1/trades/:id/respond", func(c *gin.Context) {
		c.Set(CtxUserID, userID)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/trades/"+tradeID.String()+"/respond", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, buf.String(), `"audit_action":"trade.respond"`)
	assert.Contains(t, buf.String(), `"resource_id":"`+tradeID.String()+`"`)
	assert.Contains(t, buf.String(), `"user_id":"`+userID.String()+`"`)
}

func TestAuditLog_SkipsGET(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(AuditLog(zerolog.New(&buf)))
	r.GET("/api/v1/trades", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/trades", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, buf.String())
}

func TestAuditLog_SkipsFailedRequests(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(AuditLog(zerolog.New(&buf)))
	r.POST("/api/v1/trades", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"error_code": "TRD_005"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/trades", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, buf.String())
}

func TestMapPathToAction(t *testing.T) {
	tests := []struct {
		path     string
		method   string
		action   string
		resource string
	}{
		{"/api/v1/trades", "POST", "trade.propose", "trade"},
		{"/api/v1/trades/:id/respond", "POST", "trade.respond", "trade"},
		{"/api/v1/trades/:id/cancel", "POST", "trade.cancel", "trade"},
		{"/api/v1/vouchers", "POST", "voucher.list", "voucher"},
		{"/api/v1/vouchers/:id/price", "PATCH", "voucher.reprice", "voucher"},
		{"/api/v1/vouchers/:id/activate", "POST", "voucher.activate", "voucher"},
		{"/internal/v1/vouchers/:id/verify", "POST", "voucher.verify", "voucher"},
		{"/api/v1/wishlist", "POST", "wishlist.add", "wishlist_item"},
		{"/api/v1/wishlist/:id", "PATCH", "wishlist.update", "wishlist_item"},
		{"/api/v1/wishlist/:id", "DELETE", "wishlist.remove", "wishlist_item"},
		{"/unknown", "POST", "", ""},
	}

	for _, tc := range tests {
		action, resource := mapPathToAction(tc.path, tc.method)
		assert.Equal(t, tc.action, action, "path=%s method=%s", tc.path, tc.method)
		assert.Equal(t, tc.resource, resource, "path=%s method=%s", tc.path, tc.method)
	}
}
