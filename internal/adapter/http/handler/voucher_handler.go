package handler

import (
	"time"

	"voucher-trade-engine/internal/adapter/http/dto"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/pkg/apperror"
	"voucher-trade-engine/pkg/response"

	"github.com/gin-gonic/gin"
)

// VoucherHandler handles voucher listing endpoints.
type VoucherHandler struct {
	inventory ports.InventoryService
	now       func() time.Time
}

// NewVoucherHandler creates a new VoucherHandler.
func NewVoucherHandler(inventory ports.InventoryService) *VoucherHandler {
	return &VoucherHandler{inventory: inventory, now: time.Now}
}

// List handles GET /api/v1/vouchers?category=.
func (h *VoucherHandler) List(c *gin.Context) {
	category := c.Query("category")
	if category == "" {
		response.Error(c, apperror.Validation("category is required"))
		return
	}

	vouchers, err := h.inventory.ListActiveByCategory(c.Request.Context(), category)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewVoucherList(vouchers))
}

// Expiring handles GET /api/v1/vouchers/expiring?from=&to=. Both dates are
// inclusive; the default window runs from today to the end of this month.
func (h *VoucherHandler) Expiring(c *gin.Context) {
	today := h.now().UTC().Truncate(24 * time.Hour)
	from := today
	to := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, time.UTC)

	if raw := c.Query("from"); raw != "" {
		d, err := time.ParseInLocation(dto.DateLayout, raw, time.UTC)
		if err != nil {
			response.Error(c, apperror.Validation("from must be YYYY-MM-DD"))
			return
		}
		from = d
	}
	if raw := c.Query("to"); raw != "" {
		d, err := time.ParseInLocation(dto.DateLayout, raw, time.UTC)
		if err != nil {
			response.Error(c, apperror.Validation("to must be YYYY-MM-DD"))
			return
		}
		to = d.AddDate(0, 0, 1)
	}

	insights, err := h.inventory.ExpiryInsights(c.Request.Context(), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewExpiryInsightsResponse(insights))
}

// Get handles GET /api/v1/vouchers/:id. Each read counts as a view.
func (h *VoucherHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	v, err := h.inventory.ViewVoucher(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewVoucherResponse(v))
}

// Create handles POST /api/v1/vouchers.
func (h *VoucherHandler) Create(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateVoucherRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	original, err := dto.ToMinorUnits(*req.OriginalValue)
	if err != nil {
		response.Error(c, apperror.Validation("original_value: "+err.Error()))
		return
	}
	price, err := dto.ToMinorUnits(*req.SellingPrice)
	if err != nil {
		response.Error(c, apperror.Validation("selling_price: "+err.Error()))
		return
	}
	expiry, err := dto.ParseExpiryDate(req.ExpiryDate)
	if err != nil {
		response.Error(c, apperror.Validation("expiry_date must be YYYY-MM-DD"))
		return
	}

	v, err := h.inventory.CreateListing(c.Request.Context(), ports.CreateVoucherRequest{
		SellerID:      sellerID,
		BrandName:     req.BrandName,
		Category:      req.Category,
		OriginalValue: original,
		SellingPrice:  price,
		ExpiryDate:    expiry,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewVoucherResponse(v))
}

// UpdatePrice handles PATCH /api/v1/vouchers/:id/price.
func (h *VoucherHandler) UpdatePrice(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdatePriceRequest
	if !bindJSON(c, &req) {
		return
	}
	price, err := dto.ToMinorUnits(*req.SellingPrice)
	if err != nil {
		response.Error(c, apperror.Validation("selling_price: "+err.Error()))
		return
	}

	v, err := h.inventory.UpdatePrice(c.Request.Context(), id, sellerID, price)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewVoucherResponse(v))
}

// Activate handles POST /api/v1/vouchers/:id/activate.
func (h *VoucherHandler) Activate(c *gin.Context) {
	sellerID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	v, err := h.inventory.Activate(c.Request.Context(), id, sellerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewVoucherResponse(v))
}

// Verify handles POST /internal/v1/vouchers/:id/verify, called by the
// verification collaborator once a voucher code has been checked.
func (h *VoucherHandler) Verify(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	v, err := h.inventory.MarkVerified(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewVoucherResponse(v))
}
