package handler

import (
	"voucher-trade-engine/internal/adapter/http/dto"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/pkg/apperror"
	"voucher-trade-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WishlistHandler handles wishlist and wishlist match endpoints.
type WishlistHandler struct {
	wishlists ports.WishlistService
	matcher   ports.WishlistMatcher
}

// NewWishlistHandler creates a new WishlistHandler.
func NewWishlistHandler(wishlists ports.WishlistService, matcher ports.WishlistMatcher) *WishlistHandler {
	return &WishlistHandler{wishlists: wishlists, matcher: matcher}
}

// List handles GET /api/v1/wishlist.
func (h *WishlistHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	items, err := h.wishlists.ListItems(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWishlistList(items))
}

// Create handles POST /api/v1/wishlist.
func (h *WishlistHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.CreateWishlistItemRequest
	if !bindJSON(c, &req) {
		return
	}
	dto.SanitizeStruct(&req)

	item := ports.CreateWishlistItemRequest{
		UserID:    userID,
		BrandName: req.BrandName,
		Category:  req.Category,
		Notify:    req.Notify == nil || *req.Notify,
	}
	if req.MaxPrice != nil {
		maxPrice, err := dto.ToMinorUnits(*req.MaxPrice)
		if err != nil {
			response.Error(c, apperror.Validation("max_price: "+err.Error()))
			return
		}
		item.MaxPrice = &maxPrice
	}

	created, err := h.wishlists.AddItem(c.Request.Context(), item)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewWishlistItemResponse(created))
}

// Update handles PATCH /api/v1/wishlist/:id.
func (h *WishlistHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.UpdateWishlistItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := h.wishlists.SetNotify(c.Request.Context(), id, userID, *req.Notify)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWishlistItemResponse(item))
}

// Delete handles DELETE /api/v1/wishlist/:id.
func (h *WishlistHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.wishlists.RemoveItem(c.Request.Context(), id, userID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Matches handles GET /api/v1/wishlist-matches?user_id=. Users may only
// read their own matches; user_id defaults to the caller.
func (h *WishlistHandler) Matches(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if q := c.Query("user_id"); q != "" {
		requested, err := uuid.Parse(q)
		if err != nil {
			response.Error(c, apperror.Validation("user_id must be a UUID"))
			return
		}
		if requested != userID {
			response.Error(c, apperror.ErrForbidden())
			return
		}
	}

	matches, err := h.matcher.ListMatches(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewMatchList(matches))
}
