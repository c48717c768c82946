package handler

import (
	"voucher-trade-engine/internal/adapter/http/dto"
	"voucher-trade-engine/internal/core/domain"
	"voucher-trade-engine/internal/core/ports"
	"voucher-trade-engine/pkg/apperror"
	"voucher-trade-engine/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TradeHandler handles trade endpoints.
type TradeHandler struct {
	trades ports.TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(trades ports.TradeService) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// Propose handles POST /api/v1/trades. The caller is the initiator.
func (h *TradeHandler) Propose(c *gin.Context) {
	initiatorID, ok := currentUser(c)
	if !ok {
		return
	}

	var req dto.ProposeTradeRequest
	if !bindJSON(c, &req) {
		return
	}

	// Binding has already checked the UUID format.
	proposal := ports.ProposeTradeRequest{
		InitiatorID:        initiatorID,
		RecipientID:        uuid.MustParse(req.RecipientID),
		InitiatorVoucherID: uuid.MustParse(req.InitiatorVoucherID),
	}
	if req.RecipientVoucherID != nil {
		id := uuid.MustParse(*req.RecipientVoucherID)
		proposal.RecipientVoucherID = &id
	}

	trade, err := h.trades.ProposeTrade(c.Request.Context(), proposal)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.NewTradeResponse(trade))
}

// List handles GET /api/v1/trades?status=.
func (h *TradeHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var status *domain.TradeStatus
	if s := c.Query("status"); s != "" {
		st := domain.TradeStatus(s)
		if !st.IsValid() {
			response.Error(c, apperror.Validation("unknown trade status"))
			return
		}
		status = &st
	}

	trades, err := h.trades.ListTrades(c.Request.Context(), userID, status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTradeList(trades))
}

// Get handles GET /api/v1/trades/:id.
func (h *TradeHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	trade, err := h.trades.GetTrade(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTradeResponse(trade))
}

// Respond handles POST /api/v1/trades/:id/respond.
// An accept that loses its vouchers still answers 200 with the cancelled trade.
func (h *TradeHandler) Respond(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req dto.RespondTradeRequest
	if !bindJSON(c, &req) {
		return
	}

	trade, err := h.trades.RespondToTrade(c.Request.Context(), id, userID, *req.Accept)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTradeResponse(trade))
}

// Cancel handles POST /api/v1/trades/:id/cancel.
func (h *TradeHandler) Cancel(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	trade, err := h.trades.CancelTrade(c.Request.Context(), id, userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewTradeResponse(trade))
}
