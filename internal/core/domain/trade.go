package domain

import (
	"time"

	"github.com/google/uuid"
)

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusAccepted  TradeStatus = "accepted"
	TradeStatusRejected  TradeStatus = "rejected"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusCompleted TradeStatus = "completed"
)

// CancelReason records why a trade ended in cancelled.
type CancelReason string

const (
	CancelReasonByInitiator              CancelReason = "CANCELLED_BY_INITIATOR"
	CancelReasonByRecipient              CancelReason = "CANCELLED_BY_RECIPIENT"
	CancelReasonVoucherNoLongerAvailable CancelReason = "VOUCHER_NO_LONGER_AVAILABLE"
)

var tradeTransitions = map[TradeStatus][]TradeStatus{
	TradeStatusPending:  {TradeStatusAccepted, TradeStatusRejected, TradeStatusCancelled},
	TradeStatusAccepted: {TradeStatusCompleted, TradeStatusCancelled},
}

// IsValid reports whether s is a known trade status.
func (s TradeStatus) IsValid() bool {
	switch s {
	case TradeStatusPending, TradeStatusAccepted, TradeStatusRejected,
		TradeStatusCancelled, TradeStatusCompleted:
		return true
	}
	return false
}

// IsOpen returns true while the trade holds a claim on its vouchers.
func (s TradeStatus) IsOpen() bool {
	return s == TradeStatusPending || s == TradeStatusAccepted
}

// IsTerminal returns true for rejected, cancelled and completed.
func (s TradeStatus) IsTerminal() bool {
	return s == TradeStatusRejected || s == TradeStatusCancelled || s == TradeStatusCompleted
}

// CanTransitionTo reports whether next is a legal step from s.
func (s TradeStatus) CanTransitionTo(next TradeStatus) bool {
	for _, allowed := range tradeTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Trade is a proposed or executed exchange of vouchers between two users.
// Rows are archival: terminal trades are never deleted.
type Trade struct {
	ID                 uuid.UUID     `json:"id"`
	InitiatorID        uuid.UUID     `json:"initiator_id"`
	RecipientID        uuid.UUID     `json:"recipient_id"`
	InitiatorVoucherID uuid.UUID     `json:"initiator_voucher_id"`
	RecipientVoucherID *uuid.UUID    `json:"recipient_voucher_id,omitempty"`
	Status             TradeStatus   `json:"status"`
	MatchScore         int           `json:"match_score"`
	CancelReason       *CancelReason `json:"cancel_reason,omitempty"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
	CompletedAt        *time.Time    `json:"completed_at,omitempty"`
}

// VoucherIDs returns every voucher the trade references, initiator's first.
func (t *Trade) VoucherIDs() []uuid.UUID {
	ids := []uuid.UUID{t.InitiatorVoucherID}
	if t.RecipientVoucherID != nil {
		ids = append(ids, *t.RecipientVoucherID)
	}
	return ids
}

// References returns true if voucherID is one of the trade's vouchers.
func (t *Trade) References(voucherID uuid.UUID) bool {
	if t.InitiatorVoucherID == voucherID {
		return true
	}
	return t.RecipientVoucherID != nil && *t.RecipientVoucherID == voucherID
}

// IsParty returns true if userID is the initiator or the recipient.
func (t *Trade) IsParty(userID uuid.UUID) bool {
	return t.InitiatorID == userID || t.RecipientID == userID
}

// Counterparty returns the other side of the trade from userID's view.
func (t *Trade) Counterparty(userID uuid.UUID) uuid.UUID {
	if userID == t.InitiatorID {
		return t.RecipientID
	}
	return t.InitiatorID
}

// TradeTransition is a compare-and-set request on a trade's status.
type TradeTransition struct {
	TradeID     uuid.UUID
	From        TradeStatus
	To          TradeStatus
	Reason      *CancelReason
	At          time.Time
	CompletedAt *time.Time
}

// Apply copies the transition onto t.
func (tr TradeTransition) Apply(t *Trade) {
	t.Status = tr.To
	t.UpdatedAt = tr.At
	if tr.Reason != nil {
		reason := *tr.Reason
		t.CancelReason = &reason
	}
	if tr.CompletedAt != nil {
		completed := *tr.CompletedAt
		t.CompletedAt = &completed
	}
}

// NotifyTargets returns the users to tell about the trade's current status:
// the side that did not cause it, or both when the engine cancelled it.
func (t *Trade) NotifyTargets() []uuid.UUID {
	switch t.Status {
	case TradeStatusPending:
		return []uuid.UUID{t.RecipientID}
	case TradeStatusAccepted, TradeStatusRejected:
		return []uuid.UUID{t.InitiatorID}
	case TradeStatusCancelled:
		if t.CancelReason != nil {
			switch *t.CancelReason {
			case CancelReasonByInitiator:
				return []uuid.UUID{t.RecipientID}
			case CancelReasonByRecipient:
				return []uuid.UUID{t.InitiatorID}
			}
		}
	}
	return []uuid.UUID{t.InitiatorID, t.RecipientID}
}
