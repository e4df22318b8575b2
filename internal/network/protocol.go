// Package network - protocol.go
// Wire format shared by the WebSocket and HTTP boundaries.
package network

import (
	"encoding/json"

	"github.com/MRamiBalles/Basecaster/internal/session"
)

// IntentType names a player intent.
type IntentType string

const (
	IntentTap           IntentType = "TAP"
	IntentBuyUpgrade    IntentType = "BUY_UPGRADE"
	IntentBuyCard       IntentType = "BUY_CARD"
	IntentClaimOffline  IntentType = "CLAIM_OFFLINE"
	IntentClaimDaily    IntentType = "CLAIM_DAILY"
	IntentStartFollow   IntentType = "START_FOLLOW"
	IntentVerifyFollow  IntentType = "VERIFY_FOLLOW"
	IntentClaimReferral IntentType = "CLAIM_REFERRAL"
	IntentSync          IntentType = "SYNC"
)

// MessageType names a server-to-client message.
type MessageType string

const (
	MsgTypeState  MessageType = "STATE"
	MsgTypeResult MessageType = "RESULT"
	MsgTypeError  MessageType = "ERROR"
)

// Intent is an inbound command from a client.
type Intent struct {
	Type      IntentType      `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Message is the outbound envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// Result answers one intent.
type Result struct {
	RequestID string        `json:"request_id,omitempty"`
	Intent    IntentType    `json:"intent"`
	OK        bool          `json:"ok"`
	Reason    string        `json:"reason,omitempty"`
	Amount    int64         `json:"amount,omitempty"`
	State     session.State `json:"state"`
}

// Rejection reasons.
const (
	ReasonInsufficientEnergy = "insufficient_energy"
	ReasonInsufficientPoints = "insufficient_points"
	ReasonUnknownTrack       = "unknown_track"
	ReasonUnknownCard        = "unknown_card"
	ReasonNothingToClaim     = "nothing_to_claim"
	ReasonCooldown           = "cooldown"
	ReasonUnknownPlatform    = "unknown_platform"
	ReasonAlreadyClaimed     = "already_claimed"
	ReasonNotVerifying       = "not_verifying"
	ReasonNotEligible        = "not_eligible"
	ReasonUnknownIntent      = "unknown_intent"
	ReasonInvalid            = "invalid"
	ReasonThrottled          = "throttled"
)

type upgradePayload struct {
	Track string `json:"track"`
}

type cardPayload struct {
	CardID string `json:"card_id"`
}

type platformPayload struct {
	Platform string `json:"platform"`
}

type referralPayload struct {
	ReferrerID string `json:"referrer_id"`
}
