package models

import (
	"time"
)

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// CloseReason identifies which lifecycle trigger asked for a close.
type CloseReason string

const (
	CloseProfitTarget CloseReason = "profit_target"
	CloseStopLoss     CloseReason = "stop_loss"
	CloseExpiryGuard  CloseReason = "expiry_guard"
	CloseMaxHolding   CloseReason = "max_holding"
)

type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// Position is the durable record of an accepted hedge. Records are never
// deleted, only marked closed, so the file keeps a full audit trail. The
// four contract codes are fixed at open time and never recomputed.
type Position struct {
	ID         string          `json:"id"`
	Instrument string          `json:"instrument"`
	OpenTime   time.Time       `json:"open_time"`
	Direction  SignalDirection `json:"direction"`

	OpenDomesticIV    float64 `json:"open_domestic_iv"`
	OpenForeignIV     float64 `json:"open_foreign_iv"`
	OpenIVDiff        float64 `json:"open_iv_diff"`
	OpenDomesticPrice float64 `json:"open_domestic_price"`
	OpenForeignPrice  float64 `json:"open_foreign_price"`

	DomesticCall string `json:"domestic_call"`
	DomesticPut  string `json:"domestic_put"`
	ForeignCall  string `json:"foreign_call"`
	ForeignPut   string `json:"foreign_put"`

	ExpiryDate time.Time `json:"expiry_date"`

	Status      PositionStatus `json:"status"`
	CloseTime   *time.Time     `json:"close_time,omitempty"`
	CloseReason CloseReason    `json:"close_reason,omitempty"`

	// Last-observed fields, refreshed when a close trigger fires.
	CurrentIVDiff *float64 `json:"current_iv_diff,omitempty"`
	UnrealizedPnL *float64 `json:"unrealized_pnl,omitempty"`
}

// CloseSignal asks the operator to unwind a position. It is ephemeral and
// re-emitted every cycle until the position is explicitly closed, so acting
// on it late is safe.
type CloseSignal struct {
	Position      *Position
	Reason        CloseReason
	Detail        string
	CurrentIVDiff float64
	IVDiffChange  float64
	DaysToExpiry  int
	EstimatedPnL  float64
	Urgency       Urgency
	Timestamp     time.Time
}
