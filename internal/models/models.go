package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/AlexDid/simple-debts-api/internal/consent"
)

// UserKind distinguishes real accounts from the inert placeholders that
// replace removed participants.
type UserKind string

const (
	UserKindReal    UserKind = "real"
	UserKindVirtual UserKind = "virtual"
)

// User represents a participant. Virtual users carry a copy of a
// removed participant's public profile; they hold no credentials and no
// push tokens and can never propose or accept anything.
type User struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Picture    string    `json:"picture"`
	Kind       UserKind  `json:"kind"`
	PushTokens []string  `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// CanConsent reports whether the user may act in the consent protocol,
// as proposer or acceptor.
func (u *User) CanConsent() bool {
	return u.Kind == UserKindReal
}

// AccountType says whether both participants of a debt are real users.
type AccountType string

const (
	AccountTypeSingleUser    AccountType = "SINGLE_USER"
	AccountTypeMultipleUsers AccountType = "MULTIPLE_USERS"
)

// Debt is a shared balance relationship between exactly two
// participants in one currency. UserAID and UserBID always hold two
// distinct user ids for the lifetime of the record.
type Debt struct {
	ID             string         `json:"id"`
	UserAID        string         `json:"user_a_id"`
	UserBID        string         `json:"user_b_id"`
	Currency       string         `json:"currency"`
	Type           AccountType    `json:"type"`
	Status         consent.Status `json:"status"`
	StatusAcceptor *string        `json:"status_acceptor,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	// Operations is the debt's ordered operation list, populated on
	// reads that return the full debt.
	Operations []*Operation `json:"money_operations,omitempty"`
}

// HasParticipant reports whether userID is one of the two participants.
func (d *Debt) HasParticipant(userID string) bool {
	return consent.IsParticipant(d.UserAID, d.UserBID, userID)
}

// CounterParty returns the other participant for userID.
func (d *Debt) CounterParty(userID string) (string, bool) {
	return consent.CounterParty(d.UserAID, d.UserBID, userID)
}

// Operation is a single proposed or settled transfer within a debt,
// owed to one of its two participants. The currency is implied by the
// owning debt.
type Operation struct {
	ID             string          `json:"id"`
	DebtID         string          `json:"debt_id"`
	Amount         decimal.Decimal `json:"money_amount"`
	ReceiverID     string          `json:"money_receiver"`
	Description    string          `json:"description"`
	Status         consent.Status  `json:"status"`
	StatusAcceptor *string         `json:"status_acceptor,omitempty"`
	CreatorID      string          `json:"creator_id"`
	CreatedAt      time.Time       `json:"created_at"`
}
