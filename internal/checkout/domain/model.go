package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Mode string

const (
	ModePayment      Mode = "payment"
	ModeSubscription Mode = "subscription"

	ClientMobile = "mobile"
)

// Session is written once by the broker and completed once by the
// fulfiller, which fills the three secret fields or an error message.
type Session struct {
	ID       snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID   string       `json:"user_id" gorm:"column:user_id;type:text;not null;index"`
	Mode     Mode         `json:"mode" gorm:"type:text;not null"`
	Client   string       `json:"client" gorm:"type:text;not null"`
	Amount   *int64       `json:"amount,omitempty"`
	Currency *string      `json:"currency,omitempty" gorm:"type:text"`
	PriceID  *string      `json:"price,omitempty" gorm:"column:price_id;type:text"`

	PaymentIntentClientSecret string `json:"paymentIntentClientSecret" gorm:"column:payment_intent_client_secret"`
	EphemeralKeySecret        string `json:"ephemeralKeySecret" gorm:"column:ephemeral_key_secret"`
	Customer                  string `json:"customer" gorm:"column:customer"`
	ErrorMessage              string `json:"error,omitempty" gorm:"column:error_message"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "checkout_sessions" }

// Secrets are what the mobile payment sheet needs.
type Secrets struct {
	PaymentIntent string `json:"paymentIntent"`
	EphemeralKey  string `json:"ephemeralKey"`
	Customer      string `json:"customer"`
}

func (s Session) Secrets() Secrets {
	return Secrets{
		PaymentIntent: s.PaymentIntentClientSecret,
		EphemeralKey:  s.EphemeralKeySecret,
		Customer:      s.Customer,
	}
}

// Complete reports whether all three secret fields are present.
func (s Secrets) Complete() bool {
	return strings.TrimSpace(s.PaymentIntent) != "" &&
		strings.TrimSpace(s.EphemeralKey) != "" &&
		strings.TrimSpace(s.Customer) != ""
}

// Failed reports whether the fulfiller gave up on the session.
func (s Session) Failed() bool {
	return strings.TrimSpace(s.ErrorMessage) != ""
}
