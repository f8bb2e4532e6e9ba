package jobs

import (
	"encoding/json"
	"time"
)

// WelcomeEmailPayload carries everything the worker needs to greet a
// new account without another user lookup.
type WelcomeEmailPayload struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	RequestedAt time.Time `json:"requestedAt"`
	RequestID   string    `json:"requestId,omitempty"` // correlation
}

// EmailSequencePayload starts a drip sequence for a user.
type EmailSequencePayload struct {
	UserID   string `json:"userId"`
	Sequence string `json:"sequence"`
}

// ReferralAttributionPayload credits the owner of a referral code for
// a completed registration.
type ReferralAttributionPayload struct {
	UserID       string `json:"userId"`
	Email        string `json:"email"`
	ReferralCode string `json:"referralCode"`
}

func (p WelcomeEmailPayload) JSON() (json.RawMessage, error) {
	return marshalRaw(p)
}

func (p EmailSequencePayload) JSON() (json.RawMessage, error) {
	return marshalRaw(p)
}

func (p ReferralAttributionPayload) JSON() (json.RawMessage, error) {
	return marshalRaw(p)
}

func marshalRaw(p any) (json.RawMessage, error) {
	b, err := json.Marshal(p)

	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
