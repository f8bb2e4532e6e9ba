package jobs

import (
	"encoding/json"
	"fmt"
)

func EncodePayload(t JobType, payload any) ([]byte, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}

	switch t {
	case JobWelcomeEmail:
		if !isPayload[WelcomeEmailPayload](payload) {
			return nil, ErrPayloadTypeMismatch
		}

	case JobEmailSequence:
		if !isPayload[EmailSequencePayload](payload) {
			return nil, ErrPayloadTypeMismatch
		}

	case JobReferralAttribution:
		if !isPayload[ReferralAttributionPayload](payload) {
			return nil, ErrPayloadTypeMismatch
		}
	}

	b, err := json.Marshal(payload)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}

	return b, nil
}

// DecodePayload unmarshals raw payload bytes into the typed payload
// struct for the given job type.
func DecodePayload(t JobType, raw []byte) (any, error) {
	if !t.IsValid() {
		return nil, ErrInvalidJobType
	}
	if len(raw) == 0 {
		return nil, ErrInvalidJobPayload
	}

	switch t {
	case JobWelcomeEmail:
		var p WelcomeEmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobEmailSequence:
		var p EmailSequencePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	case JobReferralAttribution:
		var p ReferralAttributionPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
		}
		return p, nil

	default:
		return nil, ErrInvalidJobType
	}
}

func isPayload[T any](payload any) bool {
	_, ok := payload.(T)

	if !ok {
		_, ok = payload.(*T)
	}

	return ok
}
