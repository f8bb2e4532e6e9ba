package jobs

import "strings"

// ValidatePayload performs minimal field checks on decoded payloads
// before a job is enqueued.
func ValidatePayload(t JobType, payload any) error {
	if !t.IsValid() {
		return ErrInvalidJobType
	}

	trim := func(s string) string { return strings.TrimSpace(s) }

	switch t {
	case JobWelcomeEmail:
		var p WelcomeEmailPayload
		switch v := payload.(type) {
		case WelcomeEmailPayload:
			p = v
		case *WelcomeEmailPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.UserID) == "" || trim(p.Email) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobEmailSequence:
		var p EmailSequencePayload
		switch v := payload.(type) {
		case EmailSequencePayload:
			p = v
		case *EmailSequencePayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.UserID) == "" || trim(p.Sequence) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	case JobReferralAttribution:
		var p ReferralAttributionPayload
		switch v := payload.(type) {
		case ReferralAttributionPayload:
			p = v
		case *ReferralAttributionPayload:
			p = *v
		default:
			return ErrPayloadTypeMismatch
		}
		if trim(p.UserID) == "" || trim(p.ReferralCode) == "" {
			return ErrInvalidJobPayload
		}
		return nil

	default:
		return ErrInvalidJobType
	}
}
