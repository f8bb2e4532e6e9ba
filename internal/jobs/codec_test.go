package jobs

import (
	"testing"
	"time"
)

func TestEncodeDecode_WelcomeEmail(t *testing.T) {
	payload := WelcomeEmailPayload{
		UserID:      "user-123",
		Email:       "a@x.com",
		Name:        "A",
		RequestedAt: time.Now().UTC(),
	}

	b, err := EncodePayload(JobWelcomeEmail, payload)
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}

	decoded, err := DecodePayload(JobWelcomeEmail, b)
	if err != nil {
		t.Fatalf("DecodePayload error: %v", err)
	}

	p, ok := decoded.(WelcomeEmailPayload)
	if !ok {
		t.Fatalf("expected WelcomeEmailPayload, got %T", decoded)
	}

	if p.UserID != payload.UserID || p.Email != payload.Email {
		t.Fatalf("round-trip mismatch: %+v vs %+v", p, payload)
	}
}

func TestEncodePayload_TypeMismatch(t *testing.T) {
	_, err := EncodePayload(JobWelcomeEmail, ReferralAttributionPayload{
		UserID:       "u1",
		ReferralCode: "FRIEND10",
	})
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if err != ErrPayloadTypeMismatch {
		t.Fatalf("expected ErrPayloadTypeMismatch, got %v", err)
	}
}

func TestDecodePayload_UnknownType(t *testing.T) {
	_, err := DecodePayload(JobType("user.no_such_job"), []byte(`{}`))
	if err != ErrInvalidJobType {
		t.Fatalf("expected ErrInvalidJobType, got %v", err)
	}
}

func TestValidatePayload_RequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		typ     JobType
		payload any
		wantErr error
	}{
		{
			name:    "welcome without email",
			typ:     JobWelcomeEmail,
			payload: WelcomeEmailPayload{UserID: "u1"},
			wantErr: ErrInvalidJobPayload,
		},
		{
			name:    "referral without code",
			typ:     JobReferralAttribution,
			payload: ReferralAttributionPayload{UserID: "u1"},
			wantErr: ErrInvalidJobPayload,
		},
		{
			name:    "sequence ok",
			typ:     JobEmailSequence,
			payload: EmailSequencePayload{UserID: "u1", Sequence: "welcomeSequence"},
			wantErr: nil,
		},
		{
			name:    "mismatched struct",
			typ:     JobEmailSequence,
			payload: WelcomeEmailPayload{UserID: "u1", Email: "a@x.com"},
			wantErr: ErrPayloadTypeMismatch,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePayload(tc.typ, tc.payload)

			if err != tc.wantErr {
				t.Fatalf("ValidatePayload = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
