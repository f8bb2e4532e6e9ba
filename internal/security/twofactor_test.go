package security

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

func TestVerifyTOTP(t *testing.T) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "evanio-test",
		AccountName: "a@x.com",
	})
	if err != nil {
		t.Fatalf("totp.Generate error: %v", err)
	}

	code, err := totp.GenerateCodeCustom(key.Secret(), time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		t.Fatalf("GenerateCodeCustom error: %v", err)
	}

	if !VerifyTOTP(code, key.Secret()) {
		t.Fatalf("expected current code to verify")
	}

	if VerifyTOTP("000000", key.Secret()) && code != "000000" {
		t.Fatalf("expected bogus code to fail")
	}

	if VerifyTOTP("", key.Secret()) {
		t.Fatalf("expected empty code to fail")
	}

	if VerifyTOTP(code, "") {
		t.Fatalf("expected empty secret to fail")
	}
}

func TestVerifyBackupCode(t *testing.T) {
	codes := []string{"alpha-1111", "bravo-2222", "charlie-3333"}

	tests := []struct {
		name string
		code string
		want bool
	}{
		{name: "match first", code: "alpha-1111", want: true},
		{name: "match last", code: "charlie-3333", want: true},
		{name: "no match", code: "delta-4444", want: false},
		{name: "empty code", code: "", want: false},
		{name: "case sensitive", code: "ALPHA-1111", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := VerifyBackupCode(tc.code, codes)

			if got != tc.want {
				t.Fatalf("VerifyBackupCode(%q) = %v, want %v", tc.code, got, tc.want)
			}
		})
	}
}

func TestVerifyBackupCode_EmptySet(t *testing.T) {
	if VerifyBackupCode("anything", nil) {
		t.Fatalf("expected no match against empty set")
	}
}
