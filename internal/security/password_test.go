package security

import "testing"

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	if hash == "s3cret-pass" {
		t.Fatalf("hash must not equal the plaintext")
	}

	if err := CheckPassword(hash, "s3cret-pass"); err != nil {
		t.Fatalf("expected matching password to verify: %v", err)
	}

	if err := CheckPassword(hash, "wrong-pass"); err == nil {
		t.Fatalf("expected wrong password to fail")
	}
}
