package security

import "golang.org/x/crypto/bcrypt"

// bcrypt cost is pinned rather than left at the library default so a
// dependency bump cannot silently change hashing time across the
// fleet. Existing hashes keep their original cost and still verify.
const passwordHashCost = 12

// HashPassword hashes a plaintext password for storage.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), passwordHashCost)

	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// CheckPassword compares a stored hash against a login attempt. The
// comparison is constant-time inside bcrypt.
func CheckPassword(hash, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
}
