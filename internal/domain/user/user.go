package user

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Name         string    `json:"name"`
	Role         string    `json:"role"`

	// Two-factor state. Secret is present iff enabled; backup codes
	// are single-use and removed as they are consumed.
	TwoFactorEnabled     bool     `json:"twoFactorEnabled"`
	TwoFactorSecret      string   `json:"-"`
	TwoFactorBackupCodes []string `json:"-"`

	ReferralCode string    `json:"referralCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
