package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/evanio/evanio/internal/auth"
	"github.com/evanio/evanio/internal/cache"
	"github.com/evanio/evanio/internal/config"
	"github.com/evanio/evanio/internal/domain/job"
	"github.com/evanio/evanio/internal/domain/user"
	"github.com/evanio/evanio/internal/http/middlewares"
	"github.com/evanio/evanio/internal/jobs"
	"github.com/evanio/evanio/internal/observability"
	"github.com/evanio/evanio/internal/repo/postgres"
	"github.com/evanio/evanio/internal/security"
	"github.com/gin-gonic/gin"
)

type UsersStore interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
	Create(ctx context.Context, req postgres.CreateUserRequest) (user.User, error)
	CountAll(ctx context.Context) (int, error)
	AdminExists(ctx context.Context) (bool, error)
	ConsumeBackupCode(ctx context.Context, userID, code string) error
}

type JobsCreator interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
}

type AuthHandler struct {
	users    UsersStore
	jobsRepo JobsCreator
	jwt      *auth.Manager
	// remembers accepted TOTP codes for the rest of their window so a
	// sniffed code cannot be replayed
	totpGuard *cache.Cache
	log       *slog.Logger
	prom      *observability.Prom
}

func NewAuthHandler(users UsersStore, jobsRepo JobsCreator, jwtManager *auth.Manager, log *slog.Logger, prom *observability.Prom) *AuthHandler {
	return &AuthHandler{
		users:     users,
		jobsRepo:  jobsRepo,
		jwt:       jwtManager,
		totpGuard: cache.New(90 * time.Second),
		log:       log,
		prom:      prom,
	}
}

type SignUpRequest struct {
	Name         string `json:"name" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=6"`
	Role         string `json:"role" binding:"omitempty,oneof=user admin"`
	ReferralCode string `json:"referralCode"`
}

type LoginRequest struct {
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required"`
	TwoFactorToken string `json:"twoFactorToken"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// normalizeEmail is applied before every lookup and before storage, so
// matching is case-insensitive everywhere.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (h *AuthHandler) Register(ctx *gin.Context) {
	var req SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	email := normalizeEmail(req.Email)

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	hash, err := security.HashPassword(req.Password)

	if err != nil {
		RespondInternal(ctx, "Could not create user")
		return
	}

	role, err := h.resolveRole(cctx, req.Role)

	if err != nil {
		h.log.Error("role resolution failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	u, err := h.users.Create(cctx, postgres.CreateUserRequest{
		Email:        email,
		PasswordHash: hash,
		Name:         req.Name,
		Role:         role,
	})

	if err != nil {
		if errors.Is(err, postgres.ErrEmailAlreadyUsed) {
			h.countAuth("register", "conflict")
			RespondBadRequest(ctx, "email_taken", "User already exists", nil)
			return
		}

		h.log.Error("user create failed", "err", err)
		RespondInternal(ctx, "Could not create user")
		return
	}

	// post-registration side effects go through the job queue; none of
	// them may block or fail the response
	h.enqueueRegistrationJobs(cctx, u, req.ReferralCode, requestIDFrom(ctx))

	accessToken, refreshToken, ok := h.issueTokens(ctx, u.ID)

	if !ok {
		return
	}

	h.countAuth("register", "registered")

	ctx.JSON(http.StatusCreated, gin.H{
		"id":           u.ID,
		"name":         u.Name,
		"email":        u.Email,
		"role":         u.Role,
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

// resolveRole decides the new user's role. The only elevation paths
// are bootstrap ones: the very first user, or an explicit admin
// request while no admin exists yet.
func (h *AuthHandler) resolveRole(ctx context.Context, requested string) (string, error) {
	count, err := h.users.CountAll(ctx)

	if err != nil {
		return "", err
	}

	if count == 0 {
		h.log.Info("first user registered, assigning admin role")
		return user.RoleAdmin, nil
	}

	if requested == user.RoleAdmin {
		adminExists, err := h.users.AdminExists(ctx)

		if err != nil {
			return "", err
		}

		if !adminExists {
			h.log.Info("no admin exists, allowing admin registration")
			return user.RoleAdmin, nil
		}
	}

	return user.RoleUser, nil
}

func (h *AuthHandler) enqueueRegistrationJobs(ctx context.Context, u user.User, referralCode, requestID string) {
	now := time.Now().UTC()

	welcome, _ := jobs.WelcomeEmailPayload{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		RequestedAt: now,
		RequestID:   requestID,
	}.JSON()

	sequence, _ := jobs.EmailSequencePayload{
		UserID:   u.ID,
		Sequence: "welcomeSequence",
	}.JSON()

	h.enqueue(ctx, u.ID, string(jobs.JobWelcomeEmail), welcome, "welcome:"+u.ID)
	h.enqueue(ctx, u.ID, string(jobs.JobEmailSequence), sequence, "sequence:welcome:"+u.ID)

	if referralCode != "" {
		referral, _ := jobs.ReferralAttributionPayload{
			UserID:       u.ID,
			Email:        u.Email,
			ReferralCode: referralCode,
		}.JSON()

		h.enqueue(ctx, u.ID, string(jobs.JobReferralAttribution), referral, "referral:"+u.ID)
	}
}

func (h *AuthHandler) enqueue(ctx context.Context, userID, jobType string, payload []byte, idemKey string) {
	if h.jobsRepo == nil || payload == nil {
		return
	}

	uid := userID

	_, err := h.jobsRepo.Create(ctx, job.CreateRequest{
		Type:           jobType,
		Payload:        payload,
		IdempotencyKey: &idemKey,
		UserID:         &uid,
	})

	if err != nil {
		h.log.Error("job enqueue failed", "type", jobType, "user_id", userID, "err", err)
	}
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, normalizeEmail(req.Email))

	if err != nil {
		// same response whether the email is unknown or the password
		// is wrong
		h.countAuth("login", "invalid_credentials")
		RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
		return
	}

	if err := security.CheckPassword(foundUser.PasswordHash, req.Password); err != nil {
		h.countAuth("login", "invalid_credentials")
		RespondUnAuthorized(ctx, "invalid_credentials", "Invalid email or password")
		return
	}

	if foundUser.TwoFactorEnabled {
		if req.TwoFactorToken == "" {
			// valid credentials, but the second factor is still
			// outstanding; deliberately a 200, not an error
			h.countAuth("login", "2fa_required")
			ctx.JSON(http.StatusOK, gin.H{
				"requires2FA": true,
				"message":     "2FA code required",
			})
			return
		}

		if !h.verifySecondFactor(cctx, foundUser, req.TwoFactorToken) {
			h.countAuth("login", "invalid_2fa")
			RespondUnAuthorized(ctx, "invalid_2fa_code", "Invalid 2FA code")
			return
		}
	}

	accessToken, refreshToken, ok := h.issueTokens(ctx, foundUser.ID)

	if !ok {
		return
	}

	h.countAuth("login", "success")

	ctx.JSON(http.StatusOK, gin.H{
		"id":           foundUser.ID,
		"name":         foundUser.Name,
		"email":        foundUser.Email,
		"role":         foundUser.Role,
		"token":        accessToken,
		"refreshToken": refreshToken,
		"requires2FA":  false,
	})
}

// verifySecondFactor accepts either a current TOTP code or an unused
// backup code. Backup codes are consumed atomically in the store, so a
// code that has just been spent by a racing login loses here.
func (h *AuthHandler) verifySecondFactor(ctx context.Context, u user.User, token string) bool {
	replayKey := u.ID + ":" + token

	if _, used := h.totpGuard.Get(replayKey); !used {
		if security.VerifyTOTP(token, u.TwoFactorSecret) {
			h.totpGuard.Set(replayKey, struct{}{})
			return true
		}
	}

	if security.VerifyBackupCode(token, u.TwoFactorBackupCodes) {
		err := h.users.ConsumeBackupCode(ctx, u.ID, token)

		if err != nil {
			if !errors.Is(err, postgres.ErrBackupCodeSpent) {
				h.log.Error("backup code consume failed", "user_id", u.ID, "err", err)
			}
			return false
		}

		return true
	}

	return false
}

func (h *AuthHandler) Refresh(ctx *gin.Context) {
	var req RefreshRequest

	// an empty or absent body is a missing token, not a bind failure
	_ = ctx.ShouldBindJSON(&req)

	if req.RefreshToken == "" {
		RespondUnAuthorized(ctx, "missing_token", "Refresh token required")
		return
	}

	claims, err := h.jwt.VerifyRefreshToken(req.RefreshToken)

	if err != nil {
		if errors.Is(err, auth.ErrNoSecret) {
			h.log.Error("refresh secret missing, cannot verify token")
			RespondMisconfigured(ctx)
			return
		}

		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid or expired refresh token")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, claims.UserID)

	if err != nil {
		// indistinguishable from a bad token on purpose
		RespondUnAuthorized(ctx, "invalid_refresh", "Invalid or expired refresh token")
		return
	}

	// rotate: a fresh pair on every refresh
	accessToken, refreshToken, ok := h.issueTokens(ctx, u.ID)

	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"token":        accessToken,
		"refreshToken": refreshToken,
	})
}

func (h *AuthHandler) Me(ctx *gin.Context) {
	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, userID)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		RespondInternal(ctx, "Could not load profile")
		return
	}

	ctx.JSON(http.StatusOK, u)
}

// issueTokens generates the access/refresh pair, mapping a missing
// secret to a misconfiguration response and a signing failure to a
// generic server error. Both are server faults, never client errors.
func (h *AuthHandler) issueTokens(ctx *gin.Context, userID string) (accessToken, refreshToken string, ok bool) {
	accessToken, err := h.jwt.GenerateAccessToken(userID)

	if err != nil {
		h.respondTokenFailure(ctx, err)
		return "", "", false
	}

	refreshToken, err = h.jwt.GenerateRefreshToken(userID)

	if err != nil {
		h.respondTokenFailure(ctx, err)
		return "", "", false
	}

	return accessToken, refreshToken, true
}

func (h *AuthHandler) respondTokenFailure(ctx *gin.Context, err error) {
	if errors.Is(err, auth.ErrNoSecret) {
		h.log.Error("jwt secret missing, cannot generate token")
		RespondMisconfigured(ctx)
		return
	}

	h.log.Error("token generation failed", "err", err)
	RespondError(ctx, http.StatusInternalServerError, "token_issuance_failed",
		"Failed to generate authentication token. Please try again.", nil)
}

func (h *AuthHandler) countAuth(op, result string) {
	if h.prom != nil {
		h.prom.AuthAttempts.WithLabelValues(op, result).Inc()
	}
}
