// Package identity manages user accounts and issues session tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"presence/internal/auth"
	"presence/internal/model"
	"presence/internal/store"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

var (
	ErrValidation         = errors.New("validation failed")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrInactive           = errors.New("account disabled")
)

// TokenConfig controls issued tokens.
type TokenConfig struct {
	Issuer     string
	SigningKey string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service signs users up and in.
type Service struct {
	users   store.Collection[model.User]
	tokens  TokenConfig
	revoker auth.Revoker
	log     *zap.Logger
	now     func() time.Time
}

// NewService creates an identity service. revoker may be nil, in which case
// logout is a no-op for the server.
func NewService(b store.Backend, tokens TokenConfig, revoker auth.Revoker, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:   store.NewCollection[model.User](b, model.CollUsers),
		tokens:  tokens,
		revoker: revoker,
		log:     logger.Named("identity"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SignUpInput is a registration request. Wallets are assigned by an admin
// through UpdateWallet, never at signup.
type SignUpInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// selfServiceRoles are the roles a public signup may request.
var selfServiceRoles = map[string]bool{
	model.RoleTeacher: true,
	model.RoleStudent: true,
}

// Session is a profile with freshly issued tokens.
type Session struct {
	Profile model.Profile  `json:"user"`
	Tokens  auth.TokenPair `json:"tokens"`
}

// SignUp creates an account. Only teacher and student may be requested;
// any other role falls back to teacher and must be granted by an admin.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (Session, error) {
	role := strings.ToLower(strings.TrimSpace(in.Role))
	if !selfServiceRoles[role] {
		if role != "" {
			s.log.Warn("signup role not self-service; using teacher", zap.String("role", role))
		}
		role = model.RoleTeacher
	}
	u, err := s.create(ctx, in.Email, in.Password, in.DisplayName, role)
	if err != nil {
		return Session{}, err
	}
	s.log.Info("user signed up", zap.String("user_id", u.ID), zap.String("role", u.Role))
	return s.issue(u)
}

// EnsureAdmin creates the bootstrap admin account, or promotes the
// existing account with that email. The password only applies on create.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (model.Profile, error) {
	u, err := s.byEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, ErrUserNotFound):
		u, err = s.create(ctx, email, password, "Administrator", model.RoleAdmin)
		if err != nil {
			return model.Profile{}, err
		}
		s.log.Info("admin account created", zap.String("user_id", u.ID))
		return u.Profile(), nil
	case err != nil:
		return model.Profile{}, err
	case u.Role == model.RoleAdmin:
		return u.Profile(), nil
	}
	return s.UpdateRole(ctx, u.ID, model.RoleAdmin)
}

func (s *Service) create(ctx context.Context, email, password, displayName, role string) (model.User, error) {
	if len(password) < MinPasswordLength {
		return model.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	u := model.User{
		Email:       normalizeEmail(email),
		DisplayName: strings.TrimSpace(displayName),
		Role:        role,
		IsActive:    true,
		CreatedAt:   s.now(),
	}
	if err := model.Validate(u); err != nil {
		return model.User{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	if _, err := s.byEmail(ctx, u.Email); err == nil {
		return model.User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return model.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)

	id, err := s.users.Create(ctx, u)
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	u.ID = id
	return u, nil
}

// Login checks credentials and issues tokens.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.byEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrUserNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return Session{}, ErrInactive
	}
	return s.issue(u)
}

// Refresh exchanges a refresh token for a new pair. The old refresh token
// is revoked.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := auth.Parse(refreshToken, s.tokens.SigningKey, s.tokens.Issuer)
	if err != nil {
		return Session{}, err
	}
	if claims.Kind != auth.KindRefresh {
		return Session{}, auth.ErrTokenInvalid
	}
	if s.revoker != nil {
		revoked, err := s.revoker.Revoked(ctx, claims.ID)
		if err != nil {
			return Session{}, err
		}
		if revoked {
			return Session{}, auth.ErrTokenRevoked
		}
	}
	u, err := s.get(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	if !u.IsActive {
		return Session{}, ErrInactive
	}
	if s.revoker != nil && claims.ExpiresAt != nil {
		if err := s.revoker.Revoke(ctx, claims.ID, time.Until(claims.ExpiresAt.Time)); err != nil {
			s.log.Warn("revoke refresh token", zap.Error(err))
		}
	}
	return s.issue(u)
}

// Logout revokes the caller's access token until it expires.
func (s *Service) Logout(ctx context.Context, id auth.Identity) error {
	if s.revoker == nil || id.TokenID == "" {
		return nil
	}
	return s.revoker.Revoke(ctx, id.TokenID, time.Until(id.ExpiresAt))
}

// Profile returns the stored profile for a user id.
func (s *Service) Profile(ctx context.Context, userID string) (model.Profile, error) {
	u, err := s.get(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	return u.Profile(), nil
}

// Lookup finds a profile by id, then by email.
func (s *Service) Lookup(ctx context.Context, userID, email string) (model.Profile, error) {
	p, err := s.Profile(ctx, userID)
	if err == nil || email == "" || !errors.Is(err, ErrUserNotFound) {
		return p, err
	}
	u, err := s.byEmail(ctx, normalizeEmail(email))
	if err != nil {
		return model.Profile{}, err
	}
	return u.Profile(), nil
}

// UpdateRole changes a user's role. Roles are free-form.
func (s *Service) UpdateRole(ctx context.Context, userID, role string) (model.Profile, error) {
	role = strings.TrimSpace(role)
	if role == "" {
		return model.Profile{}, fmt.Errorf("%w: role required", ErrValidation)
	}
	u, err := s.get(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	if err := s.users.Update(ctx, userID, map[string]any{"role": role}); err != nil {
		return model.Profile{}, fmt.Errorf("update role: %w", err)
	}
	u.Role = role
	return u.Profile(), nil
}

// UpdateWallet assigns the wallet address carried in the user's tokens.
// An empty address clears it. It takes effect on the next login or refresh.
func (s *Service) UpdateWallet(ctx context.Context, userID, wallet string) (model.Profile, error) {
	wallet = strings.TrimSpace(wallet)
	u, err := s.get(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}
	if err := s.users.Update(ctx, userID, map[string]any{"walletAddress": wallet}); err != nil {
		return model.Profile{}, fmt.Errorf("update wallet: %w", err)
	}
	u.WalletAddress = wallet
	s.log.Info("wallet assigned", zap.String("user_id", userID), zap.Bool("cleared", wallet == ""))
	return u.Profile(), nil
}

func (s *Service) issue(u model.User) (Session, error) {
	pair, err := auth.Issue(auth.Principal{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		Wallet: u.WalletAddress,
	}, s.tokens.Issuer, s.tokens.SigningKey, s.tokens.AccessTTL, s.tokens.RefreshTTL)
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	return Session{Profile: u.Profile(), Tokens: pair}, nil
}

func (s *Service) get(ctx context.Context, id string) (model.User, error) {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Service) byEmail(ctx context.Context, email string) (model.User, error) {
	found, err := s.users.Find(ctx, store.Query{Where: []store.Filter{store.Eq("email", email)}, Limit: 1})
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	if len(found) == 0 {
		return model.User{}, ErrUserNotFound
	}
	return found[0], nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
