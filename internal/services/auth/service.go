// Package auth signs users in with email and password and issues the
// bearer tokens the server accepts.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
)

// Compile-time interface check
var _ interfaces.AuthService = (*Service)(nil)

const (
	issuer            = "fintrack"
	bcryptCost        = 10
	maxPasswordBytes  = 72
	minPasswordLength = 6
)

// Service implements AuthService.
type Service struct {
	users  interfaces.UserStore
	docs   interfaces.DocumentStore
	config *common.AuthConfig
	logger *common.Logger
	now    func() time.Time

	mu      sync.Mutex
	revoked map[string]time.Time // jti -> token expiry
}

// NewService creates an auth service. docs receives the demo ledger for
// newly registered users when seeding is enabled.
func NewService(users interfaces.UserStore, docs interfaces.DocumentStore, config *common.AuthConfig, logger *common.Logger) *Service {
	return &Service{
		users:   users,
		docs:    docs,
		config:  config,
		logger:  logger,
		now:     time.Now,
		revoked: make(map[string]time.Time),
	}
}

// hashPassword hashes with bcrypt, truncating to bcrypt's 72-byte limit.
func hashPassword(password string) (string, error) {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	hash, err := bcrypt.GenerateFromPassword(b, bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), b) == nil
}

// SignIn verifies an existing user's password, or registers the email when
// it is unknown. It returns the user and a signed token.
func (s *Service) SignIn(ctx context.Context, email, password, displayName string) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", models.Validationf("a valid email is required")
	}
	if password == "" {
		return nil, "", models.Validationf("password is required")
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if !checkPassword(user.PasswordHash, password) {
			s.logger.Warn().Str("email", email).Msg("Sign-in rejected")
			return nil, "", models.ErrInvalidCredentials
		}
	case errors.Is(err, models.ErrNotFound):
		user, err = s.register(ctx, email, password, displayName)
		if err != nil {
			return nil, "", err
		}
	default:
		return nil, "", fmt.Errorf("failed to look up user: %w", err)
	}

	token, err := s.signToken(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to sign token: %w", err)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("User signed in")
	return user, token, nil
}

func (s *Service) register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	if len(password) < minPasswordLength {
		return nil, models.Validationf("password must be at least %d characters", minPasswordLength)
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = models.DefaultDisplayName(email)
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	s.logger.Info().Str("user_id", user.ID).Str("email", email).Msg("User registered")

	if s.config.SeedDemoData && s.docs != nil {
		if err := SeedDemoLedger(ctx, s.docs, user.ID, s.now()); err != nil {
			s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("Failed to seed demo ledger")
		}
	}
	return user, nil
}

// SeedDemoLedger writes the demo accounts, holdings and transactions for
// userID. Transactions reference the accounts created in the same call.
func SeedDemoLedger(ctx context.Context, docs interfaces.DocumentStore, userID string, today time.Time) error {
	demo := models.NewDemoLedger(today)

	add := func(collection, sortKey string, v any) (string, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return docs.Add(ctx, &models.Document{
			UserID:     userID,
			Collection: collection,
			SortKey:    sortKey,
			Data:       string(data),
		})
	}

	accountIDs := make([]string, len(demo.Accounts))
	for i, a := range demo.Accounts {
		id, err := add(models.CollectionAccounts, "", a)
		if err != nil {
			return fmt.Errorf("failed to seed account %q: %w", a.Name, err)
		}
		accountIDs[i] = id
	}
	for _, h := range demo.Holdings {
		if _, err := add(models.CollectionHoldings, "", h); err != nil {
			return fmt.Errorf("failed to seed holding %q: %w", h.Symbol, err)
		}
	}
	for _, dt := range demo.Transactions {
		tx := dt.Transaction
		tx.AccountID = accountIDs[dt.AccountIndex]
		if _, err := add(models.CollectionTransactions, tx.Date, tx); err != nil {
			return fmt.Errorf("failed to seed transaction %q: %w", tx.Note, err)
		}
	}
	return nil
}

func (s *Service) signToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"email": user.Email,
		"name":  user.DisplayName,
		"iss":   issuer,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(s.config.GetTokenExpiry()).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// parseToken verifies signature, issuer and expiry.
func (s *Service) parseToken(tokenString string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidCredentials, err)
	}
	return claims, nil
}

func (s *Service) isRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok
}

// ValidateToken checks the token signature, expiry and revocation and
// loads its user.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.User, error) {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if jti, _ := claims["jti"].(string); jti != "" && s.isRevoked(jti) {
		return nil, fmt.Errorf("%w: token revoked", models.ErrInvalidCredentials)
	}

	sub, _ := claims.GetSubject()
	if sub == "" {
		return nil, fmt.Errorf("%w: token has no subject", models.ErrInvalidCredentials)
	}
	user, err := s.users.GetUser(ctx, sub)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", models.ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

// Revoke rejects token until it expires. Entries for expired tokens are
// pruned on each call.
func (s *Service) Revoke(ctx context.Context, tokenString string) error {
	claims, err := s.parseToken(tokenString)
	if err != nil {
		return err
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return fmt.Errorf("%w: token has no id", models.ErrInvalidCredentials)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fmt.Errorf("%w: token has no expiry", models.ErrInvalidCredentials)
	}

	now := s.now()
	s.mu.Lock()
	for id, until := range s.revoked {
		if !until.After(now) {
			delete(s.revoked, id)
		}
	}
	s.revoked[jti] = exp.Time
	s.mu.Unlock()

	sub, _ := claims.GetSubject()
	s.logger.Info().Str("user_id", sub).Msg("Token revoked")
	return nil
}
