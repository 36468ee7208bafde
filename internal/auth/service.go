// Package auth issues and verifies bearer tokens for reporter accounts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesikahq/outbreak-exchange/internal/audit"
	"github.com/mesikahq/outbreak-exchange/internal/model"
	"github.com/mesikahq/outbreak-exchange/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUnauthenticated    = errors.New("could not validate credentials")
	ErrUnauthorized       = errors.New("inactive user")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrAccountExists      = errors.New("reporter already has an account")
	ErrUnknownReporter    = errors.New("reporter does not exist")
)

// Claims carries the username as the subject and the reporter id as uid.
type Claims struct {
	jwt.RegisteredClaims
	UID int64 `json:"uid"`
}

type Config struct {
	JWTSecret   string
	TokenExpiry time.Duration
	// CacheTTL bounds how long a resolved principal is reused. Zero disables
	// the cache.
	CacheTTL time.Duration
}

type Service interface {
	Login(ctx context.Context, username, password string) (string, error)
	IssueToken(account model.Account) (string, error)
	ResolvePrincipal(ctx context.Context, token string) (model.Principal, error)
	CreateAccount(ctx context.Context, reporterID int64, username, password string) (*model.Account, error)
	SetDisabled(ctx context.Context, username string, disabled bool) error
}

type service struct {
	store       store.Store
	audit       audit.Service
	logger      *zap.Logger
	jwtSecret   []byte
	tokenExpiry time.Duration
	principals  *cache.Cache
	now         func() time.Time
}

func NewService(st store.Store, auditService audit.Service, logger *zap.Logger, cfg Config) Service {
	if cfg.TokenExpiry <= 0 {
		cfg.TokenExpiry = 30 * time.Minute
	}
	s := &service{
		store:       st,
		audit:       auditService,
		logger:      logger,
		jwtSecret:   []byte(cfg.JWTSecret),
		tokenExpiry: cfg.TokenExpiry,
		now:         time.Now,
	}
	if cfg.CacheTTL > 0 {
		s.principals = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return s
}

// HashPassword returns a bcrypt hash suitable for Account.PasswordHash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func (s *service) Login(ctx context.Context, username, password string) (string, error) {
	var account *model.Account
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		account, err = tx.GetAccountByUsername(ctx, username)
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.logger.Warn("Login for unknown account", zap.String("username", username))
		s.recordLogin(ctx, 0, username, "failure", "unknown_account")
		return "", ErrInvalidCredentials
	case err != nil:
		return "", fmt.Errorf("failed to load account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Password mismatch", zap.String("username", username))
		s.recordLogin(ctx, account.ID, username, "failure", "invalid_password")
		return "", ErrInvalidCredentials
	}
	if account.Disabled {
		s.recordLogin(ctx, account.ID, username, "failure", "disabled")
		return "", ErrUnauthorized
	}

	token, err := s.IssueToken(*account)
	if err != nil {
		return "", err
	}
	s.recordLogin(ctx, account.ID, username, "success", "")
	return token, nil
}

func (s *service) IssueToken(account model.Account) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
		UID: account.ID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *service) ResolvePrincipal(ctx context.Context, tokenString string) (model.Principal, error) {
	claims := &Claims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid || claims.Subject == "" {
		return model.Principal{}, ErrUnauthenticated
	}

	principal, err := s.principal(ctx, claims.Subject)
	if err != nil {
		return model.Principal{}, err
	}
	if principal.ID != claims.UID {
		return model.Principal{}, ErrUnauthenticated
	}
	if principal.Disabled {
		return model.Principal{}, ErrUnauthorized
	}
	return principal, nil
}

// principal loads the account behind a username, consulting the cache first.
// Disabled accounts are cached too so the check above still applies.
func (s *service) principal(ctx context.Context, username string) (model.Principal, error) {
	if s.principals != nil {
		if cached, ok := s.principals.Get(username); ok {
			return cached.(model.Principal), nil
		}
	}

	var account *model.Account
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		account, err = tx.GetAccountByUsername(ctx, username)
		return err
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return model.Principal{}, ErrUnauthenticated
	case err != nil:
		return model.Principal{}, fmt.Errorf("failed to load account: %w", err)
	}

	principal := model.Principal{ID: account.ID, Username: account.Username, Disabled: account.Disabled}
	if s.principals != nil {
		s.principals.SetDefault(username, principal)
	}
	return principal, nil
}

func (s *service) CreateAccount(ctx context.Context, reporterID int64, username, password string) (*model.Account, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &model.Account{ID: reporterID, Username: username, PasswordHash: hash}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.InsertAccount(ctx, account)
	})
	switch {
	case store.IsUniqueViolation(err, "username"):
		return nil, ErrUsernameTaken
	case store.IsUniqueViolation(err, "id"):
		return nil, ErrAccountExists
	case isForeignKey(err):
		return nil, ErrUnknownReporter
	case err != nil:
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("Account created", zap.Int64("reporter_id", reporterID), zap.String("username", username))
	s.logAccountEvent(ctx, audit.EventModify, "CREATE", account)
	return account, nil
}

func (s *service) SetDisabled(ctx context.Context, username string, disabled bool) error {
	var account *model.Account
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		account, err = tx.GetAccountByUsername(ctx, username)
		if err != nil {
			return err
		}
		account.Disabled = disabled
		return tx.UpdateAccount(ctx, account)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnauthenticated
	}
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}

	if s.principals != nil {
		s.principals.Delete(username)
	}
	action := "ENABLE"
	if disabled {
		action = "DISABLE"
	}
	s.logAccountEvent(ctx, audit.EventModify, action, account)
	return nil
}

func isForeignKey(err error) bool {
	var ce *store.ConstraintError
	return errors.As(err, &ce) && ce.Kind == store.ConstraintForeignKey
}

func (s *service) recordLogin(ctx context.Context, id int64, username, status, reason string) {
	event := &audit.AuditEvent{
		EventType:   audit.EventLogin,
		UserID:      strconv.FormatInt(id, 10),
		Username:    username,
		Action:      "LOGIN",
		Resource:    string(model.KindAccount),
		ResourceID:  strconv.FormatInt(id, 10),
		Status:      status,
		Sensitivity: "HIGH",
	}
	if reason != "" {
		event.Details = map[string]interface{}{"reason": reason}
	}
	s.logEvent(ctx, event)
}

func (s *service) logAccountEvent(ctx context.Context, eventType audit.EventType, action string, account *model.Account) {
	s.logEvent(ctx, &audit.AuditEvent{
		EventType:   eventType,
		UserID:      strconv.FormatInt(account.ID, 10),
		Username:    account.Username,
		Action:      action,
		Resource:    string(model.KindAccount),
		ResourceID:  strconv.FormatInt(account.ID, 10),
		Status:      "success",
		Sensitivity: "HIGH",
	})
}

func (s *service) logEvent(ctx context.Context, event *audit.AuditEvent) {
	if s.audit == nil {
		return
	}
	if info, ok := audit.RequestInfoFrom(ctx); ok {
		event.RequestID = info.RequestID
		event.IPAddress = info.IPAddress
		event.UserAgent = info.UserAgent
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Warn("Failed to record audit event", zap.String("action", event.Action), zap.Error(err))
	}
}
