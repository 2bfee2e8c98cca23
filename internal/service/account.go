// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chenjf2025/BookQuoteApp/internal/auth"
	"github.com/chenjf2025/BookQuoteApp/internal/cache"
	"github.com/chenjf2025/BookQuoteApp/internal/model"
	"github.com/chenjf2025/BookQuoteApp/internal/quota"
	"github.com/chenjf2025/BookQuoteApp/internal/repository"
)

// Account service errors.
var (
	ErrUsernameTaken      = errors.New("username already registered")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUnsupportedPackage = errors.New("unsupported payment amount")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidSession     = errors.New("invalid or expired session")
)

// DefaultSessionTTL is the lifetime of an issued session token.
const DefaultSessionTTL = 7 * 24 * time.Hour

// minLoginDuration is the floor on a failed login, so unknown usernames and
// wrong passwords take the same time.
const minLoginDuration = 200 * time.Millisecond

// AccountStore is the persistence the account service needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id string) (*model.Account, error)
	GetAccountByUsername(ctx context.Context, username string) (*model.Account, error)
	CreditPayment(ctx context.Context, payment *model.PaymentTransaction) (int, error)
	CreateSession(ctx context.Context, s *model.Session) error
	GetSessionsByPrefix(ctx context.Context, prefix string) ([]*model.Session, error)
	TouchSession(ctx context.Context, id string) error
	RevokeSession(ctx context.Context, id string) error
}

// SessionCache caches verified sessions by token digest.
type SessionCache interface {
	GetSession(ctx context.Context, tokenHash string) (*model.AuthContext, error)
	SetSession(ctx context.Context, tokenHash string, auth *model.AuthContext) error
	DeleteSession(ctx context.Context, tokenHash string) error
}

// UsageReader reports quota pools; *quota.Ledger satisfies it.
type UsageReader interface {
	Usage(ctx context.Context, identity, accountID string) (quota.Usage, error)
}

// AccountConfig configures an AccountService.
type AccountConfig struct {
	Store      AccountStore
	Cache      SessionCache // optional
	Usage      UsageReader
	Events     quota.EventPublisher // optional
	Hasher     *auth.Hasher
	Package    model.PaymentPackage
	SessionTTL time.Duration
	Now        func() time.Time
	Logger     *slog.Logger
}

// AccountService handles registration, sessions and top-ups.
type AccountService struct {
	store      AccountStore
	cache      SessionCache
	usage      UsageReader
	events     quota.EventPublisher
	hasher     *auth.Hasher
	pkg        model.PaymentPackage
	sessionTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
	dummyHash  string
}

// NewAccountService creates an AccountService.
func NewAccountService(cfg AccountConfig) (*AccountService, error) {
	if cfg.Hasher == nil {
		cfg.Hasher = auth.NewHasher(auth.DefaultParams)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Package.AmountRMB <= 0 || cfg.Package.Quota <= 0 {
		return nil, errors.New("payment package must have positive amount and quota")
	}

	// Verified against on unknown usernames.
	dummy, err := cfg.Hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &AccountService{
		store:      cfg.Store,
		cache:      cfg.Cache,
		usage:      cfg.Usage,
		events:     cfg.Events,
		hasher:     cfg.Hasher,
		pkg:        cfg.Package,
		sessionTTL: cfg.SessionTTL,
		now:        cfg.Now,
		logger:     cfg.Logger.With("component", "account"),
		dummyHash:  dummy,
	}, nil
}

// Session is a freshly issued bearer token.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   *model.Account
}

// Profile is the caller's account and quota view.
type Profile struct {
	Username       string
	GenerateQuota  int
	DailyFreeUsed  int
	DailyFreeTotal int
}

// Register creates an account with a zero paid balance and signs it in.
func (s *AccountService) Register(ctx context.Context, username, password string) (*Session, error) {
	account, err := s.CreateAccount(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, account)
}

// CreateAccount validates and stores a new account without signing it in.
func (s *AccountService) CreateAccount(ctx context.Context, username, password string) (*model.Account, error) {
	username = strings.TrimSpace(username)
	if err := model.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := model.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := &model.Account{
		ID:           ulid.Make().String(),
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.logger.Info("account registered", "account_id", account.ID, "username", username)
	return account, nil
}

// Login verifies credentials and issues a new session.
func (s *AccountService) Login(ctx context.Context, username, password string) (*Session, error) {
	start := s.now()

	account, err := s.store.GetAccountByUsername(ctx, strings.TrimSpace(username))
	if err != nil && !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	hash := s.dummyHash
	if account != nil {
		hash = account.PasswordHash
	}
	ok, verr := s.hasher.Verify(password, hash)
	if account == nil || verr != nil || !ok {
		if verr != nil && account != nil {
			s.logger.Error("stored password hash unreadable", "account_id", account.ID, "error", verr)
		}
		s.delayUntil(ctx, start.Add(minLoginDuration))
		return nil, ErrInvalidCredentials
	}

	return s.issueSession(ctx, account)
}

func (s *AccountService) delayUntil(ctx context.Context, t time.Time) {
	d := t.Sub(s.now())
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *AccountService) issueSession(ctx context.Context, account *model.Account) (*Session, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &model.Session{
		ID:          ulid.Make().String(),
		AccountID:   account.ID,
		TokenPrefix: token.Prefix,
		TokenHash:   token.Hash,
		ExpiresAt:   now.Add(s.sessionTTL),
		CreatedAt:   now,
	}
	if err := s.store.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &Session{Token: token.Plaintext, ExpiresAt: session.ExpiresAt, Account: account}, nil
}

// Authenticate resolves a bearer token. Verified sessions are cached by
// token digest for a few minutes.
func (s *AccountService) Authenticate(ctx context.Context, token string) (*model.AuthContext, error) {
	prefix, err := auth.ParseSessionToken(token)
	if err != nil {
		return nil, ErrInvalidSession
	}
	digest := auth.HashToken(token)

	if s.cache != nil {
		cached, err := s.cache.GetSession(ctx, digest)
		if err == nil && s.now().Before(cached.ExpiresAt) {
			return cached, nil
		}
		if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("session cache read failed", "error", err)
		}
	}

	sessions, err := s.store.GetSessionsByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var matched *model.Session
	for _, sess := range sessions {
		if auth.VerifyToken(token, sess.TokenHash) {
			matched = sess
			break
		}
	}
	if matched == nil || matched.IsRevoked() || matched.IsExpired(s.now()) {
		return nil, ErrInvalidSession
	}

	account, err := s.store.GetAccountByID(ctx, matched.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	authCtx := &model.AuthContext{
		AccountID: account.ID,
		Username:  account.Username,
		SessionID: matched.ID,
		ExpiresAt: matched.ExpiresAt,
	}
	if s.cache != nil {
		if err := s.cache.SetSession(ctx, digest, authCtx); err != nil {
			s.logger.Warn("session cache write failed", "error", err)
		}
	}

	go func(id string) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := s.store.TouchSession(ctx, id); err != nil {
			s.logger.Debug("touch session failed", "session_id", id, "error", err)
		}
	}(matched.ID)

	return authCtx, nil
}

// Logout revokes the session behind token.
func (s *AccountService) Logout(ctx context.Context, token string, authCtx *model.AuthContext) error {
	if authCtx == nil {
		return ErrInvalidSession
	}
	if s.cache != nil {
		if err := s.cache.DeleteSession(ctx, auth.HashToken(token)); err != nil {
			s.logger.Warn("session cache delete failed", "error", err)
		}
	}
	if err := s.store.RevokeSession(ctx, authCtx.SessionID); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrInvalidSession
		}
		return err
	}
	return nil
}

// Me returns the profile of accountID with today's free usage of identity.
func (s *AccountService) Me(ctx context.Context, accountID, identity string) (*Profile, error) {
	account, err := s.store.GetAccountByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	usage, err := s.usage.Usage(ctx, identity, accountID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Username:       account.Username,
		GenerateQuota:  usage.PaidQuota,
		DailyFreeUsed:  usage.FreeUsed,
		DailyFreeTotal: usage.FreeTotal,
	}, nil
}

// Pay credits the configured package when amountRMB matches it and returns
// the new paid balance. Payment capture is simulated.
func (s *AccountService) Pay(ctx context.Context, accountID string, amountRMB int) (int, error) {
	if amountRMB != s.pkg.AmountRMB {
		return 0, ErrUnsupportedPackage
	}

	payment := &model.PaymentTransaction{
		ID:         ulid.Make().String(),
		AccountID:  accountID,
		AmountRMB:  amountRMB,
		QuotaAdded: s.pkg.Quota,
		CreatedAt:  s.now(),
	}
	balance, err := s.store.CreditPayment(ctx, payment)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}

	if s.events != nil {
		s.events.PublishAsync(ctx, &model.LedgerEvent{
			Kind:       model.LedgerPayment,
			AccountID:  accountID,
			Delta:      payment.QuotaAdded,
			Detail:     fmt.Sprintf("payment %s: %d RMB", payment.ID, amountRMB),
			OccurredAt: payment.CreatedAt,
		})
	}
	s.logger.Info("payment credited", "account_id", accountID, "payment_id", payment.ID, "quota_added", payment.QuotaAdded, "balance", balance)
	return balance, nil
}

// Package returns the configured payment package.
func (s *AccountService) Package() model.PaymentPackage {
	return s.pkg
}
