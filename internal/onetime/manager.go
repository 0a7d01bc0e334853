// Package onetime issues and consumes single-use tokens for email
// verification and password reset.
//
// Each user has one slot per purpose. Issuing overwrites the slot, so only
// the most recent token of a purpose is ever valid. Consuming clears the slot
// in the same storage operation that applies its effect. Only a SHA-256
// digest of each token is stored.
package onetime

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/user"
)

// Purpose identifies a token slot
type Purpose string

const (
	PurposeVerification Purpose = "verification"
	PurposeReset        Purpose = "reset"
)

const (
	tokenBytes      = 32
	dispatchTimeout = 5 * time.Second
)

// ErrNotFound covers unknown, already consumed and expired tokens alike
var ErrNotFound = errors.New("token not found")

// Store persists token digests in the user record
type Store interface {
	SetVerificationToken(ctx context.Context, userID uuid.UUID, digest string, expiresAt *time.Time) error
	SetResetToken(ctx context.Context, userID uuid.UUID, digest string, expiresAt *time.Time) error
	ConsumeVerificationToken(ctx context.Context, digest string, now time.Time) (*user.User, error)
	ConsumeResetToken(ctx context.Context, digest, passwordHash string, now time.Time) (*user.User, error)
}

// Message is an outbound notification carrying a token link
type Message struct {
	Purpose Purpose `json:"purpose"`
	To      string  `json:"to"`
	Subject string  `json:"subject"`
	Link    string  `json:"link"`
}

// Notifier delivers messages out of band. Implementations should return
// quickly; delivery itself may happen later.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Issued is a freshly generated token that has not been stored yet
type Issued struct {
	Token     string
	Digest    string
	ExpiresAt *time.Time
}

type Config struct {
	FrontendURL     string
	VerificationTTL time.Duration // 0 means no expiry
	ResetTTL        time.Duration // 0 means no expiry
}

// Manager owns the single-use token lifecycle
type Manager struct {
	store    Store
	notifier Notifier
	logger   *logging.Logger
	cfg      Config
	now      func() time.Time
	rand     io.Reader
}

// Option customizes a Manager
type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.rand = r }
}

func NewManager(store Store, notifier Notifier, logger *logging.Logger, cfg Config, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
		rand:     rand.Reader,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// New generates a token for purpose without storing it. Callers that create
// the owning record in the same write use this and call Notify afterwards.
func (m *Manager) New(purpose Purpose) (*Issued, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(m.rand, b); err != nil {
		return nil, fmt.Errorf("failed to generate %s token: %w", purpose, err)
	}
	tok := base64.RawURLEncoding.EncodeToString(b)

	var expiresAt *time.Time
	if ttl := m.ttl(purpose); ttl > 0 {
		t := m.now().Add(ttl)
		expiresAt = &t
	}

	return &Issued{Token: tok, Digest: Digest(tok), ExpiresAt: expiresAt}, nil
}

// IssueFor generates a token, stores it in u's slot for purpose and sends
// the notification. Dispatch failures are logged and do not undo issuance.
func (m *Manager) IssueFor(ctx context.Context, u *user.User, purpose Purpose) (string, error) {
	issued, err := m.New(purpose)
	if err != nil {
		return "", err
	}

	switch purpose {
	case PurposeVerification:
		err = m.store.SetVerificationToken(ctx, u.ID, issued.Digest, issued.ExpiresAt)
	case PurposeReset:
		err = m.store.SetResetToken(ctx, u.ID, issued.Digest, issued.ExpiresAt)
	default:
		return "", fmt.Errorf("unknown token purpose %q", purpose)
	}
	if err != nil {
		return "", fmt.Errorf("failed to store %s token: %w", purpose, err)
	}

	m.Notify(ctx, u.Email, purpose, issued.Token)
	return issued.Token, nil
}

// Notify submits the message for tok. It never fails the caller.
func (m *Manager) Notify(ctx context.Context, email string, purpose Purpose, tok string) {
	msg := m.message(email, purpose, tok)

	// The request may finish before the notifier does
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	if err := m.notifier.Notify(dispatchCtx, msg); err != nil {
		m.logger.Warn("failed to dispatch notification", "purpose", string(purpose), "email", email, "error", err)
	}
}

// ConsumeVerification marks the token owner verified and invalidates the token
func (m *Manager) ConsumeVerification(ctx context.Context, tok string) (*user.User, error) {
	if tok == "" {
		return nil, ErrNotFound
	}

	u, err := m.store.ConsumeVerificationToken(ctx, Digest(tok), m.now())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	return u, nil
}

// ConsumeReset sets the token owner's password hash and invalidates the token
func (m *Manager) ConsumeReset(ctx context.Context, tok, passwordHash string) (*user.User, error) {
	if tok == "" {
		return nil, ErrNotFound
	}

	u, err := m.store.ConsumeResetToken(ctx, Digest(tok), passwordHash, m.now())
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return u, nil
}

func (m *Manager) ttl(purpose Purpose) time.Duration {
	if purpose == PurposeReset {
		return m.cfg.ResetTTL
	}
	return m.cfg.VerificationTTL
}

func (m *Manager) message(email string, purpose Purpose, tok string) Message {
	q := url.Values{"token": {tok}}.Encode()
	if purpose == PurposeReset {
		return Message{
			Purpose: purpose,
			To:      email,
			Subject: "Reset your password",
			Link:    m.cfg.FrontendURL + "/reset?" + q,
		}
	}
	return Message{
		Purpose: purpose,
		To:      email,
		Subject: "Verify your email",
		Link:    m.cfg.FrontendURL + "/verify?" + q,
	}
}

// Digest is the stored form of a token
func Digest(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}
