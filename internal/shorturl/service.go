package shorturl

import (
	"context"
	"errors"
	"fmt"

	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/shortcode"
)

const (
	DefaultMaxAttempts = 10
	DefaultListLimit   = 100
	MaxListLimit       = 100
)

// Store is the persistence the service needs
type Store interface {
	ExistsByCode(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, code, originalURL string) (*ShortURL, error)
	List(ctx context.Context, offset, limit int) ([]*ShortURL, error)
	GetByID(ctx context.Context, id int64) (*ShortURL, error)
	GetByCode(ctx context.Context, code string) (*ShortURL, error)
	Delete(ctx context.Context, id int64) error
	IncrementAccess(ctx context.Context, code string) (*ShortURL, error)
}

// CodeGenerator produces candidate codes
type CodeGenerator interface {
	Generate() (string, error)
	Length() int
}

// Service implements the short URL use cases
type Service struct {
	store       Store
	codes       CodeGenerator
	validator   *Validator
	maxAttempts int
	logger      *logging.Logger
}

func NewService(store Store, codes CodeGenerator, validator *Validator, maxAttempts int, logger *logging.Logger) *Service {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Service{
		store:       store,
		codes:       codes,
		validator:   validator,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Create validates rawURL and stores it under a fresh code. Codes already in
// use, whether seen up front or lost to a concurrent insert, are retried up
// to maxAttempts times.
func (s *Service) Create(ctx context.Context, rawURL string) (*ShortURL, error) {
	originalURL, err := s.validator.Validate(rawURL)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}

		exists, err := s.store.ExistsByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			s.logger.Debug("short code collision", "attempt", attempt)
			continue
		}

		created, err := s.store.Create(ctx, code, originalURL)
		if err != nil {
			if errors.Is(err, ErrDuplicateCode) {
				s.logger.Debug("short code lost insert race", "attempt", attempt)
				continue
			}
			return nil, err
		}
		return created, nil
	}

	s.logger.Error("short code space exhausted", "attempts", s.maxAttempts, "length", s.codes.Length())
	return nil, ErrCodeSpaceExhausted
}

// List returns a page of mappings. A non-positive limit selects the default.
func (s *Service) List(ctx context.Context, offset, limit int) ([]*ShortURL, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.store.List(ctx, max(offset, 0), limit)
}

func (s *Service) Get(ctx context.Context, id int64) (*ShortURL, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.store.Delete(ctx, id)
}

// Resolve returns the mapping for code and counts the access. A stored URL
// that has since become blocked is refused and not counted.
func (s *Service) Resolve(ctx context.Context, code string) (*ShortURL, error) {
	if !shortcode.Storable(code) {
		return nil, ErrNotFound
	}

	found, err := s.store.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := s.validator.Validate(found.OriginalURL); err != nil {
		s.logger.Warn("refusing to resolve unsafe url", "code", code, "error", err)
		return nil, ErrBlockedDomain
	}

	return s.store.IncrementAccess(ctx, code)
}
