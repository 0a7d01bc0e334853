package shorturl

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("short url not found")
	ErrDuplicateCode      = errors.New("short code already exists")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique short code")
)

type ShortURL struct {
	ID          int64     `json:"id"`
	Code        string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	AccessCount int64     `json:"access_count"`
	CreatedAt   time.Time `json:"created_at"`
}
