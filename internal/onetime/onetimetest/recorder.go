// Package onetimetest provides a recording notifier for tests.
package onetimetest

import (
	"context"
	"net/url"
	"sync"

	"github.com/redmonkez12/go-shortener-api/internal/onetime"
)

// Recorder keeps every message it is asked to deliver
type Recorder struct {
	mu       sync.Mutex
	messages []onetime.Message

	// Err, when set, is returned from Notify after recording
	Err error
}

func (r *Recorder) Notify(_ context.Context, msg onetime.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return r.Err
}

func (r *Recorder) Messages() []onetime.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]onetime.Message(nil), r.messages...)
}

// LastToken extracts the token query parameter from the newest message
// addressed to email with the given purpose.
func (r *Recorder) LastToken(email string, purpose onetime.Purpose) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		m := r.messages[i]
		if m.To != email || m.Purpose != purpose {
			continue
		}
		u, err := url.Parse(m.Link)
		if err != nil {
			return ""
		}
		return u.Query().Get("token")
	}
	return ""
}
