package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/go-shortener-api/internal/config"
	"github.com/redmonkez12/go-shortener-api/internal/logging"
	"github.com/redmonkez12/go-shortener-api/internal/onetime"
	"github.com/redmonkez12/go-shortener-api/internal/queue"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

func TestRenderByPurpose(t *testing.T) {
	r := NewRenderer(24*time.Hour, time.Hour)

	body, err := r.Render(onetime.Message{
		Purpose: onetime.PurposeVerification,
		Link:    "https://app.example/verify?token=abc",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Verify your email address")
	assert.Contains(t, body, `href="https://app.example/verify?token=abc"`)
	assert.Contains(t, body, "expire in 24 hours")

	body, err = r.Render(onetime.Message{
		Purpose: onetime.PurposeReset,
		Link:    "https://app.example/reset?token=abc",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Reset your password")
	assert.Contains(t, body, "expire in 1 hour.")

	_, err = r.Render(onetime.Message{Purpose: "welcome"})
	assert.Error(t, err)
}

func TestRenderWithoutExpiry(t *testing.T) {
	body, err := NewRenderer(0, 0).Render(onetime.Message{Purpose: onetime.PurposeReset, Link: "https://x"})
	require.NoError(t, err)
	assert.NotContains(t, body, "will expire")
}

func TestRenderEscapesLink(t *testing.T) {
	body, err := NewRenderer(time.Hour, time.Hour).Render(onetime.Message{
		Purpose: onetime.PurposeVerification,
		Link:    `https://x/verify?token=<script>`,
	})
	require.NoError(t, err)
	assert.NotContains(t, body, "<script>")
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "", humanize(0))
	assert.Equal(t, "1 hour", humanize(time.Hour))
	assert.Equal(t, "30 minutes", humanize(30*time.Minute))
	assert.Equal(t, "1m30s", humanize(90*time.Second))
}

func TestSMTPSenderBuildsMessage(t *testing.T) {
	s := NewSMTPSender(config.EmailConfig{
		SMTPHost:     "smtp.example.com",
		SMTPPort:     "587",
		SMTPUser:     "mailer",
		SMTPPassword: "secret",
		FromAddress:  "no-reply@example.com",
	})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		assert.NotNil(t, a)
		return nil
	}

	require.NoError(t, s.Send(context.Background(), "a@x.com", "Verify your email", "<p>hi</p>"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "no-reply@example.com", gotFrom)
	assert.Equal(t, []string{"a@x.com"}, gotTo)

	msg := string(gotMsg)
	assert.True(t, strings.HasPrefix(msg, "From: no-reply@example.com\r\nTo: a@x.com\r\nSubject: Verify your email\r\n"))
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n\r\n<p>hi</p>")
}

func TestSMTPSenderWrapsErrors(t *testing.T) {
	s := NewSMTPSender(config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: "25"})
	s.sendMail = func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	}
	err := s.Send(context.Background(), "a@x.com", "s", "b")
	assert.ErrorContains(t, err, "connection refused")
}

func TestQueueNotifierToWorkerDelivery(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := queue.NewQueue(client, "queue:email")
	notifier := NewQueueNotifier(q)

	msg := onetime.Message{
		Purpose: onetime.PurposeVerification,
		To:      "a@x.com",
		Subject: "Verify your email",
		Link:    "https://app.example/verify?token=abc",
	}
	require.NoError(t, notifier.Notify(ctx, msg))

	sender := &fakeSender{}
	w := queue.NewWorker(q, logging.NewNopLogger(), time.Second)
	w.Handle(JobType, NewJobHandler(NewRenderer(24*time.Hour, time.Hour), sender))

	took, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, took)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "a@x.com", sender.sent[0].to)
	assert.Equal(t, "Verify your email", sender.sent[0].subject)
	assert.Contains(t, sender.sent[0].body, "https://app.example/verify?token=abc")
}

func TestJobHandlerRetriesOnlySendFailures(t *testing.T) {
	ctx := logging.WithLogger(context.Background(), logging.NewNopLogger())
	renderer := NewRenderer(time.Hour, time.Hour)

	failing := NewJobHandler(renderer, &fakeSender{err: errors.New("smtp down")})
	payload, err := json.Marshal(onetime.Message{Purpose: onetime.PurposeReset, To: "a@x.com"})
	require.NoError(t, err)
	assert.Error(t, failing(ctx, &queue.Job{Payload: payload}))

	ok := NewJobHandler(renderer, &fakeSender{})
	assert.NoError(t, ok(ctx, &queue.Job{Payload: json.RawMessage(`"not an object"`)}))

	unknown, err := json.Marshal(onetime.Message{Purpose: "welcome"})
	require.NoError(t, err)
	assert.NoError(t, ok(ctx, &queue.Job{Payload: unknown}))
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(logging.NewNopLogger()).Send(context.Background(), "a@x.com", "s", "b"))
}
