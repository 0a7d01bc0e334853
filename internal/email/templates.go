package email

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/redmonkez12/go-shortener-api/internal/onetime"
)

const layout = `
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            color: #333;
            max-width: 600px;
            margin: 0 auto;
            padding: 20px;
        }
        .header {
            background-color: #4F46E5;
            color: white;
            padding: 20px;
            text-align: center;
            border-radius: 5px 5px 0 0;
        }
        .content {
            background-color: #f9f9f9;
            padding: 30px;
            border-radius: 0 0 5px 5px;
        }
        .button {
            display: inline-block;
            background-color: #4F46E5;
            color: white !important;
            padding: 12px 30px;
            text-decoration: none;
            border-radius: 5px;
            margin: 20px 0;
        }
        .footer {
            margin-top: 30px;
            font-size: 12px;
            color: #666;
            text-align: center;
        }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Title}}</h1>
    </div>
    <div class="content">
        <h2>{{.Heading}}</h2>
        <p>{{.Intro}}</p>

        <a href="{{.Link}}" class="button" style="color: white !important;">{{.Button}}</a>

        <p>Or copy and paste this link into your browser:</p>
        <p style="word-break: break-all; color: #4F46E5;">{{.Link}}</p>

        <p style="margin-top: 30px;">{{.Ignore}}</p>
    </div>
    <div class="footer">
        {{if .Expiry}}<p>This link will expire in {{.Expiry}}.</p>{{end}}
        <p>&copy; 2026 Shortener. All rights reserved.</p>
    </div>
</body>
</html>
`

var page = template.Must(template.New("email").Parse(layout))

type pageData struct {
	Title   string
	Heading string
	Intro   string
	Button  string
	Ignore  string
	Link    string
	Expiry  string
}

// Renderer turns token messages into HTML bodies
type Renderer struct {
	verificationTTL time.Duration
	resetTTL        time.Duration
}

func NewRenderer(verificationTTL, resetTTL time.Duration) *Renderer {
	return &Renderer{verificationTTL: verificationTTL, resetTTL: resetTTL}
}

func (r *Renderer) Render(msg onetime.Message) (string, error) {
	var data pageData
	switch msg.Purpose {
	case onetime.PurposeVerification:
		data = pageData{
			Title:   "Welcome!",
			Heading: "Verify your email address",
			Intro:   "Thank you for signing up! Please click the button below to verify your email address.",
			Button:  "Verify Email Address",
			Ignore:  "If you didn't create an account, you can safely ignore this email.",
			Expiry:  humanize(r.verificationTTL),
		}
	case onetime.PurposeReset:
		data = pageData{
			Title:   "Password Reset Request",
			Heading: "Reset your password",
			Intro:   "You requested to reset your password. Click the button below to create a new password.",
			Button:  "Reset Password",
			Ignore:  "If you didn't request a password reset, you can safely ignore this email. Your password will remain unchanged.",
			Expiry:  humanize(r.resetTTL),
		}
	default:
		return "", fmt.Errorf("unknown message purpose %q", msg.Purpose)
	}
	data.Link = msg.Link

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// humanize renders whole hours or minutes. Zero means the link never expires.
func humanize(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return d.String()
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
