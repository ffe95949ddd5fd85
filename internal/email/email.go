package email

import (
	"context"
	"fmt"
	"log/slog"
)

// Sender delivers the one-time login code to a user's inbox.
type Sender interface {
	SendLoginCode(ctx context.Context, to, code string) error
}

// Message is the rendered login code email shared by every Sender.
type Message struct {
	Subject  string
	TextBody string
	HTMLBody string
}

// LoginCodeMessage renders the email for code.
func LoginCodeMessage(code string) Message {
	return Message{
		Subject: "Your Habitual sign-in code",
		TextBody: fmt.Sprintf(
			"Your sign-in code is: %s\n\nEnter it on the login page to continue. The code expires in 15 minutes.",
			code,
		),
		HTMLBody: fmt.Sprintf(
			`<p>Your sign-in code is:</p><p style="font-size:24px;letter-spacing:4px"><strong>%s</strong></p><p>The code expires in 15 minutes.</p>`,
			code,
		),
	}
}

// LogSender writes codes to the log instead of sending them. Used in development.
type LogSender struct {
	Logger *slog.Logger
}

func (l LogSender) SendLoginCode(ctx context.Context, to, code string) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "login code", "to", to, "code", code)
	return nil
}
