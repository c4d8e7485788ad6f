// Package notify delivers transactional e-mail (verification links, magic
// links, password resets).
package notify

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/logging"
)

// Message is a plain-text e-mail.
type Message struct {
	To      string
	Subject string
	Body    string
	// Link is the actionable URL inside Body, kept separately for logging.
	Link string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of sending them. It is
// used in development when no SMTP relay is configured.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(l logging.Logger) *LogNotifier {
	return &LogNotifier{logger: l}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	n.logger.Info(ctx, "email (not sent)", "to", msg.To, "subject", msg.Subject, "link", msg.Link)
	return nil
}
