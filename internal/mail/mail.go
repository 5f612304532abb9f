// Package mail hands rendered reports to a mail transport.
package mail

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"alloctrack/internal/core"
	"alloctrack/internal/log"
)

// Message is one outgoing mail.
type Message struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
	HTML    string   `json:"html"`
}

// Validate checks recipients and body.
func (m Message) Validate() error {
	if len(recipients(m.To)) == 0 {
		return core.ErrEmptyRecipients
	}
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.HTML) == "" {
		return &core.ValidationError{Field: "body", Reason: "empty"}
	}
	return nil
}

// Receipt is the transport's answer for one message.
type Receipt struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func failed(err error) Receipt {
	return Receipt{Success: false, Error: err.Error()}
}

// Mailer sends messages. A non-nil error always comes with a failed receipt.
type Mailer interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// LogMailer only logs messages. It stands in when no transport is configured.
type LogMailer struct {
	logger *log.Logger
}

// NewLogMailer returns a LogMailer writing to logger.
func NewLogMailer(logger *log.Logger) *LogMailer {
	if logger == nil {
		logger = log.Discard()
	}
	return &LogMailer{logger: logger.WithComponent(log.ComponentMail)}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := msg.Validate(); err != nil {
		return failed(err), err
	}
	id := uuid.NewString()
	m.logger.InfoContext(ctx, "Mail transport not configured, message logged only",
		log.FieldRecipients, recipients(msg.To),
		"subject", msg.Subject,
		log.FieldMessageID, id)
	return Receipt{Success: true, MessageID: id}, nil
}

func recipients(to []string) []string {
	out := make([]string, 0, len(to))
	for _, addr := range to {
		if a := strings.TrimSpace(addr); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// ParseRecipients splits a comma separated address list.
func ParseRecipients(s string) []string {
	return recipients(strings.Split(s, ","))
}

func wrap(op string, err error) error {
	return fmt.Errorf("mail %s: %w", op, err)
}
