// Package notify tells departments about items forwarded to them.
package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/Cembrun/Checkbell-V2/internal/task"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type Notifier interface {
	Forwarded(ctx context.Context, from, to string, t task.Task) error
}

type Nop struct{}

func (Nop) Forwarded(context.Context, string, string, task.Task) error {
	return nil
}

type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridNotifier emails the configured address of the receiving department.
// Departments without an address are skipped.
type SendGridNotifier struct {
	client     sender
	from       *mail.Email
	recipients map[string]string
}

func NewSendGridNotifier(apiKey, fromName, fromAddress string, recipients map[string]string) *SendGridNotifier {
	return &SendGridNotifier{
		client:     sendgrid.NewSendClient(apiKey),
		from:       mail.NewEmail(fromName, fromAddress),
		recipients: recipients,
	}
}

func (n *SendGridNotifier) Forwarded(_ context.Context, from, to string, t task.Task) error {
	address, ok := n.recipients[to]
	if !ok || address == "" {
		return nil
	}

	subject := fmt.Sprintf("[CheckBell] Neue Aufgabe von %s: %s", from, t.Title)
	body := fmt.Sprintf("%s hat eine Aufgabe an %s weitergeleitet.\n\n%s\n\n%s", from, to, t.Title, t.Description)

	email := mail.NewSingleEmail(n.from, subject, mail.NewEmail(to, address), body, "")
	response, err := n.client.Send(email)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: status %d", response.StatusCode)
	}

	log.Printf("[%s] forward notification sent to %s (status: %d)", to, address, response.StatusCode)
	return nil
}
