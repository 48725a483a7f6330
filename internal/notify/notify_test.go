package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/Cembrun/Checkbell-V2/internal/task"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (f *fakeSender) Send(email *mail.SGMailV3) (*rest.Response, error) {
	f.sent = append(f.sent, email)
	if f.err != nil {
		return nil, f.err
	}
	return &rest.Response{StatusCode: f.status}, nil
}

func newTestNotifier(s sender) *SendGridNotifier {
	n := NewSendGridNotifier("key", "CheckBell", "noreply@example.com", map[string]string{
		"Technik": "technik@example.com",
	})
	n.client = s
	return n
}

func TestSendGridNotifier_Forwarded(t *testing.T) {
	s := &fakeSender{status: 202}
	n := newTestNotifier(s)

	err := n.Forwarded(context.Background(), "Leitstand", "Technik", task.Task{Title: "Pumpe prüfen", Description: "Druck"})
	require.NoError(t, err)
	require.Len(t, s.sent, 1)

	email := s.sent[0]
	assert.Equal(t, "noreply@example.com", email.From.Address)
	assert.Contains(t, email.Subject, "Pumpe prüfen")
	assert.Contains(t, email.Subject, "Leitstand")
	require.Len(t, email.Personalizations, 1)
	assert.Equal(t, "technik@example.com", email.Personalizations[0].To[0].Address)
}

func TestSendGridNotifier_SkipsUnconfiguredDepartment(t *testing.T) {
	s := &fakeSender{status: 202}
	n := newTestNotifier(s)

	err := n.Forwarded(context.Background(), "Technik", "Logistik", task.Task{Title: "x"})
	assert.NoError(t, err)
	assert.Empty(t, s.sent)
}

func TestSendGridNotifier_Errors(t *testing.T) {
	t.Run("transport error", func(t *testing.T) {
		n := newTestNotifier(&fakeSender{err: errors.New("dial tcp: timeout")})

		err := n.Forwarded(context.Background(), "Leitstand", "Technik", task.Task{Title: "x"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to send email")
	})

	t.Run("error status", func(t *testing.T) {
		n := newTestNotifier(&fakeSender{status: 401})

		err := n.Forwarded(context.Background(), "Leitstand", "Technik", task.Task{Title: "x"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "status 401")
	})
}

func TestNop(t *testing.T) {
	var n Notifier = Nop{}
	assert.NoError(t, n.Forwarded(context.Background(), "a", "b", task.Task{}))
}
