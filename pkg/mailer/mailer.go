// Package mailer sends transactional email through SendGrid.
package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type Message struct {
	ToName  string
	ToEmail string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a message. Send is synchronous; callers decide whether to run it in a goroutine.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Nop drops messages; used when no API key is configured.
type Nop struct{}

func (Nop) Send(context.Context, Message) error { return nil }

type SendGrid struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	api        func(ctx context.Context, req rest.Request) (*rest.Response, error)
}

// New returns a SendGrid mailer, or Nop when key is empty.
func New(key, fromName, fromEmail string) Mailer {
	if key == "" {
		return Nop{}
	}
	return &SendGrid{
		key:        key,
		from:       sgmail.NewEmail(fromName, fromEmail),
		subjPrefix: "[" + fromName + "] ",
		api: func(ctx context.Context, req rest.Request) (*rest.Response, error) {
			return sendgrid.MakeRequestWithContext(ctx, req)
		},
	}
}

func (s *SendGrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if msg.ToEmail == "" {
		return nil
	}
	req := sendgrid.GetRequest(s.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := s.api(ctx, req)
	if err != nil {
		return errors.Wrap(err, "sendgrid request")
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	log.Debug().Str("section", "mailer").Str("to", msg.ToEmail).Str("subject", msg.Subject).Msg("email sent")
	return nil
}
