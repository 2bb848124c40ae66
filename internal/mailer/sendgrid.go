package mailer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Sendgrid delivers messages through the SendGrid v3 mail send API.
type Sendgrid struct {
	cfg     Config
	baseURL string
}

func NewSendgrid(cfg Config) *Sendgrid {
	return &Sendgrid{cfg: cfg}
}

func (s *Sendgrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = headerValue(msg.Subject)
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail("", headerValue(to)))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(s.cfg.FromName, s.cfg.FromAddress))
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body))
	return m
}

func (s *Sendgrid) Send(ctx context.Context, msg Message) error {
	client := sendgrid.NewSendClient(s.cfg.SendgridAPIKey)
	if s.baseURL != "" {
		client.BaseURL = s.baseURL
	}

	res, err := client.SendWithContext(ctx, s.prepare(msg))
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
