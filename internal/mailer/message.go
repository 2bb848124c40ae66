package mailer

import (
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"
)

// Message is a single plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Config describes the sender identity and the credentials of the transport.
type Config struct {
	FromName    string
	FromAddress string

	Host     string
	Port     int
	Username string
	Password string

	SendgridAPIKey string
}

func (c *Config) from() string {
	return (&mail.Address{Name: c.FromName, Address: c.FromAddress}).String()
}

// formatMessage renders msg as an RFC 5322 message with CRLF line endings.
func formatMessage(cfg *Config, msg Message, now time.Time) string {
	to := make([]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = headerValue(addr)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", cfg.from())
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", headerValue(msg.Subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(crlf(msg.Body))
	return b.String()
}

// headerValue removes line breaks so values cannot inject extra headers.
func headerValue(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(strings.TrimSpace(s))
}

func crlf(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.ReplaceAll(s, "\n", "\r\n")
}
