package mailer

import (
	"context"
	"fmt"
	"os"
)

// Transport delivers one message. Implementations must honour ctx
// cancellation and deadlines.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

const (
	KindSMTP     = "smtp"
	KindSendgrid = "sendgrid"
	KindConsole  = "console"
)

// New returns the transport named by kind.
func New(kind string, cfg Config) (Transport, error) {
	switch kind {
	case KindSMTP, "":
		return NewSMTP(cfg), nil
	case KindSendgrid:
		return NewSendgrid(cfg), nil
	case KindConsole:
		return NewConsole(os.Stdout, cfg), nil
	default:
		return nil, fmt.Errorf("mailer: unknown transport %q", kind)
	}
}
