package mailer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Console writes messages to w instead of delivering them. Used in
// development when no mail credentials are configured.
type Console struct {
	mu  sync.Mutex
	w   io.Writer
	cfg Config
}

func NewConsole(w io.Writer, cfg Config) *Console {
	return &Console{w: w, cfg: cfg}
}

func (c *Console) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := fmt.Fprintf(c.w, "=== EMAIL WOULD BE SENT ===\n%s\n=== END EMAIL ===\n", formatMessage(&c.cfg, msg, time.Now()))
	return err
}
