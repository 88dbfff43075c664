// Package email sends transactional mail.
package email

import "context"

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// NoOpProvider drops mail. Used in tests and when SMTP is not configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
