package email

import "context"

//go:generate mockgen -destination=mocks/mock_provider.go -package=mocks . Provider

// Provider delivers a single HTML message to one or more recipients.
type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
}

// NoOpProvider discards every message. Used when SMTP is not configured.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}
