// Package email delivers transactional mail. The hosted identity provider
// sends its own messages; this package backs the local development provider's
// password-reset flow.
package email

import "context"

// EmailSender delivers transactional email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}
