package notifications

import "context"

type WelcomeEmailInput struct {
	Email string
	Name  string
}

type EmailSequenceInput struct {
	UserID   string
	Sequence string
}

// Notifier is the provider boundary for outbound messaging. The worker
// is the only caller; HTTP handlers never talk to it directly.
type Notifier interface {
	SendWelcomeEmail(ctx context.Context, input WelcomeEmailInput) error
	StartEmailSequence(ctx context.Context, input EmailSequenceInput) error
}
