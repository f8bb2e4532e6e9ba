package notifications

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

// LogNotifier stands in for a real email provider; it logs instead of
// sending. Env knobs let tests and local runs simulate a slow or
// failing provider.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) SendWelcomeEmail(ctx context.Context, in WelcomeEmailInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}

	log.Printf("notification.welcome_email email=%s name=%s", in.Email, in.Name)
	return nil
}

func (n *LogNotifier) StartEmailSequence(ctx context.Context, in EmailSequenceInput) error {
	if err := n.simulate(ctx); err != nil {
		return err
	}

	log.Printf("notification.email_sequence user=%s sequence=%s", in.UserID, in.Sequence)
	return nil
}

func (n *LogNotifier) simulate(ctx context.Context) error {
	if msStr := os.Getenv("NOTIFIER_SLEEP_MS"); msStr != "" {
		ms, _ := strconv.Atoi(msStr)
		if ms > 0 {
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if os.Getenv("NOTIFIER_FAIL") == "1" {
		return fmt.Errorf("provider down (simulated)")
	}

	return nil
}
