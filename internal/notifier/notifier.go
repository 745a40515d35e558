// Package notifier delivers human-facing alerts. Failures are logged
// and swallowed: notification problems must never disturb trading.
package notifier

// Notifier sends a plain-text message to an external channel.
type Notifier interface {
	SendText(text string) error
}

// Noop discards every message.
type Noop struct{}

func (Noop) SendText(string) error { return nil }
