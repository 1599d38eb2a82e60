package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

// LogSender is the default wiring for every channel: it logs the message
// that a real provider would deliver. Provider transports are external
// collaborators and swap in behind the Sender interface.
type LogSender struct {
	Channel models.Channel
}

func (s *LogSender) Send(_ context.Context, r Recipient, e *models.Emergency) error {
	slog.Info("notification delivered",
		"channel", s.Channel,
		"recipient", r.ID,
		"kind", r.Kind,
		"emergency", e.ID,
		"message", AlertMessage(e),
	)
	return nil
}

// DefaultSenders wires a LogSender for each supported channel.
func DefaultSenders() map[models.Channel]Sender {
	return map[models.Channel]Sender{
		models.ChannelSMS:   &LogSender{Channel: models.ChannelSMS},
		models.ChannelPush:  &LogSender{Channel: models.ChannelPush},
		models.ChannelVoice: &LogSender{Channel: models.ChannelVoice},
	}
}

// AlertMessage renders the human-readable alert text shared by all
// channels.
func AlertMessage(e *models.Emergency) string {
	return fmt.Sprintf("EMERGENCY [%s/%s]: user %s at (%.4f, %.4f)",
		e.Type, e.Priority, e.UserID, e.Location.Latitude, e.Location.Longitude)
}
