package notify

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/slot-comb/app/slots"
)

type Dispatcher struct {
	channel     Channel
	bookingLink string
}

func NewDispatcher(channel Channel, bookingLink string) *Dispatcher {
	return &Dispatcher{channel: channel, bookingLink: bookingLink}
}

type Stats struct {
	Sent   int
	Failed int
}

// Dispatch sends one alert per new golden slot to every recipient. The
// recipients are expected to be already filtered for the office. A failed
// send is logged and skipped.
func (d *Dispatcher) Dispatch(ctx context.Context, office string, events []slots.Slot, recipients []string) Stats {
	var stats Stats
	if len(events) == 0 || len(recipients) == 0 {
		return stats
	}

	for _, slot := range events {
		for _, recipient := range recipients {
			if ctx.Err() != nil {
				slog.Warn("Alert delivery interrupted", "office", office, "error", ctx.Err())
				return stats
			}

			alert := Alert{
				Recipient:   recipient,
				Office:      office,
				Slot:        slot,
				BookingLink: d.bookingLink,
			}
			if err := d.channel.Send(ctx, alert); err != nil {
				stats.Failed++
				slog.Warn("Failed to deliver alert",
					"office", office,
					"recipient", recipient,
					"slot", slot.Key(),
					"error", err)
				continue
			}
			stats.Sent++
		}
	}

	slog.Info("Alerts dispatched", "office", office, "events", len(events), "sent", stats.Sent, "failed", stats.Failed)

	return stats
}
