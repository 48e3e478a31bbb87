package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"github.com/lysyi3m/slot-comb/app/slots"
)

//go:embed templates/*.html
var templateFS embed.FS

var alertTemplate = template.Must(template.ParseFS(templateFS, "templates/golden_alert.html"))

// Alert is one new-golden event addressed to one recipient.
type Alert struct {
	Recipient   string
	Office      string
	Slot        slots.Slot
	BookingLink string
}

func (a Alert) Subject() string {
	return fmt.Sprintf("⚡ %s — %s at %s — Book Now", a.Office, a.Slot.LongDate(), a.Slot.Clock())
}

func (a Alert) HTML() (string, error) {
	var buf bytes.Buffer
	err := alertTemplate.Execute(&buf, struct {
		Office, Date, Time, BookingLink string
	}{a.Office, a.Slot.LongDate(), a.Slot.Clock(), a.BookingLink})
	if err != nil {
		return "", fmt.Errorf("failed to render alert: %w", err)
	}
	return buf.String(), nil
}
