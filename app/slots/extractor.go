package slots

import (
	"log/slog"
	"strings"
	"time"
)

type Extractor struct {
	layout string
}

func NewExtractor() *Extractor {
	return &Extractor{layout: RawLayout}
}

// Run parses raw date-time strings in source order. Unparsable entries are
// logged and dropped; duplicates are kept.
func (e *Extractor) Run(office string, raw []string) []Slot {
	result := make([]Slot, 0, len(raw))

	for _, value := range raw {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		parsed, err := time.ParseInLocation(e.layout, value, time.UTC)
		if err != nil {
			slog.Warn("Failed to parse slot", "office", office, "raw", value, "error", err)
			continue
		}

		result = append(result, Slot{
			Date: Day(parsed),
			Time: parsed.Format(TimeLayout),
		})
	}

	return result
}
