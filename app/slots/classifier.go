package slots

import "time"

const DefaultGoldenThresholdDays = 8

// Classifier splits slots into golden and future around a day threshold.
// The reference day is always passed in; nothing here reads the clock.
type Classifier struct {
	thresholdDays int
}

func NewClassifier(thresholdDays int) *Classifier {
	if thresholdDays <= 0 {
		thresholdDays = DefaultGoldenThresholdDays
	}
	return &Classifier{thresholdDays: thresholdDays}
}

func (c *Classifier) ThresholdDays() int {
	return c.thresholdDays
}

func DaysUntil(date, today time.Time) int {
	return int(Day(date).Sub(Day(today)) / (24 * time.Hour))
}

// Category is golden when the date is strictly closer than the threshold.
func (c *Classifier) Category(date, today time.Time) Category {
	if DaysUntil(date, today) < c.thresholdDays {
		return CategoryGolden
	}
	return CategoryFuture
}

// Run classifies every slot. Future observations carry no time of day.
func (c *Classifier) Run(office string, slots []Slot, today time.Time) []Observation {
	observations := make([]Observation, 0, len(slots))

	for _, s := range slots {
		category := c.Category(s.Date, today)
		if category == CategoryFuture {
			s.Time = ""
		}
		observations = append(observations, Observation{
			Office:   office,
			Slot:     s,
			Category: category,
		})
	}

	return observations
}
