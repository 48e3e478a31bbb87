package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath string

	// HTTP surface
	Port         string
	BaseUrl      string
	APIAccessKey string

	// Remote source
	BookingURL       string
	SlotsURLTemplate string
	OfficesFile      string
	Offices          []string
	UserAgent        string
	DebugCapture     bool
	DebugDir         string

	// Polling policy
	GoldenThresholdDays int
	ScrapeInterval      int // seconds
	OfficeDelay         int // seconds
	OfficeTimeout       int // seconds
	OfficeRetries       int

	// Notification channel
	ResendAPIKey string
	FromEmail    string

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

func (c *Cfg) ScrapeIntervalDuration() time.Duration {
	return time.Duration(c.ScrapeInterval) * time.Second
}

func (c *Cfg) OfficeDelayDuration() time.Duration {
	return time.Duration(c.OfficeDelay) * time.Second
}

func (c *Cfg) OfficeTimeoutDuration() time.Duration {
	return time.Duration(c.OfficeTimeout) * time.Second
}
