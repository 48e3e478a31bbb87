package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

const DefaultBookingURL = "https://mainebmvappt.cxmflow.com/Appointment/Index/2c052fc7-571f-4b76-9790-7e91f103c408"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/slots.db" description:"SQLite database file"`

	// HTTP surface
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	BaseUrl      string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://slots.example.com)"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Remote source
	BookingURL       string   `long:"booking-url" env:"BOOKING_URL" default:"https://mainebmvappt.cxmflow.com/Appointment/Index/2c052fc7-571f-4b76-9790-7e91f103c408" description:"Booking entry page, also stored as the booking reference"`
	SlotsURLTemplate string   `long:"slots-url-template" env:"SLOTS_URL_TEMPLATE" description:"Per-office slot page URL, {office} is replaced (defaults to <booking-url>?office={office})"`
	OfficesFile      string   `long:"offices-file" env:"OFFICES_FILE" description:"Optional YAML office catalog"`
	Offices          []string `long:"office" env:"OFFICES" env-delim:"," default:"Augusta" default:"Bangor" default:"Calais" default:"Caribou" default:"Ellsworth" default:"Kennebunk" default:"Lewiston" default:"Portland" default:"Rockland" default:"Rumford" default:"Scarborough" default:"Springvale" default:"Topsham" description:"Office to poll (repeatable)"`
	UserAgent        string   `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36" description:"User agent string for HTTP requests"`
	DebugCapture     bool     `long:"debug-capture" env:"DEBUG_CAPTURE" description:"Save every fetched page to the debug directory"`
	DebugDir         string   `long:"debug-dir" env:"DEBUG_DIR" default:"./debug" description:"Directory for captured pages"`

	// Polling policy
	GoldenThresholdDays int `long:"golden-threshold" env:"GOLDEN_THRESHOLD_DAYS" default:"8" description:"Slots fewer than this many days away are golden"`
	ScrapeInterval      int `long:"scrape-interval" env:"SCRAPE_INTERVAL" default:"600" description:"Pause between runs in seconds"`
	OfficeDelay         int `long:"office-delay" env:"OFFICE_DELAY" default:"2" description:"Pause between offices in seconds"`
	OfficeTimeout       int `long:"office-timeout" env:"OFFICE_TIMEOUT" default:"60" description:"Upper bound for one office in seconds"`
	OfficeRetries       int `long:"office-retries" env:"OFFICE_RETRIES" default:"0" description:"Navigation retries per office"`

	// Notification channel
	ResendAPIKey string `long:"resend-api-key" env:"RESEND_API_KEY" description:"Resend API key, alerts are only logged when empty"`
	FromEmail    string `long:"from-email" env:"FROM_EMAIL" default:"Maine BMV Slots <alerts@mainebmvslots.com>" description:"Sender address for alerts"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs parses the given arguments instead of os.Args when args is non-nil.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		Port:                raw.Port,
		BaseUrl:             raw.BaseUrl,
		APIAccessKey:        raw.APIAccessKey,
		BookingURL:          raw.BookingURL,
		SlotsURLTemplate:    cmp.Or(raw.SlotsURLTemplate, raw.BookingURL+"?office={office}"),
		OfficesFile:         raw.OfficesFile,
		Offices:             normalizeOffices(raw.Offices),
		UserAgent:           raw.UserAgent,
		DebugCapture:        raw.DebugCapture,
		DebugDir:            raw.DebugDir,
		GoldenThresholdDays: raw.GoldenThresholdDays,
		ScrapeInterval:      raw.ScrapeInterval,
		OfficeDelay:         raw.OfficeDelay,
		OfficeTimeout:       raw.OfficeTimeout,
		OfficeRetries:       raw.OfficeRetries,
		ResendAPIKey:        raw.ResendAPIKey,
		FromEmail:           raw.FromEmail,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(c *Cfg) error {
	if c.GoldenThresholdDays < 1 {
		return fmt.Errorf("golden threshold must be at least 1 day, got %d", c.GoldenThresholdDays)
	}
	if c.ScrapeInterval < 1 {
		return fmt.Errorf("scrape interval must be at least 1 second, got %d", c.ScrapeInterval)
	}
	if c.OfficeTimeout < 1 {
		return fmt.Errorf("office timeout must be at least 1 second, got %d", c.OfficeTimeout)
	}
	if c.OfficeDelay < 0 || c.OfficeRetries < 0 {
		return fmt.Errorf("office delay and retries must not be negative")
	}
	if len(c.Offices) == 0 && c.OfficesFile == "" {
		return fmt.Errorf("at least one office must be configured")
	}
	return nil
}

func normalizeOffices(offices []string) []string {
	seen := make(map[string]bool, len(offices))
	result := make([]string, 0, len(offices))
	for _, office := range offices {
		office = strings.TrimSpace(office)
		if office == "" || seen[office] {
			continue
		}
		seen[office] = true
		result = append(result, office)
	}
	return result
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
