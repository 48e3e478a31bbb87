package navigator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/lysyi3m/slot-comb/app/office"
)

const (
	entryMarkerSelector = ".QflowObjectItem"
	slotSelector        = ".ServiceAppointmentDateTime[data-datetime]"
	slotAttribute       = "data-datetime"

	maxPageSize = 10 << 20
)

// ErrUnexpectedPage means the source served a page the flow does not expect.
var ErrUnexpectedPage = errors.New("unexpected page")

// Navigator returns the raw slot strings one office currently offers, in
// page order.
type Navigator interface {
	Fetch(ctx context.Context, o office.Office) ([]string, error)
}

type Options struct {
	BookingURL   string
	UserAgent    string
	DebugCapture bool
	DebugDir     string
}

var _ Navigator = (*HTTPNavigator)(nil)

type HTTPNavigator struct {
	opts      Options
	transport http.RoundTripper
}

func NewHTTPNavigator(opts Options) *HTTPNavigator {
	return &HTTPNavigator{opts: opts, transport: http.DefaultTransport}
}

// Fetch walks the booking flow for one office: the entry page establishes
// the session, then the office's slot page is read. Each call uses a fresh
// cookie jar so offices never share session state.
func (n *HTTPNavigator) Fetch(ctx context.Context, o office.Office) ([]string, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	client := &http.Client{Transport: n.transport, Jar: jar}

	entry, err := n.load(ctx, client, o.Name, "welcome", n.opts.BookingURL)
	if err != nil {
		return nil, err
	}
	if entry.Find(entryMarkerSelector).Length() == 0 {
		n.captureError(o.Name, entry)
		return nil, fmt.Errorf("%w: %s not found on booking page", ErrUnexpectedPage, entryMarkerSelector)
	}

	page, err := n.load(ctx, client, o.Name, "slots", o.SlotsURL)
	if err != nil {
		return nil, err
	}

	var raw []string
	page.Find(slotSelector).Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr(slotAttribute); ok && strings.TrimSpace(v) != "" {
			raw = append(raw, v)
		}
	})

	slog.Debug("Office page read", "office", o.Name, "slots", len(raw))

	return raw, nil
}

func (n *HTTPNavigator) load(ctx context.Context, client *http.Client, officeName, step, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if n.opts.UserAgent != "" {
		req.Header.Set("User-Agent", n.opts.UserAgent)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s page: %w", step, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s page: %w", step, err)
	}

	if resp.StatusCode != http.StatusOK {
		n.capture(officeName, "ERROR", data)
		return nil, fmt.Errorf("%w: %s page returned %d", ErrUnexpectedPage, step, resp.StatusCode)
	}
	n.capture(officeName, step, data)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s page: %w", step, err)
	}

	return doc, nil
}

func (n *HTTPNavigator) captureError(officeName string, doc *goquery.Document) {
	if !n.opts.DebugCapture {
		return
	}
	html, err := doc.Html()
	if err != nil {
		slog.Warn("Failed to render page for capture", "office", officeName, "error", err)
		return
	}
	n.capture(officeName, "ERROR", []byte(html))
}

func (n *HTTPNavigator) capture(officeName, step string, data []byte) {
	if !n.opts.DebugCapture {
		return
	}

	if err := os.MkdirAll(n.opts.DebugDir, 0755); err != nil {
		slog.Warn("Failed to create debug directory", "dir", n.opts.DebugDir, "error", err)
		return
	}

	path := filepath.Join(n.opts.DebugDir, CaptureName(officeName, step))
	if err := os.WriteFile(path, data, 0644); err != nil {
		slog.Warn("Failed to write debug capture", "path", path, "error", err)
		return
	}

	slog.Debug("Debug capture written", "path", path)
}

// CaptureName is the file name used for one captured page.
func CaptureName(officeName, step string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, officeName)
	return name + "_" + step + ".html"
}
