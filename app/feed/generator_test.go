package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/slots"
	"github.com/mmcdole/gofeed"
)

func strPtr(s string) *string { return &s }

func testRecords() []database.Appointment {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	first := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)

	return []database.Appointment{
		{
			ID: "golden-1", Office: "Portland", AppointmentDate: day, AppointmentTime: strPtr("14:00:00"),
			Category: slots.CategoryGolden, Available: true, FirstSeenAt: first, LastSeenAt: first,
			BookingReference: "https://example.com/book",
		},
		{
			ID: "golden-2", Office: "Bangor & Brewer", AppointmentDate: day, AppointmentTime: strPtr("09:15:00"),
			Category: slots.CategoryGolden, Available: true, FirstSeenAt: first.Add(time.Hour), LastSeenAt: first.Add(time.Hour),
		},
		{
			ID: "gone", Office: "Portland", AppointmentDate: day, AppointmentTime: strPtr("15:00:00"),
			Category: slots.CategoryGolden, Available: false, FirstSeenAt: first, LastSeenAt: first,
		},
		{
			ID: "future", Office: "Portland", AppointmentDate: day.AddDate(0, 1, 0),
			Category: slots.CategoryFuture, Available: true, IsCurrentClosest: true, FirstSeenAt: first, LastSeenAt: first,
		},
	}
}

func TestGenerateRSS(t *testing.T) {
	generator := NewGenerator(Options{
		SelfLink:    "https://slots.example.com/feeds/golden",
		BookingLink: "https://example.com/default",
		Version:     "1.0.0",
	})

	rss, err := generator.Run(testRecords(), time.Now())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !strings.Contains(rss, `<?xml version="1.0" encoding="UTF-8"?>`) {
		t.Error("RSS should contain XML declaration")
	}
	if !strings.Contains(rss, `<atom:link href="https://slots.example.com/feeds/golden" rel="self"`) {
		t.Error("RSS should contain self link")
	}
	if !strings.Contains(rss, "<generator>Slot-Comb/1.0.0</generator>") {
		t.Error("RSS should contain generator")
	}

	feed, err := gofeed.NewParser().ParseString(rss)
	if err != nil {
		t.Fatalf("Generated RSS does not parse: %v", err)
	}

	if len(feed.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(feed.Items))
	}

	newest := feed.Items[0]
	if newest.GUID != "golden-2" {
		t.Errorf("Expected newest sighting first, got '%s'", newest.GUID)
	}
	if newest.Title != "Bangor & Brewer: March 1, 2026 at 9:15 AM" {
		t.Errorf("Unexpected title '%s'", newest.Title)
	}
	if newest.Link != "https://example.com/default" {
		t.Errorf("Expected fallback booking link, got '%s'", newest.Link)
	}

	older := feed.Items[1]
	if older.Link != "https://example.com/book" {
		t.Errorf("Expected record booking link, got '%s'", older.Link)
	}
	if len(older.Categories) != 1 || older.Categories[0] != "Portland" {
		t.Errorf("Expected office category, got %v", older.Categories)
	}
	if older.PublishedParsed == nil || !older.PublishedParsed.Equal(time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected pubDate of first sighting, got %v", older.PublishedParsed)
	}
}

func TestGenerateWithEmptyItems(t *testing.T) {
	generator := NewGenerator(Options{Version: "dev"})
	now := time.Date(2026, 2, 25, 10, 0, 0, 0, time.UTC)

	rss, err := generator.Run(nil, now)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if strings.Contains(rss, "<item>") {
		t.Error("RSS should not contain items")
	}
	if strings.Contains(rss, "atom:link href") {
		t.Error("RSS should omit the self link when none is configured")
	}
	if !strings.Contains(rss, "<lastBuildDate>"+now.Format(time.RFC1123Z)+"</lastBuildDate>") {
		t.Error("RSS should fall back to now for lastBuildDate")
	}

	if _, err := gofeed.NewParser().ParseString(rss); err != nil {
		t.Errorf("Generated RSS does not parse: %v", err)
	}
}
