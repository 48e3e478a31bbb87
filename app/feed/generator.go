package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"sort"
	"time"

	"github.com/lysyi3m/slot-comb/app/database"
	"github.com/lysyi3m/slot-comb/app/slots"
)

type Options struct {
	// SelfLink is the public URL of the feed itself.
	SelfLink    string
	BookingLink string
	Version     string
}

// Generator renders the currently available golden slots as RSS 2.0.
type Generator struct {
	opts Options
}

func NewGenerator(opts Options) *Generator {
	return &Generator{opts: opts}
}

// Run writes one item per available golden record, newest sighting first.
// Other records are ignored.
func (g *Generator) Run(records []database.Appointment, now time.Time) (string, error) {
	var golden []database.Appointment
	for _, r := range records {
		if r.Category == slots.CategoryGolden && r.Available {
			golden = append(golden, r)
		}
	}
	sort.SliceStable(golden, func(i, j int) bool {
		return golden[i].FirstSeenAt.After(golden[j].FirstSeenAt)
	})

	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", "Golden appointment slots", 4)
	g.writeElement(&buf, "link", g.opts.BookingLink, 4)
	g.writeElement(&buf, "description", "Short-notice appointment openings currently available", 4)

	if g.opts.SelfLink != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(g.opts.SelfLink)))
	}

	lastBuildDate := now
	if len(golden) > 0 {
		lastBuildDate = golden[0].FirstSeenAt
	}
	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("Slot-Comb/%s", g.opts.Version), 4)

	for _, r := range golden {
		g.writeItem(&buf, r)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, r database.Appointment) {
	slot := r.Slot()

	buf.WriteString("    <item>\n")

	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(r.ID))
	buf.WriteString("</guid>\n")

	g.writeElement(buf, "title", fmt.Sprintf("%s: %s at %s", r.Office, slot.LongDate(), slot.Clock()), 6)

	link := r.BookingReference
	if link == "" {
		link = g.opts.BookingLink
	}
	g.writeElement(buf, "link", link, 6)

	g.writeElement(buf, "description", fmt.Sprintf("%s has an opening on %s at %s (last seen %s).",
		r.Office, slot.LongDate(), slot.Clock(), r.LastSeenAt.Format(time.RFC1123Z)), 6)
	g.writeElement(buf, "pubDate", r.FirstSeenAt.Format(time.RFC1123Z), 6)
	g.writeElement(buf, "category", r.Office, 6)

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}
