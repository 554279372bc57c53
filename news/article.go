package news

import (
	"strings"
	"time"
)

// Item is one entry of the JSON feed.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Link        string `json:"link"`
	GUID        string `json:"guid,omitempty"`
	PubDate     string `json:"pubDate"`
}

// Feed is the RSS-to-JSON envelope.
type Feed struct {
	Status string `json:"status"`
	Items  []Item `json:"items"`
}

// Article is a matched, sanitised feed item.
type Article struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	Published   time.Time `json:"pubDate"`
	Description string    `json:"description"`
}

// id identifies an article for de-duplication.
func (i Item) id() string {
	switch {
	case i.Link != "":
		return i.Link
	case i.GUID != "":
		return i.GUID
	default:
		return i.Title
	}
}

var pubDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// ParsePubDate accepts the date formats seen in RSS-to-JSON feeds. Dates
// without a zone are read as UTC. Unparseable dates yield the zero time.
func ParsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
