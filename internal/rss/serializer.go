// Package rss renders feeds as RSS 2.0 documents.
package rss

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/bookfeed/internal/feed"
)

const (
	atomNamespace = "http://www.w3.org/2005/Atom"
	selfLinkType  = "application/rss+xml"

	channelDescriptionPrefix = "New book information feed from OpenBD API. Criteria: "
	criteriaSeparator        = ", "
	unknownTitle             = "(タイトル不明)"
	descriptionSeparator     = "\n\n"
)

// Config controls channel and item links.
type Config struct {
	// SiteLink is the channel <link>.
	SiteLink string
	// SelfBaseURL is joined with the feed ID for the atom:link self reference.
	SelfBaseURL string
	// ItemBaseURL is joined with the ISBN for each item <link>.
	ItemBaseURL string
	Language    string
	Generator   string
}

// Serializer turns a feed and its display list into an RSS document.
type Serializer struct {
	cfg   Config
	clock feed.Clock
}

// NewSerializer builds a Serializer, filling unset config values with defaults.
func NewSerializer(cfg Config, clock feed.Clock) *Serializer {
	if cfg.SiteLink == "" {
		cfg.SiteLink = "https://openbd.jp/"
	}
	if cfg.ItemBaseURL == "" {
		cfg.ItemBaseURL = "https://openbd.jp"
	}
	if cfg.SelfBaseURL == "" {
		cfg.SelfBaseURL = "http://localhost:8080/feeds"
	}
	if cfg.Language == "" {
		cfg.Language = "ja"
	}
	cfg.SelfBaseURL = strings.TrimRight(cfg.SelfBaseURL, "/")
	cfg.ItemBaseURL = strings.TrimRight(cfg.ItemBaseURL, "/")
	return &Serializer{cfg: cfg, clock: clock}
}

type document struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	AtomNS  string   `xml:"xmlns:atom,attr"`
	Channel channel  `xml:"channel"`
}

type channel struct {
	Title         string   `xml:"title"`
	Link          string   `xml:"link"`
	Description   string   `xml:"description"`
	Language      string   `xml:"language"`
	LastBuildDate string   `xml:"lastBuildDate"`
	Self          atomLink `xml:"atom:link"`
	Generator     string   `xml:"generator,omitempty"`
	Items         []item   `xml:"item"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
}

type item struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description cdata  `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        guid   `xml:"guid"`
}

// encoding/xml splits any "]]>" in a cdata field across two sections.
type cdata struct {
	Text string `xml:",cdata"`
}

type guid struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Serialize renders f with books in the given order. Output is byte-identical for equal
// input apart from lastBuildDate and undated items, which both use the clock.
func (s *Serializer) Serialize(f feed.Feed, books []feed.BookRecord) ([]byte, error) {
	if strings.TrimSpace(f.ID) == "" {
		return nil, &feed.SerializationError{FeedID: f.ID, Err: errors.New("feed id is required")}
	}
	now := s.clock.Now().UTC()

	doc := document{
		Version: "2.0",
		AtomNS:  atomNamespace,
		Channel: channel{
			Title:         f.Name,
			Link:          s.cfg.SiteLink,
			Description:   ChannelDescription(f.Criteria),
			Language:      s.cfg.Language,
			LastBuildDate: now.Format(time.RFC1123Z),
			Self: atomLink{
				Href: s.cfg.SelfBaseURL + "/" + url.PathEscape(f.ID),
				Rel:  "self",
				Type: selfLinkType,
			},
			Generator: s.cfg.Generator,
			Items:     make([]item, 0, len(books)),
		},
	}
	for _, b := range books {
		doc.Channel.Items = append(doc.Channel.Items, s.item(b, now))
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, &feed.SerializationError{FeedID: f.ID, Err: fmt.Errorf("encode xml: %w", err)}
	}
	if err := enc.Close(); err != nil {
		return nil, &feed.SerializationError{FeedID: f.ID, Err: fmt.Errorf("flush xml: %w", err)}
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func (s *Serializer) item(b feed.BookRecord, now time.Time) item {
	pub := now
	if t, ok := b.PublishedAt(); ok {
		pub = t
	}
	return item{
		Title:       ItemTitle(b),
		Link:        s.cfg.ItemBaseURL + "/" + url.PathEscape(b.ISBN13),
		Description: cdata{Text: xmlText(ItemDescription(b))},
		PubDate:     pub.UTC().Format(time.RFC1123Z),
		GUID:        guid{IsPermaLink: false, Value: b.ISBN13},
	}
}

// xmlText drops invalid UTF-8 and runes outside the XML 1.0 Char production.
// encoding/xml writes cdata text unescaped, so it must already be legal XML.
func xmlText(s string) string {
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return -1
	}, strings.ToValidUTF8(s, ""))
}

func isXMLChar(r rune) bool {
	switch {
	case r == '\t', r == '\n', r == '\r':
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	default:
		return r >= 0x10000 && r <= 0x10FFFF
	}
}

// ItemTitle renders "title volume / author (publisher)", omitting empty parts.
func ItemTitle(b feed.BookRecord) string {
	var sb strings.Builder
	if b.Title != "" {
		sb.WriteString(b.Title)
	} else {
		sb.WriteString(unknownTitle)
	}
	if b.Volume != "" {
		sb.WriteString(" " + b.Volume)
	}
	if b.Author != "" {
		sb.WriteString(" / " + b.Author)
	}
	if b.Publisher != "" {
		sb.WriteString(" (" + b.Publisher + ")")
	}
	return sb.String()
}

// ItemDescription renders the per-book block carried in CDATA.
func ItemDescription(b feed.BookRecord) string {
	parts := []string{"ISBN: " + b.ISBN13}
	if d := strings.TrimSpace(b.Description); d != "" {
		parts = append(parts, d)
	}
	if b.ClassificationCode != "" {
		parts = append(parts, "Cコード: "+b.ClassificationCode)
	}
	if b.CoverURL != "" {
		parts = append(parts, fmt.Sprintf(`<img src="%s" alt="表紙画像" style="max-width: 200px;">`, html.EscapeString(b.CoverURL)))
	}
	return strings.Join(parts, descriptionSeparator)
}

var modeLabels = map[feed.MatchMode]string{
	feed.MatchExact:  "完全一致",
	feed.MatchPrefix: "前方一致",
	feed.MatchSuffix: "後方一致",
}

// ChannelDescription lists each present criterion as one labeled clause.
func ChannelDescription(c feed.Criteria) string {
	var clauses []string
	if v := strings.TrimSpace(c.SeriesName); v != "" {
		clauses = append(clauses, "シリーズ名: "+v)
	}
	if v := strings.TrimSpace(c.TitleKeyword); v != "" {
		clauses = append(clauses, "書名キーワード: "+v)
	}
	if v := strings.TrimSpace(c.Publisher); v != "" {
		clauses = append(clauses, "出版社: "+v)
	}
	if v := strings.TrimSpace(c.ClassificationCode); v != "" {
		mode := c.NormalizedMode()
		label, ok := modeLabels[mode]
		if !ok {
			label = string(mode)
		}
		clauses = append(clauses, fmt.Sprintf("Cコード: %s (%s)", v, label))
	}
	return channelDescriptionPrefix + strings.Join(clauses, criteriaSeparator)
}
