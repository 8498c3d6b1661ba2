// ABOUTME: Normalizes raw page text into canonical record values
// ABOUTME: Amount, probability and date parsing plus Lightning URL recognition
package scrape

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/sfcrm/models"
)

var (
	nonNumeric   = regexp.MustCompile(`[^0-9.\-]`)
	leadingInt   = regexp.MustCompile(`^-?[0-9]+`)
	whitespace   = regexp.MustCompile(`\s+`)
	recordURL    = regexp.MustCompile(`/lightning/r/([A-Za-z_]+)/([^/?#]+)`)
	objectURL    = regexp.MustCompile(`/lightning/o/([A-Za-z_]+)/`)
	kanbanMarker = regexp.MustCompile(`(?i)kanban`)
)

// NormalizeText collapses runs of whitespace and trims.
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// TextOrNull returns a string value, or null when s is blank.
func TextOrNull(s string) models.Value {
	s = NormalizeText(s)
	if s == "" {
		return models.Null()
	}
	return models.String(s)
}

// ParseAmount strips currency symbols and separators. Unparsable input is null.
func ParseAmount(raw string) models.Value {
	numeric := nonNumeric.ReplaceAllString(raw, "")
	if numeric == "" {
		return models.Null()
	}
	f, err := strconv.ParseFloat(numeric, 64)
	if err != nil {
		return models.Null()
	}
	return models.Number(f)
}

// ParseProbability reads the leading integer of a percentage like "45%".
func ParseProbability(raw string) models.Value {
	numeric := nonNumeric.ReplaceAllString(raw, "")
	m := leadingInt.FindString(numeric)
	if m == "" {
		return models.Null()
	}
	n, err := strconv.ParseInt(m, 10, 64)
	if err != nil {
		return models.Null()
	}
	return models.Int(int(n))
}

// dateLayouts are the formats Lightning renders dates in. Dates without a
// zone are read as UTC.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"1/2/2006",
	"1/2/2006, 3:04 PM",
	"1/2/2006 3:04 PM",
	"2/1/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"2006/01/02",
}

// ISOLayout matches the millisecond UTC form used for scraped dates.
const ISOLayout = "2006-01-02T15:04:05.000Z"

// ParseDate converts a rendered date into an ISO timestamp string, or null.
func ParseDate(raw string) models.Value {
	raw = NormalizeText(raw)
	if raw == "" {
		return models.Null()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return models.String(t.UTC().Format(ISOLayout))
		}
	}
	return models.Null()
}

// IDFromURL returns the record id in a Lightning record URL
// (/lightning/r/<Object>/<id>/view) when the object matches.
func IDFromURL(rawURL, object string) string {
	m := recordURL.FindStringSubmatch(rawURL)
	if m == nil || !strings.EqualFold(m[1], object) {
		return ""
	}
	return m[2]
}

// PageKind classifies a Lightning URL.
type PageKind string

const (
	PageUnknown           PageKind = "unknown"
	PageOpportunityDetail PageKind = "opportunity-detail"
	PageOpportunityList   PageKind = "opportunity-list"
	PageOpportunityKanban PageKind = "opportunity-kanban"
	PageAccountDetail     PageKind = "account-detail"
)

// DetectPage decides which reader applies to a page URL.
func DetectPage(rawURL string) PageKind {
	if m := recordURL.FindStringSubmatch(rawURL); m != nil {
		switch strings.ToLower(m[1]) {
		case "opportunity":
			return PageOpportunityDetail
		case "account":
			return PageAccountDetail
		}
		return PageUnknown
	}
	if m := objectURL.FindStringSubmatch(rawURL); m != nil && strings.EqualFold(m[1], "opportunity") {
		if kanbanMarker.MatchString(rawURL) {
			return PageOpportunityKanban
		}
		if strings.Contains(rawURL, "/list") || strings.Contains(rawURL, "/home") {
			return PageOpportunityList
		}
	}
	return PageUnknown
}

// ObjectTypeFromURL maps a Lightning record URL to an object type.
func ObjectTypeFromURL(rawURL string) (models.ObjectType, bool) {
	m := recordURL.FindStringSubmatch(rawURL)
	if m == nil {
		if m = objectURL.FindStringSubmatch(rawURL); m == nil {
			return "", false
		}
	}
	t, err := models.ParseObjectType(m[1])
	if err != nil {
		return "", false
	}
	return t, true
}
