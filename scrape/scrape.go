// ABOUTME: Entry point that picks a reader by page URL and parses the HTML
// ABOUTME: Produces a batch of records for one object type
package scrape

import (
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/net/html"

	"github.com/harperreed/sfcrm/models"
)

// ErrUnrecognizedPage means no reader applies to the page URL.
var ErrUnrecognizedPage = errors.New("unrecognized page")

// Batch is what one page yielded.
type Batch struct {
	Kind       PageKind
	ObjectType models.ObjectType
	Records    []models.Record
}

// Page parses r as the page at pageURL and reads whatever records it holds.
func Page(r io.Reader, pageURL string, now time.Time) (Batch, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return Batch{}, fmt.Errorf("failed to parse page: %w", err)
	}
	return Document(doc, pageURL, now)
}

// Document reads an already parsed page.
func Document(doc *html.Node, pageURL string, now time.Time) (Batch, error) {
	kind := DetectPage(pageURL)
	b := Batch{Kind: kind, ObjectType: models.TypeOpportunity}
	switch kind {
	case PageOpportunityList:
		b.Records = ReadListTable(doc, pageURL, now)
	case PageOpportunityKanban:
		b.Records = ReadKanban(doc, pageURL, now)
	case PageOpportunityDetail:
		if r, ok := ReadOpportunityDetail(doc, pageURL, now); ok {
			b.Records = []models.Record{r}
		}
	case PageAccountDetail:
		b.ObjectType = models.TypeContact
		b.Records = ReadRelatedContacts(doc, pageURL, now)
	default:
		return Batch{Kind: kind}, fmt.Errorf("%w: %s", ErrUnrecognizedPage, pageURL)
	}
	return b, nil
}
