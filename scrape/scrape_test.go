// ABOUTME: Tests for value normalization and the Lightning page readers
// ABOUTME: Uses small inline HTML fixtures shaped like rendered Lightning markup
package scrape

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/sfcrm/models"
)

var scrapedAt = time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)

func TestParseAmount(t *testing.T) {
	assert.True(t, ParseAmount("$12,500.50").Equal(models.Number(12500.5)))
	assert.True(t, ParseAmount("USD -300").Equal(models.Number(-300)))
	assert.True(t, ParseAmount("").IsNull())
	assert.True(t, ParseAmount("n/a").IsNull())
	assert.True(t, ParseAmount("1.2.3").IsNull())
}

func TestParseProbability(t *testing.T) {
	assert.True(t, ParseProbability("45%").Equal(models.Int(45)))
	assert.True(t, ParseProbability("45.9%").Equal(models.Int(45)))
	assert.True(t, ParseProbability("--").IsNull())
	assert.True(t, ParseProbability("").IsNull())
}

func TestParseDate(t *testing.T) {
	tests := map[string]string{
		"2024-03-01":           "2024-03-01T00:00:00.000Z",
		"3/1/2024":             "2024-03-01T00:00:00.000Z",
		"Mar 1, 2024":          "2024-03-01T00:00:00.000Z",
		"2024-03-01T10:00:00Z": "2024-03-01T10:00:00.000Z",
	}
	for in, want := range tests {
		got := ParseDate(in)
		require.False(t, got.IsNull(), in)
		assert.Equal(t, want, got.Str(), in)
	}
	assert.True(t, ParseDate("someday").IsNull())
	assert.True(t, ParseDate("  ").IsNull())
}

func TestURLHelpers(t *testing.T) {
	u := "https://acme.lightning.force.com/lightning/r/Opportunity/006ABC/view"
	assert.Equal(t, "006ABC", IDFromURL(u, "Opportunity"))
	assert.Equal(t, "", IDFromURL(u, "Account"))

	ot, ok := ObjectTypeFromURL(u)
	require.True(t, ok)
	assert.Equal(t, models.TypeOpportunity, ot)

	assert.Equal(t, PageOpportunityDetail, DetectPage(u))
	assert.Equal(t, PageAccountDetail, DetectPage("https://x/lightning/r/Account/001A/view"))
	assert.Equal(t, PageOpportunityList, DetectPage("https://x/lightning/o/Opportunity/list?filterName=Recent"))
	assert.Equal(t, PageOpportunityKanban, DetectPage("https://x/lightning/o/Opportunity/list?viewType=kanban"))
	assert.Equal(t, PageUnknown, DetectPage("https://x/lightning/page/home"))
}

const listPage = `<html><body>
<table role="grid">
<thead><tr><th>Opportunity Name</th></tr></thead>
<tbody>
<tr data-row-key-value="006A">
  <td data-label="Opportunity Name"><a href="/lightning/r/Opportunity/006A/view">Acme   Deal</a></td>
  <td data-label="Account Name">Acme</td>
  <td data-label="Amount">$5,000.00</td>
  <td data-label="Stage">Prospecting</td>
  <td data-label="Probability">10%</td>
  <td data-label="Close Date">3/1/2024</td>
</tr>
<tr>
  <td data-label="Name"><a href="/lightning/r/Opportunity/006B/view">Beta</a></td>
  <td data-label="Account">Globex</td>
</tr>
<tr data-js-shuffle-id="x"><td data-label="Name">placeholder</td></tr>
<tr>
  <td data-label="Name">No Id Deal</td>
  <td data-label="Close Date">2024-05-01</td>
</tr>
</tbody>
</table>
</body></html>`

func TestReadListTable(t *testing.T) {
	pageURL := "https://x/lightning/o/Opportunity/list"
	b, err := Page(strings.NewReader(listPage), pageURL, scrapedAt)
	require.NoError(t, err)
	assert.Equal(t, PageOpportunityList, b.Kind)
	assert.Equal(t, models.TypeOpportunity, b.ObjectType)
	require.Len(t, b.Records, 3)

	first := b.Records[0]
	assert.Equal(t, "006A", first.SalesforceID())
	assert.Equal(t, "Acme Deal", first.Name())
	assert.True(t, first.Get(models.FieldAmount).Equal(models.Number(5000)))
	assert.True(t, first.Get(models.FieldProbability).Equal(models.Int(10)))
	assert.Equal(t, "2024-03-01T00:00:00.000Z", first.Text(models.FieldCloseDate))
	assert.Equal(t, "Acme", first.Text(models.FieldAccountName))
	assert.True(t, first.Has(models.FieldOwnerName))
	assert.True(t, first.Get(models.FieldOwnerName).IsNull())
	assert.Equal(t, pageURL, first.Text(models.FieldSourceURL))
	assert.Equal(t, pageURL, first.Text(models.FieldSourcePage))
	assert.Equal(t, models.Timestamp(scrapedAt), first.LastUpdated())

	second := b.Records[1]
	assert.Equal(t, "006B", second.SalesforceID(), "id falls back to the record link")
	assert.Equal(t, "Globex", second.Text(models.FieldAccountName))
	assert.True(t, second.Get(models.FieldAmount).IsNull())
	assert.True(t, second.Get(models.FieldRowIndex).Equal(models.Int(1)))

	third := b.Records[2]
	assert.Equal(t, "", third.SalesforceID())
	assert.True(t, third.Get(models.FieldSalesforceID).IsNull())
	assert.True(t, third.Get(models.FieldRowIndex).Equal(models.Int(2)), "shuffle rows do not consume an index")
}

const kanbanPage = `<html><body>
<div class="slds-kanban">
  <div data-role="kanban-column">
    <header>Qualification (2)</header>
    <div class="slds-kanban__item" data-key="006K1">
      <a title="Kanban One" href="/lightning/r/Opportunity/006K1/view">Kanban One</a>
      <span class="amount">$1,000</span>
      <time>Jan 5, 2024</time>
    </div>
    <div class="slds-kanban__item">
      <a>Orphan card</a>
    </div>
  </div>
  <div data-role="kanban-column">
    <h2>Closed Won</h2>
    <div class="slds-kanban__item"><a href="/lightning/r/Opportunity/006K2/view">Kanban Two</a></div>
  </div>
</div>
</body></html>`

func TestReadKanban(t *testing.T) {
	b, err := Page(strings.NewReader(kanbanPage), "https://x/lightning/o/Opportunity/list?viewType=kanban", scrapedAt)
	require.NoError(t, err)
	require.Len(t, b.Records, 2)

	one := b.Records[0]
	assert.Equal(t, "006K1", one.SalesforceID())
	assert.Equal(t, "Kanban One", one.Name())
	assert.Equal(t, "Qualification", one.Text(models.FieldStage))
	assert.True(t, one.Get(models.FieldAmount).Equal(models.Number(1000)))
	assert.Equal(t, "2024-01-05T00:00:00.000Z", one.Text(models.FieldCloseDate))

	two := b.Records[1]
	assert.Equal(t, "006K2", two.SalesforceID())
	assert.Equal(t, "Closed Won", two.Text(models.FieldStage))
	assert.True(t, two.Get(models.FieldRowIndex).Equal(models.Int(0)))
}

const detailPage = `<html><body>
<records-record-layout-item field-label="Opportunity Name"><span>Opportunity Name</span><lightning-formatted-text>Acme Renewal</lightning-formatted-text></records-record-layout-item>
<records-record-layout-item field-label="Amount"><span>Amount</span><lightning-formatted-number>$9,000</lightning-formatted-number></records-record-layout-item>
<records-record-layout-item field-label="Account Name"><span>Account Name</span><a href="/lightning/r/Account/001A/view">Acme</a></records-record-layout-item>
</body></html>`

func TestReadOpportunityDetail(t *testing.T) {
	u := "https://x/lightning/r/Opportunity/006D/view"
	b, err := Page(strings.NewReader(detailPage), u, scrapedAt)
	require.NoError(t, err)
	require.Len(t, b.Records, 1)

	r := b.Records[0]
	assert.Equal(t, "006D", r.SalesforceID())
	assert.Equal(t, "Acme Renewal", r.Name())
	assert.True(t, r.Get(models.FieldAmount).Equal(models.Number(9000)))
	assert.Equal(t, "Acme", r.Text(models.FieldAccountName))
	assert.True(t, r.Get(models.FieldStage).IsNull())
	assert.False(t, r.Has(models.FieldSourcePage))
}

const accountPage = `<html><body>
<article aria-label="Contacts">
<table>
<tbody>
<tr data-recordid="003A">
  <td data-label="Name">Pat Lee</td>
  <td data-label="Email">pat@acme.test</td>
  <td data-label="Phone">555-0100</td>
  <td data-label="Title">CTO</td>
</tr>
<tr><td data-label="Name">No Id</td></tr>
</tbody>
</table>
</article>
</body></html>`

func TestReadRelatedContacts(t *testing.T) {
	b, err := Page(strings.NewReader(accountPage), "https://x/lightning/r/Account/001A/view", scrapedAt)
	require.NoError(t, err)
	assert.Equal(t, models.TypeContact, b.ObjectType)
	require.Len(t, b.Records, 1)

	r := b.Records[0]
	assert.Equal(t, "003A", r.SalesforceID())
	assert.Equal(t, "Pat Lee", r.Name())
	assert.Equal(t, "pat@acme.test", r.Text(models.FieldEmail))
	assert.Equal(t, "CTO", r.Text(models.FieldTitle))
	assert.Equal(t, "001A", r.Text(models.FieldAccountID))
}

func TestPageUnrecognized(t *testing.T) {
	_, err := Page(strings.NewReader("<html></html>"), "https://example.com/", scrapedAt)
	assert.ErrorIs(t, err, ErrUnrecognizedPage)
}

func TestReadListTableWithoutTable(t *testing.T) {
	b, err := Page(strings.NewReader("<html><body><p>loading</p></body></html>"), "https://x/lightning/o/Opportunity/list", scrapedAt)
	require.NoError(t, err)
	assert.Empty(t, b.Records)
}
