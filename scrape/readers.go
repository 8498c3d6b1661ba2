// ABOUTME: Readers that turn rendered Lightning pages into canonical records
// ABOUTME: List views, Kanban boards, record detail pages and Account contact related lists
package scrape

import (
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/harperreed/sfcrm/models"
)

// rowIDAttrs are checked in order for a row or card's record id.
var rowIDAttrs = []string{"data-recordid", "data-record-id", "data-row-key-value"}

func provenance(r models.Record, pageURL string, now time.Time) {
	r[models.FieldLastUpdated] = models.String(models.Timestamp(now))
	r[models.FieldSourceURL] = models.String(pageURL)
}

// ReadListTable reads the visible rows of an Opportunity list view.
// Rows without an id are kept; the merge engine keys them by content.
func ReadListTable(doc *html.Node, pageURL string, now time.Time) []models.Record {
	table := firstOf(doc,
		and(tag("table"), attrEq("role", "grid")),
		and(tag("table"), attrContains("data-aura-class", "uiVirtualDataTable")),
	)
	if table == nil {
		return nil
	}

	var records []models.Record
	for _, row := range bodyRows(table) {
		if hasAttr(row, "data-js-shuffle-id") {
			continue
		}
		r := models.Record{
			models.FieldSalesforceID: TextOrNull(idFromElement(row, "Opportunity", rowIDAttrs...)),
			models.FieldName:         TextOrNull(cellByLabel(row, "Opportunity Name", "Name")),
			models.FieldAmount:       ParseAmount(cellByLabel(row, "Amount")),
			models.FieldStage:        TextOrNull(cellByLabel(row, "Stage")),
			models.FieldProbability:  ParseProbability(cellByLabel(row, "Probability")),
			models.FieldCloseDate:    ParseDate(cellByLabel(row, "Close Date")),
			models.FieldAccountName:  TextOrNull(cellByLabel(row, "Account Name", "Account")),
			models.FieldOwnerName:    models.Null(),
			models.FieldSourcePage:   models.String(pageURL),
			models.FieldRowIndex:     models.Int(len(records)),
		}
		provenance(r, pageURL, now)
		records = append(records, r)
	}
	return records
}

// ReadKanban reads the visible cards of an Opportunity Kanban board. The
// column header supplies the stage. Cards without an id are skipped.
func ReadKanban(doc *html.Node, pageURL string, now time.Time) []models.Record {
	board := firstOf(doc,
		attrContains("data-aura-class", "kanbanBoard"),
		hasClass("slds-kanban"),
		hasClass("kanbanContainer"),
	)
	if board == nil {
		return nil
	}

	var records []models.Record
	for _, column := range findAll(board, or(attrEq("data-role", "kanban-column"), hasClass("slds-kanban__list"))) {
		stage := columnStage(column)
		cards := findAll(column, or(attrContains("data-aura-class", "kanbanCard"), hasClass("slds-kanban__item")))
		for idx, card := range cards {
			id := idFromElement(card, "Opportunity", "data-recordid", "data-record-id", "data-key")
			if id == "" {
				continue
			}
			nameEl := firstOf(card,
				and(tag("a"), or(func(n *html.Node) bool { return hasAttr(n, "title") }, attrContains("data-output-element-id", "Name"), hasClass("slds-truncate"))),
				tag("a"),
			)
			r := models.Record{
				models.FieldSalesforceID: models.String(id),
				models.FieldName:         TextOrNull(textContent(nameEl)),
				models.FieldAmount:       ParseAmount(textContent(firstOf(card, attrContains("data-output-element-id", "Amount"), hasClass("amount"), hasClass("currency")))),
				models.FieldStage:        TextOrNull(stage),
				models.FieldProbability:  models.Null(),
				models.FieldCloseDate:    ParseDate(textContent(firstOf(card, attrContains("data-output-element-id", "CloseDate"), hasClass("date"), tag("time")))),
				models.FieldAccountName:  models.Null(),
				models.FieldOwnerName:    models.Null(),
				models.FieldSourcePage:   models.String(pageURL),
				models.FieldRowIndex:     models.Int(idx),
			}
			provenance(r, pageURL, now)
			records = append(records, r)
		}
	}
	return records
}

// columnStage reads a Kanban column header, dropping a trailing "(count)".
func columnStage(column *html.Node) string {
	header := firstOf(column,
		attrContains("data-aura-class", "kanbanColumnHeader"),
		hasClass("slds-kanban__header"),
		tag("header"), tag("h2"), tag("h3"),
	)
	if header == nil {
		header = column
	}
	text := textContent(header)
	if i := strings.LastIndex(text, " ("); i > 0 && strings.HasSuffix(text, ")") {
		text = text[:i]
	}
	return text
}

// detailFields maps record fields to the Lightning field labels that hold them.
var detailFields = []struct {
	field string
	label string
}{
	{models.FieldName, "Opportunity Name"},
	{models.FieldAmount, "Amount"},
	{models.FieldStage, "Stage"},
	{models.FieldProbability, "Probability"},
	{models.FieldCloseDate, "Close Date"},
	{models.FieldAccountName, "Account Name"},
	{models.FieldOwnerName, "Owner"},
}

// ReadOpportunityDetail reads an Opportunity record page. ok is false when
// the page holds no recognizable record.
func ReadOpportunityDetail(doc *html.Node, pageURL string, now time.Time) (models.Record, bool) {
	id := ""
	if holder := firstOf(doc, func(n *html.Node) bool {
		return hasAttr(n, "data-recordid") || hasAttr(n, "data-record-id") || hasAttr(n, "data-record-id-value")
	}); holder != nil {
		id = idFromElement(holder, "Opportunity", "data-recordid", "data-record-id", "data-record-id-value")
	}
	if id == "" {
		id = IDFromURL(pageURL, "Opportunity")
	}

	r := models.Record{models.FieldSalesforceID: TextOrNull(id)}
	found := id != ""
	for _, f := range detailFields {
		item := first(doc, and(tag("records-record-layout-item"), attrEq("field-label", f.label)))
		raw := layoutItemValue(item)
		if raw != "" {
			found = true
		}
		switch f.field {
		case models.FieldAmount:
			r[f.field] = ParseAmount(raw)
		case models.FieldProbability:
			r[f.field] = ParseProbability(raw)
		case models.FieldCloseDate:
			r[f.field] = ParseDate(raw)
		default:
			r[f.field] = TextOrNull(raw)
		}
	}
	if !found {
		return nil, false
	}
	provenance(r, pageURL, now)
	return r, true
}

// layoutItemValue prefers the formatted value element inside a layout item
// over the item's full text, which also contains the label.
func layoutItemValue(item *html.Node) string {
	if item == nil {
		return ""
	}
	value := firstOf(item,
		tag("lightning-formatted-text"),
		tag("lightning-formatted-number"),
		tag("lightning-formatted-date-time"),
		tag("a"),
	)
	if value != nil {
		return textContent(value)
	}
	return textContent(item)
}

// ReadRelatedContacts reads the Contacts related list of an Account page.
// Rows without a contact id are skipped.
func ReadRelatedContacts(doc *html.Node, pageURL string, now time.Time) []models.Record {
	region := firstOf(doc,
		and(or(tag("article"), tag("div")), func(n *html.Node) bool {
			label := strings.ToLower(attr(n, "aria-label"))
			return strings.Contains(label, "contact") && first(n, tag("table")) != nil
		}),
		attrContains("data-component-id", "RelatedContact"),
		attrContains("data-target-selection-name", "Contacts"),
	)
	if region == nil {
		return nil
	}
	table := firstOf(region, and(tag("table"), attrEq("role", "grid")), tag("table"))
	if table == nil {
		return nil
	}

	accountID := IDFromURL(pageURL, "Account")
	var records []models.Record
	for idx, row := range bodyRows(table) {
		id := idFromElement(row, "Contact", rowIDAttrs...)
		if id == "" {
			continue
		}
		name := cellByLabel(row, "Name")
		if name == "" {
			name = textContent(first(row, and(tag("a"), func(n *html.Node) bool { return hasAttr(n, "title") })))
		}
		r := models.Record{
			models.FieldSalesforceID: models.String(id),
			models.FieldName:         TextOrNull(name),
			models.FieldEmail:        TextOrNull(cellByLabel(row, "Email")),
			models.FieldPhone:        TextOrNull(cellByLabel(row, "Phone")),
			models.FieldTitle:        TextOrNull(cellByLabel(row, "Title")),
			models.FieldAccountID:    TextOrNull(accountID),
			models.FieldSourcePage:   models.String(pageURL),
			models.FieldRowIndex:     models.Int(idx),
		}
		provenance(r, pageURL, now)
		records = append(records, r)
	}
	return records
}
