// ABOUTME: Graphviz rendering of accounts and the records that reference them
// ABOUTME: Opportunities and contacts link to accounts by accountId, then by accountName
package viz

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/harperreed/sfcrm/models"
	"github.com/harperreed/sfcrm/query"
)

// Format selects the graph output.
type Format string

const (
	FormatDOT Format = "dot"
	FormatSVG Format = "svg"
)

// ParseFormat accepts "dot" or "svg".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatDOT, "":
		return FormatDOT, nil
	case FormatSVG:
		return FormatSVG, nil
	}
	return "", fmt.Errorf("unknown graph format %q (want dot or svg)", s)
}

func (f Format) graphviz() graphviz.Format {
	if f == FormatSVG {
		return graphviz.SVG
	}
	return graphviz.XDOT
}

// Account is one node of the account graph. Accounts only seen as an
// accountName on another record have an empty StorageKey.
type Account struct {
	Node         string
	Name         string
	SalesforceID string
	StorageKey   string
}

// Link ties a record to the account it references.
type Link struct {
	Account    string // Account.Node
	ObjectType models.ObjectType
	Entry      query.Entry
}

// Layout is the resolved graph before rendering.
type Layout struct {
	Accounts []Account
	Links    []Link
}

// GraphGenerator renders a snapshot of the stored root.
type GraphGenerator struct {
	root           models.Root
	includeDeleted bool
}

// NewGraphGenerator wraps a root. Soft-deleted records are left out unless
// includeDeleted is set.
func NewGraphGenerator(root models.Root, includeDeleted bool) *GraphGenerator {
	return &GraphGenerator{root: root, includeDeleted: includeDeleted}
}

// Layout resolves accounts and links. A non-empty account keeps only
// accounts whose name or salesforceId matches it.
func (g *GraphGenerator) Layout(account string) (Layout, error) {
	accounts, err := g.entries(models.TypeAccount)
	if err != nil {
		return Layout{}, err
	}

	nodes := map[string]*Account{}
	byID := map[string]string{}
	byName := map[string]string{}
	for _, e := range accounts {
		a := &Account{
			Node:         "account_" + e.ID,
			Name:         e.Record.Name(),
			SalesforceID: e.Record.SalesforceID(),
			StorageKey:   e.ID,
		}
		nodes[a.Node] = a
		if a.SalesforceID != "" {
			byID[a.SalesforceID] = a.Node
		}
		if name := normalize(a.Name); name != "" {
			byName[name] = a.Node
		}
	}

	resolve := func(r models.Record) string {
		if id := r.Text(models.FieldAccountID); id != "" {
			if node, ok := byID[id]; ok {
				return node
			}
		}
		name := normalize(r.Text(models.FieldAccountName))
		if name == "" {
			return ""
		}
		if node, ok := byName[name]; ok {
			return node
		}
		a := &Account{
			Node:         "account_name_" + strings.ReplaceAll(name, " ", "_"),
			Name:         r.Text(models.FieldAccountName),
			SalesforceID: r.Text(models.FieldAccountID),
		}
		nodes[a.Node] = a
		byName[name] = a.Node
		return a.Node
	}

	var links []Link
	for _, t := range []models.ObjectType{models.TypeOpportunity, models.TypeContact} {
		entries, err := g.entries(t)
		if err != nil {
			return Layout{}, err
		}
		for _, e := range entries {
			if node := resolve(e.Record); node != "" {
				links = append(links, Link{Account: node, ObjectType: t, Entry: e})
			}
		}
	}

	var layout Layout
	keep := map[string]bool{}
	for _, a := range nodes {
		if matches(*a, account) {
			keep[a.Node] = true
			layout.Accounts = append(layout.Accounts, *a)
		}
	}
	sort.Slice(layout.Accounts, func(i, j int) bool { return layout.Accounts[i].Node < layout.Accounts[j].Node })
	for _, l := range links {
		if keep[l.Account] {
			layout.Links = append(layout.Links, l)
		}
	}
	return layout, nil
}

// GenerateAccountGraph renders the layout for account (all accounts when
// empty) in the given format.
func (g *GraphGenerator) GenerateAccountGraph(ctx context.Context, account string, format Format) (string, error) {
	layout, err := g.Layout(account)
	if err != nil {
		return "", err
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create graphviz: %w", err)
	}
	defer func() { _ = gv.Close() }()

	graph, err := gv.Graph()
	if err != nil {
		return "", fmt.Errorf("failed to create graph: %w", err)
	}
	defer func() { _ = graph.Close() }()

	graph.SetLabel("Accounts")
	graph.SetRankDir(cgraph.LRRank)

	accountNodes := make(map[string]*cgraph.Node, len(layout.Accounts))
	for _, a := range layout.Accounts {
		node, err := graph.CreateNodeByName(a.Node)
		if err != nil {
			return "", fmt.Errorf("failed to create account node: %w", err)
		}
		label := a.Name
		if label == "" {
			label = "(unnamed account)"
		}
		node.SetLabel(label + "\n(Account)")
		node.SetShape("box")
		node.SetStyle("filled")
		node.SetFillColor("lightblue")
		accountNodes[a.Node] = node
	}

	for _, l := range layout.Links {
		node, err := graph.CreateNodeByName(string(l.ObjectType) + "_" + l.Entry.ID)
		if err != nil {
			return "", fmt.Errorf("failed to create %s node: %w", l.ObjectType, err)
		}
		r := l.Entry.Record
		label, edgeLabel := r.Name(), "deal"
		if l.ObjectType == models.TypeOpportunity {
			if stage := r.Text(models.FieldStage); stage != "" {
				label += "\n(" + stage + ")"
			}
			node.SetShape("diamond")
			node.SetFillColor("lightyellow")
		} else {
			if email := r.Text(models.FieldEmail); email != "" {
				label += "\n" + email
			}
			edgeLabel = "works at"
			node.SetShape("ellipse")
			node.SetFillColor("lightgreen")
		}
		node.SetLabel(label)
		node.SetStyle("filled")

		edge, err := graph.CreateEdgeByName(edgeLabel, accountNodes[l.Account], node)
		if err != nil {
			return "", fmt.Errorf("failed to create edge: %w", err)
		}
		edge.SetLabel(edgeLabel)
		if l.ObjectType == models.TypeContact {
			edge.SetStyle("dashed")
		}
		if r.Deleted() {
			edge.SetStyle("dotted")
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, format.graphviz(), &buf); err != nil {
		return "", fmt.Errorf("failed to render graph: %w", err)
	}
	return buf.String(), nil
}

func (g *GraphGenerator) entries(t models.ObjectType) ([]query.Entry, error) {
	entries, err := query.Entries(g.root, t)
	if err != nil {
		return nil, err
	}
	if !g.includeDeleted {
		entries = query.Active(entries)
	}
	return entries, nil
}

func matches(a Account, filter string) bool {
	if filter == "" {
		return true
	}
	if a.SalesforceID != "" && a.SalesforceID == strings.TrimSpace(filter) {
		return true
	}
	return normalize(a.Name) == normalize(filter)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
