package store

import (
	"bytes"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
)

// The user page is human-editable HTML. The codec never regenerates the
// document from scratch: it mutates the parsed tree in place, so attributes
// and markup it does not own survive a round-trip.

const (
	classRoot       = "spell-book-userdata"
	classNotesTable = "spell-notes"
	classUsageTable = "spell-usage"
	classSpellName  = "spell-name"
	classFavorite   = "spell-favorite"
	classNotes      = "spell-notes-text"

	attrActorID     = "data-actor-id"
	attrUUID        = "data-uuid"
	attrFavorited   = "data-favorited"
	attrCount       = "data-count"
	attrCombat      = "data-combat"
	attrExploration = "data-exploration"
	attrLastUsed    = "data-last-used"
	attrSchema      = "data-schema-version"
)

// Document is a parsed user page.
type Document struct {
	nodes []*html.Node // top-level fragment nodes
	root  *html.Node   // the div.spell-book-userdata, created on demand
}

// ParseDocument parses page HTML. An empty page yields an empty document.
func ParseDocument(content string) (*Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, sberr.Wrap(err, "failed to parse user data page")
	}

	doc := &Document{nodes: nodes}
	for _, n := range nodes {
		if found := findFirst(n, func(c *html.Node) bool { return hasClass(c, classRoot) }); found != nil {
			doc.root = found
			break
		}
	}
	return doc, nil
}

// Render serializes the document back to page HTML.
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	for _, n := range d.nodes {
		if err := html.Render(&buf, n); err != nil {
			return "", sberr.Wrap(err, "failed to render user data page")
		}
	}
	return buf.String(), nil
}

// SchemaVersion reads the schema stamp; 0 when the page predates stamping.
func (d *Document) SchemaVersion() int {
	if d.root == nil {
		return 0
	}
	if v, ok := attrValue(d.root, attrSchema); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

// SetSchemaVersion stamps the schema version, creating the root if needed.
func (d *Document) SetSchemaVersion(version int) {
	d.ensureRoot()
	setAttr(d.root, attrSchema, strconv.Itoa(version))
}

// Data decodes every actor table into actorID -> canonical uuid -> record.
func (d *Document) Data() map[string]map[string]*spellbook.UserSpellData {
	out := make(map[string]map[string]*spellbook.UserSpellData)
	if d.root == nil {
		return out
	}

	for _, table := range findAll(d.root, func(n *html.Node) bool { return isTable(n, classNotesTable) }) {
		actorID, _ := attrValue(table, attrActorID)
		for _, row := range tableRows(table) {
			uuid, ok := attrValue(row, attrUUID)
			if !ok || uuid == "" {
				continue
			}
			rec := ensureRecord(out, actorID, uuid)
			if cell := findFirst(row, func(n *html.Node) bool { return hasClass(n, classFavorite) }); cell != nil {
				if v, ok := attrValue(cell, attrFavorited); ok {
					rec.Favorited = v == "true"
				}
			}
			if cell := findFirst(row, func(n *html.Node) bool { return hasClass(n, classNotes) }); cell != nil {
				rec.Notes = textContent(cell)
			}
		}
	}

	for _, table := range findAll(d.root, func(n *html.Node) bool { return isTable(n, classUsageTable) }) {
		actorID, _ := attrValue(table, attrActorID)
		for _, row := range tableRows(table) {
			uuid, ok := attrValue(row, attrUUID)
			if !ok || uuid == "" {
				continue
			}
			rec := ensureRecord(out, actorID, uuid)
			stats := &spellbook.UsageStats{}
			stats.Count = intAttr(row, attrCount)
			stats.ContextUsage.Combat = intAttr(row, attrCombat)
			stats.ContextUsage.Exploration = intAttr(row, attrExploration)
			stats.LastUsed = int64Attr(row, attrLastUsed)
			if stats.Count > 0 || stats.LastUsed > 0 {
				rec.UsageStats = stats
			}
		}
	}

	return out
}

// SetSpellData writes one record into the actor's tables, creating structure
// as needed. The display name is only used for newly created rows.
func (d *Document) SetSpellData(actorID, uuid, name string, data *spellbook.UserSpellData) {
	d.ensureRoot()

	notesTable := d.ensureTable(classNotesTable, actorID, []string{"Spell", "Favorite", "Notes"})
	notesRow := ensureRow(notesTable, uuid, name, []string{classSpellName, classFavorite, classNotes})
	favCell := findFirst(notesRow, func(n *html.Node) bool { return hasClass(n, classFavorite) })
	setAttr(favCell, attrFavorited, strconv.FormatBool(data.Favorited))
	setTextContent(favCell, favoriteGlyph(data.Favorited))
	notesCell := findFirst(notesRow, func(n *html.Node) bool { return hasClass(n, classNotes) })
	setTextContent(notesCell, data.Notes)

	usageTable := d.ensureTable(classUsageTable, actorID, []string{"Spell", "Total", "Combat", "Exploration", "Last Used"})
	usageRow := ensureRow(usageTable, uuid, name, []string{classSpellName, "usage-total", "usage-combat", "usage-exploration", "usage-last"})
	stats := data.UsageStats
	if stats == nil {
		stats = &spellbook.UsageStats{}
	}
	setAttr(usageRow, attrCount, strconv.Itoa(stats.Count))
	setAttr(usageRow, attrCombat, strconv.Itoa(stats.ContextUsage.Combat))
	setAttr(usageRow, attrExploration, strconv.Itoa(stats.ContextUsage.Exploration))
	setAttr(usageRow, attrLastUsed, strconv.FormatInt(stats.LastUsed, 10))
	setCellText(usageRow, "usage-total", strconv.Itoa(stats.Count))
	setCellText(usageRow, "usage-combat", strconv.Itoa(stats.ContextUsage.Combat))
	setCellText(usageRow, "usage-exploration", strconv.Itoa(stats.ContextUsage.Exploration))
	setCellText(usageRow, "usage-last", formatLastUsed(stats.LastUsed))
}

// RemoveActor drops both of one actor's tables.
func (d *Document) RemoveActor(actorID string) {
	if d.root == nil {
		return
	}
	tables := findAll(d.root, func(n *html.Node) bool {
		if !isTable(n, classNotesTable) && !isTable(n, classUsageTable) {
			return false
		}
		id, _ := attrValue(n, attrActorID)
		return id == actorID
	})
	for _, t := range tables {
		t.Parent.RemoveChild(t)
	}
}

// Reset drops every actor table, leaving an empty stamped root.
func (d *Document) Reset() {
	d.ensureRoot()
	var tables []*html.Node
	for _, t := range findAll(d.root, func(n *html.Node) bool {
		return isTable(n, classNotesTable) || isTable(n, classUsageTable)
	}) {
		tables = append(tables, t)
	}
	for _, t := range tables {
		t.Parent.RemoveChild(t)
	}
}

func (d *Document) ensureRoot() {
	if d.root != nil {
		return
	}
	root := elem("div")
	setAttr(root, "class", classRoot)
	d.nodes = append(d.nodes, root)
	d.root = root
}

func (d *Document) ensureTable(class, actorID string, headers []string) *html.Node {
	table := findFirst(d.root, func(n *html.Node) bool {
		if !isTable(n, class) {
			return false
		}
		id, _ := attrValue(n, attrActorID)
		return id == actorID
	})
	if table != nil {
		return table
	}

	table = elem("table")
	setAttr(table, "class", class)
	setAttr(table, attrActorID, actorID)

	thead := elem("thead")
	headRow := elem("tr")
	for _, h := range headers {
		th := elem("th")
		setTextContent(th, h)
		headRow.AppendChild(th)
	}
	thead.AppendChild(headRow)
	table.AppendChild(thead)
	table.AppendChild(elem("tbody"))

	d.root.AppendChild(table)
	return table
}

// Tree helpers

func elem(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

func isTable(n *html.Node, class string) bool {
	return n.Type == html.ElementNode && n.Data == "table" && hasClass(n, class)
}

func hasClass(n *html.Node, class string) bool {
	if n.Type != html.ElementNode {
		return false
	}
	v, ok := attrValue(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, value string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: value})
}

func intAttr(n *html.Node, key string) int {
	if v, ok := attrValue(n, key); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return 0
}

func int64Attr(n *html.Node, key string) int64 {
	if v, ok := attrValue(n, key); ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

func findFirst(n *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if pred(c) {
			out = append(out, c)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)
	return out
}

// tableRows returns the data rows of a table, tolerating pages that were
// hand-edited to drop the tbody.
func tableRows(table *html.Node) []*html.Node {
	return findAll(table, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return false
		}
		_, ok := attrValue(n, attrUUID)
		return ok
	})
}

func rowBody(table *html.Node) *html.Node {
	if tbody := findFirst(table, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "tbody"
	}); tbody != nil {
		return tbody
	}
	return table
}

func ensureRow(table *html.Node, uuid, name string, cellClasses []string) *html.Node {
	for _, row := range tableRows(table) {
		if v, _ := attrValue(row, attrUUID); v == uuid {
			return row
		}
	}

	row := elem("tr")
	setAttr(row, attrUUID, uuid)
	for i, class := range cellClasses {
		td := elem("td")
		setAttr(td, "class", class)
		if i == 0 {
			setTextContent(td, name)
		}
		row.AppendChild(td)
	}
	rowBody(table).AppendChild(row)
	return row
}

func setCellText(row *html.Node, class, text string) {
	if cell := findFirst(row, func(n *html.Node) bool { return hasClass(n, class) }); cell != nil {
		setTextContent(cell, text)
	}
}

func textContent(n *html.Node) string {
	var buf bytes.Buffer
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			buf.WriteString(c.Data)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			walk(gc)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}

func setTextContent(n *html.Node, text string) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

func favoriteGlyph(favorited bool) string {
	if favorited {
		return "★"
	}
	return "☆"
}

func formatLastUsed(ms int64) string {
	if ms == 0 {
		return ""
	}
	return strconv.FormatInt(ms, 10)
}

func ensureRecord(data map[string]map[string]*spellbook.UserSpellData, actorID, uuid string) *spellbook.UserSpellData {
	if data[actorID] == nil {
		data[actorID] = make(map[string]*spellbook.UserSpellData)
	}
	if data[actorID][uuid] == nil {
		data[actorID][uuid] = &spellbook.UserSpellData{}
	}
	return data[actorID][uuid]
}

// sortedActorIDs gives the deterministic aggregation order for reads that
// span a user's characters.
func sortedActorIDs(data map[string]map[string]*spellbook.UserSpellData) []string {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
