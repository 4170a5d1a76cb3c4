package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Lookup locates the raw text of one field in a parsed page. An empty
// result means the strategy did not match.
type Lookup interface {
	Find(doc *goquery.Selection, symbol string) string
}

// Lookups is an ordered list of strategies; the first non-empty match wins
type Lookups []Lookup

// First runs the strategies in order
func (ls Lookups) First(doc *goquery.Selection, symbol string) (string, bool) {
	for _, l := range ls {
		if v := l.Find(doc, symbol); v != "" {
			return v, true
		}
	}
	return "", false
}

// CSS returns the text of the first element matching Selector that has any
type CSS struct {
	Selector string
}

// Find implements Lookup
func (c CSS) Find(doc *goquery.Selection, _ string) string {
	var out string
	doc.Find(c.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = CleanText(s.Text())
		return out == ""
	})
	return out
}

// LabelNext finds the innermost element matching Selector whose text
// contains Label and returns the text of the element that follows it.
type LabelNext struct {
	Selector string
	Label    string
}

// Find implements Lookup
func (l LabelNext) Find(doc *goquery.Selection, _ string) string {
	label := innermost(doc, l.Selector, l.Label)
	if label == nil {
		return ""
	}

	for s := label; s.Length() > 0 && !s.Is("body"); s = s.Parent() {
		if next := s.Next(); next.Length() > 0 {
			return CleanText(next.Text())
		}
	}
	return ""
}

// LabelSibling finds a header cell whose text equals Label and returns the
// text of the next cell in the same row.
type LabelSibling struct {
	Label string
}

// Find implements Lookup
func (l LabelSibling) Find(doc *goquery.Selection, _ string) string {
	var out string
	doc.Find("th, td").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if CleanText(s.Text()) != l.Label {
			return true
		}
		out = CleanText(s.NextFiltered("td").Text())
		return out == ""
	})
	return out
}

// Pattern returns the first match of Pattern inside elements matching Selector
type Pattern struct {
	Selector string
	Pattern  *regexp.Regexp
}

// Find implements Lookup
func (p Pattern) Find(doc *goquery.Selection, _ string) string {
	var out string
	doc.Find(p.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = p.Pattern.FindString(CleanText(s.Text()))
		return out == ""
	})
	return out
}

// SymbolText returns the first element matching Selector whose text
// mentions the symbol being extracted.
type SymbolText struct {
	Selector string
}

// Find implements Lookup
func (st SymbolText) Find(doc *goquery.Selection, symbol string) string {
	if symbol == "" {
		return ""
	}
	var out string
	doc.Find(st.Selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := CleanText(s.Text())
		if strings.Contains(strings.ToUpper(text), strings.ToUpper(symbol)) {
			out = text
		}
		return out == ""
	})
	return out
}

// innermost returns the deepest element matching selector whose text
// contains label, so that wrapper blocks do not shadow the real label.
func innermost(doc *goquery.Selection, selector, label string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.Contains(CleanText(s.Text()), label) {
			return true
		}
		nested := s.Find(selector).FilterFunction(func(_ int, c *goquery.Selection) bool {
			return strings.Contains(CleanText(c.Text()), label)
		})
		if nested.Length() > 0 {
			return true
		}
		found = s
		return false
	})
	return found
}

// keyValueRows reads two-column rows from the first selector in order that
// yields at least one table. Later duplicate keys do not overwrite earlier
// ones.
func keyValueRows(doc *goquery.Selection, selectors []string) map[string]string {
	rows := map[string]string{}
	for _, sel := range selectors {
		tables := doc.Find(sel)
		if tables.Length() == 0 {
			continue
		}
		tables.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := tr.Find("td, th")
			if cells.Length() < 2 {
				return
			}
			key := CleanText(cells.Eq(0).Text())
			if key == "" {
				return
			}
			if _, ok := rows[key]; ok {
				return
			}
			rows[key] = CleanText(cells.Eq(1).Text())
		})
		if len(rows) > 0 {
			break
		}
	}
	return rows
}
