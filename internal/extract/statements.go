package extract

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/guregu/null/v6"

	"setfetch/internal/fetcher"
	"setfetch/internal/record"
	"setfetch/internal/source"
)

var (
	statementExt   = regexp.MustCompile(`(?i)\.(pdf|xls|xlsx)$`)
	yearPattern    = regexp.MustCompile(`(?:^|[^0-9])(20[0-9]{2})(?:[^0-9]|$)`)
	yearAnywhere   = regexp.MustCompile(`20[0-9]{2}`)
	quarterPattern = regexp.MustCompile(`(?:^|[^a-z])q([1-4])(?:[^0-9]|$)`)
	tokenSplit     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Statement period and language values when a file name carries no marker
const (
	UnknownPeriod   = "UNKNOWN"
	UnknownLanguage = "unknown"
)

// StatementMeta is the metadata encoded in a statement file name
type StatementMeta struct {
	Year     null.String
	Period   string
	Language string
	Type     string
}

// ParseStatementFilename derives metadata from the last path segment of
// name. "abc_2023_q2_en.pdf" yields 2023, Q2, en, PDF.
func ParseStatementFilename(name string) StatementMeta {
	base := strings.ToLower(path.Base(name))
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	tokens := tokenSplit.Split(stem, -1)

	meta := StatementMeta{
		Period:   UnknownPeriod,
		Language: UnknownLanguage,
		Type:     strings.ToUpper(strings.TrimPrefix(ext, ".")),
	}

	// a standalone year wins; otherwise take one embedded in a date like 20231231
	if m := yearPattern.FindStringSubmatch(stem); m != nil {
		meta.Year = null.StringFrom(m[1])
	} else if y := yearAnywhere.FindString(stem); y != "" {
		meta.Year = null.StringFrom(y)
	}

	if m := quarterPattern.FindStringSubmatch(stem); m != nil {
		meta.Period = "Q" + m[1]
	} else {
		for _, tok := range tokens {
			if tok == "yearly" || tok == "y" {
				meta.Period = strings.ToUpper(tok)
				break
			}
		}
	}

	meta.Language = language(stem, tokens)

	return meta
}

// language prefers a standalone th/en token and falls back to a substring
// match in that order.
func language(stem string, tokens []string) string {
	for _, tok := range tokens {
		if tok == "th" || tok == "en" {
			return tok
		}
	}
	for _, lang := range []string{"th", "en"} {
		if strings.Contains(stem, lang) {
			return lang
		}
	}
	return UnknownLanguage
}

// StatementsExtractor collects downloadable statement links
type StatementsExtractor struct {
	base *url.URL
}

// NewStatementsExtractor resolves relative links against baseURL. An
// unparsable base leaves relative links as they are.
func NewStatementsExtractor(baseURL string) *StatementsExtractor {
	base, err := url.Parse(baseURL)
	if err != nil || !base.IsAbs() {
		base = nil
	}
	return &StatementsExtractor{base: base}
}

// Source implements Extractor
func (e *StatementsExtractor) Source() source.Source { return source.FinancialStatements }

// Extract implements Extractor
func (e *StatementsExtractor) Extract(symbol record.Symbol, out fetcher.Outcome) record.Partial {
	if p, ok := failed(source.FinancialStatements, symbol, out); ok {
		return p
	}

	doc, err := parseDocument(out.Body)
	if err != nil {
		return record.Empty(source.FinancialStatements, symbol, record.Unavailable(err.Error()))
	}

	return record.FinancialStatementIndex{
		Symbol:     symbol,
		Statements: e.links(symbol, doc.Selection),
	}
}

func (e *StatementsExtractor) links(symbol record.Symbol, doc *goquery.Selection) []record.StatementFile {
	files := []record.StatementFile{}
	seen := map[string]bool{}
	sym := strings.ToLower(symbol.String())

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		ref, err := url.Parse(href)
		if err != nil || !statementExt.MatchString(ref.Path) {
			return
		}
		if !strings.Contains(strings.ToLower(href), sym) {
			return
		}

		abs := e.resolve(ref)
		if seen[abs] {
			return
		}
		seen[abs] = true

		meta := ParseStatementFilename(ref.Path)
		files = append(files, record.StatementFile{
			URL:      abs,
			Year:     meta.Year,
			Period:   meta.Period,
			Language: meta.Language,
			Type:     meta.Type,
		})
	})

	return files
}

func (e *StatementsExtractor) resolve(ref *url.URL) string {
	if e.base == nil || ref.IsAbs() {
		return ref.String()
	}
	return e.base.ResolveReference(ref).String()
}
