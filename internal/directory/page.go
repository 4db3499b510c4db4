package directory

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/octobees/aleo-sync/internal/entity"
)

// Listing is the outcome of parsing one results page.
type Listing struct {
	Records []*entity.CompanyRecord
	// Total and PageCount are only filled for the first page and stay nil when
	// the count element is missing.
	Total     *int
	PageCount *int
}

// ExtractPage parses a results page into partial records in page order.
// Containers without a usable name link are skipped; other missing fields
// become empty strings. An empty Records slice marks the end of pagination.
func (d *Directory) ExtractPage(doc *goquery.Document, firstPage bool) Listing {
	var listing Listing
	sel := d.selectors

	doc.Find(sel.Container).Each(func(_ int, container *goquery.Selection) {
		link := container.Find(sel.NameLink).First()
		if link.Length() == 0 {
			return
		}
		href, _ := link.Attr("href")
		detailURL := d.resolve(href)
		if detailURL == "" {
			return
		}

		listing.Records = append(listing.Records, &entity.CompanyRecord{
			Name:           textPtr(link),
			DetailURL:      detailURL,
			Address:        textPtr(container.Find(sel.Address).First()),
			TaxID:          textPtr(container.Find(sel.TaxID).First()),
			RegistrationID: textPtr(container.Find(sel.Registration).First()),
			KRS:            textPtr(container.Find(sel.KRS).First()),
		})
	})

	if firstPage {
		if total, ok := parseCount(doc.Find(sel.Count).First().Text()); ok {
			pages := (total + d.pageSize - 1) / d.pageSize
			listing.Total = &total
			listing.PageCount = &pages
		}
	}

	return listing
}

// countPattern matches one number, allowing thousands separators between
// groups of three digits.
var countPattern = regexp.MustCompile(`\d{1,3}(?:[ \x{00A0}\x{202F}.]\d{3})+|\d+`)

// parseCount reads the last number out of strings like "Znaleziono 1 234
// firm" or "1-10 z 1 234", which is the total in both layouts.
func parseCount(text string) (int, bool) {
	runs := countPattern.FindAllString(text, -1)
	if len(runs) == 0 {
		return 0, false
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, runs[len(runs)-1])
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

func textPtr(s *goquery.Selection) *string {
	text := joinedText(s)
	return &text
}

// joinedText concatenates the text nodes of s with single spaces so that
// block boundaries such as <br> never glue two words together.
func joinedText(s *goquery.Selection) string {
	var parts []string
	for _, n := range s.Nodes {
		walkText(n, nil, func(text string) {
			parts = append(parts, text)
		})
	}
	return collapseSpace(strings.Join(parts, " "))
}

// walkText visits non-blank text nodes below n in document order, skipping
// any subtree rooted at a node in skip.
func walkText(n *html.Node, skip map[*html.Node]bool, visit func(string)) {
	if skip[n] {
		return
	}
	if n.Type == html.TextNode {
		if text := collapseSpace(n.Data); text != "" {
			visit(text)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(c, skip, visit)
	}
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
