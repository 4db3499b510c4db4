package directory

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"

	"github.com/octobees/aleo-sync/internal/browser"
	"github.com/octobees/aleo-sync/internal/entity"
	"github.com/octobees/aleo-sync/internal/normalize"
)

// Enrich opens rec's profile in a page of its own and fills the contact
// fields it finds. Fields that cannot be found keep their previous value.
// A failed load leaves rec untouched and is returned to the caller.
func (d *Directory) Enrich(ctx context.Context, b browser.Browser, rec *entity.CompanyRecord) error {
	if rec == nil || rec.DetailURL == "" {
		return eris.New("directory: record has no detail url")
	}
	return browser.WithPage(ctx, b, func(page browser.Page) error {
		doc, err := d.loadDocument(ctx, page, rec.DetailURL, d.selectors.DetailReady)
		if err != nil {
			return err
		}
		d.ApplyDetail(doc, rec)
		return nil
	})
}

// ApplyDetail copies contact data from a parsed profile page into rec.
func (d *Directory) ApplyDetail(doc *goquery.Document, rec *entity.CompanyRecord) {
	sel := d.selectors
	scope := doc.Find(sel.ContactScope).First()
	if scope.Length() == 0 {
		scope = doc.Selection
	}

	if v := normalize.Email(d.contactValue(scope, sel.Email, "mailto:")); v != nil {
		rec.Email = v
	}
	if v := normalize.Phone(d.contactValue(scope, sel.Phone, "tel:")); v != nil {
		rec.Phone = v
	}
	if v := normalize.Website(d.websiteValue(scope)); v != nil {
		rec.Website = v
	}

	addr := joinedText(doc.Find(sel.DetailAddr).First())
	if addr == "" {
		return
	}
	rec.Address = &addr
	if code, city := ParsePostalCity(addr); code != nil {
		rec.PostalCode = code
		rec.City = normalize.City(*city)
	}
}

// contactValue prefers a scheme anchor inside the labelled container, then
// one anywhere in scope, then the container's visible text.
func (d *Directory) contactValue(scope *goquery.Selection, containerSel, scheme string) string {
	container := scope.Find(containerSel).First()
	anchorSel := "a[href^='" + scheme + "']"

	anchor := container.Find(anchorSel).First()
	if anchor.Length() == 0 {
		anchor = scope.Find(anchorSel).First()
	}
	if anchor.Length() > 0 {
		href, _ := anchor.Attr("href")
		value := strings.TrimSpace(href[len(scheme):])
		if i := strings.IndexByte(value, '?'); i >= 0 {
			value = value[:i]
		}
		if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		if value != "" {
			return value
		}
	}

	if container.Length() == 0 {
		return ""
	}
	return d.lastVisibleText(container)
}

func (d *Directory) websiteValue(scope *goquery.Selection) string {
	container := scope.Find(d.selectors.Website).First()
	if container.Length() == 0 {
		return ""
	}
	var site string
	container.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			site = href
			return false
		}
		return true
	})
	if site != "" {
		return site
	}
	return d.lastVisibleText(container)
}

// lastVisibleText returns the last non-blank text node of container that is
// not inside a tooltip or icon decoration.
func (d *Directory) lastVisibleText(container *goquery.Selection) string {
	skip := make(map[*html.Node]bool)
	container.Find(d.selectors.Decoration).Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			skip[n] = true
		}
	})

	var last string
	for _, n := range container.Nodes {
		walkText(n, skip, func(text string) {
			last = text
		})
	}
	return last
}

func (d *Directory) loadDocument(ctx context.Context, page browser.Page, target, ready string) (*goquery.Document, error) {
	raw, err := page.Load(ctx, target, ready)
	if err != nil {
		return nil, eris.Wrapf(err, "directory: load %s", target)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, eris.Wrapf(err, "directory: parse %s", target)
	}
	return doc, nil
}

// FetchListing loads and parses one results page using the caller's page.
func (d *Directory) FetchListing(ctx context.Context, page browser.Page, q SearchQuery, pageNum int) (Listing, error) {
	target := d.SearchURL(q, pageNum)
	doc, err := d.loadDocument(ctx, page, target, d.selectors.ListingReady)
	if err != nil {
		return Listing{}, err
	}
	return d.ExtractPage(doc, pageNum == 1), nil
}
