// Package directory extracts company records from aleo.com result and
// profile pages.
package directory

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultBaseURL is the Polish aleo.com catalogue root.
const DefaultBaseURL = "https://aleo.com/pl/"

// DefaultPageSize is the number of results aleo renders per page.
const DefaultPageSize = 10

// Selectors locates elements on listing and profile pages. Zero values fall
// back to the aleo defaults.
type Selectors struct {
	ListingReady string
	Container    string
	NameLink     string
	Address      string
	TaxID        string
	Registration string
	KRS          string
	Count        string

	DetailReady  string
	ContactScope string
	Email        string
	Phone        string
	Website      string
	DetailAddr   string
	Decoration   string
}

// DefaultSelectors matches the aleo.com markup.
func DefaultSelectors() Selectors {
	return Selectors{
		ListingReady: "body",
		Container:    "div.catalog-row-container",
		NameLink:     "a.catalog-row-first-line__company-name",
		Address:      ".catalog-row-company-info__address",
		TaxID:        ".catalog-row-company-info__tax-id span",
		Registration: ".catalog-row-company-info__regon span",
		KRS:          ".catalog-row-company-info__krs span",
		Count:        ".catalog-search-results__count",

		DetailReady:  "main",
		ContactScope: "main",
		Email:        "[data-testid='company-email'], .company-contact__email",
		Phone:        "[data-testid='phone'], .company-contact__phone",
		Website:      "[data-testid='company-website'], .company-contact__website",
		DetailAddr:   "[data-testid='company-address'], address, .address, .company-address",
		Decoration:   ".tooltip, .icon, [class*='tooltip'], [class*='icon'], svg, script, style",
	}
}

func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	fill := func(dst *string, def string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = def
		}
	}
	fill(&s.ListingReady, d.ListingReady)
	fill(&s.Container, d.Container)
	fill(&s.NameLink, d.NameLink)
	fill(&s.Address, d.Address)
	fill(&s.TaxID, d.TaxID)
	fill(&s.Registration, d.Registration)
	fill(&s.KRS, d.KRS)
	fill(&s.Count, d.Count)
	fill(&s.DetailReady, d.DetailReady)
	fill(&s.ContactScope, d.ContactScope)
	fill(&s.Email, d.Email)
	fill(&s.Phone, d.Phone)
	fill(&s.Website, d.Website)
	fill(&s.DetailAddr, d.DetailAddr)
	fill(&s.Decoration, d.Decoration)
	return s
}

// SearchQuery describes one directory search.
type SearchQuery struct {
	Phrase       string
	Voivodeship  string
	City         string
	RegistryType string
}

// Directory knows where aleo lives and how its pages are shaped.
type Directory struct {
	base      *url.URL
	selectors Selectors
	pageSize  int
}

// New builds a Directory. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, selectors Selectors, pageSize int) (*Directory, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, eris.Wrapf(err, "directory: parse base url %q", baseURL)
	}
	if !base.IsAbs() {
		return nil, eris.Errorf("directory: base url %q must be absolute", baseURL)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Directory{base: base, selectors: selectors.withDefaults(), pageSize: pageSize}, nil
}

// Selectors returns the effective selector set.
func (d *Directory) Selectors() Selectors {
	return d.selectors
}

// SearchURL renders the results URL for page (1-based) of q.
func (d *Directory) SearchURL(q SearchQuery, page int) string {
	if page < 1 {
		page = 1
	}
	u := d.base.ResolveReference(&url.URL{Path: "firmy"})
	params := url.Values{}
	params.Set("phrase", q.Phrase)
	if q.Voivodeship != "" {
		params.Set("voivodeships", q.Voivodeship)
	}
	if q.City != "" {
		params.Set("city", q.City)
	}
	if q.RegistryType != "" {
		params.Set("registryType", q.RegistryType)
	}
	params.Set("page", strconv.Itoa(page))
	u.RawQuery = params.Encode()
	return u.String()
}

// resolve turns an href from a page into an absolute URL.
func (d *Directory) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return d.base.ResolveReference(ref).String()
}
