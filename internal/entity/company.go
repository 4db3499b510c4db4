package entity

import (
	"time"

	"github.com/octobees/aleo-sync/internal/normalize"
)

// CompanyRecord is one directory entry keyed by its detail page URL.
type CompanyRecord struct {
	ID                 int64          `json:"id,omitempty"`
	Name               *string        `json:"name"`
	DetailURL          string         `json:"url"`
	Address            *string        `json:"address"`
	City               *string        `json:"city"`
	PostalCode         *string        `json:"postal_code"`
	TaxID              *string        `json:"nip"`
	RegistrationID     *string        `json:"regon"`
	KRS                *string        `json:"krs"`
	Website            *string        `json:"website"`
	Email              *string        `json:"email"`
	Phone              *string        `json:"phone"`
	SearchPhrase       *string        `json:"search_phrase,omitempty"`
	SearchCity         *string        `json:"search_city,omitempty"`
	SearchRegistryType *string        `json:"search_registry_type,omitempty"`
	Extra              map[string]any `json:"extra,omitempty"`
	CreatedAt          *time.Time     `json:"created_at,omitempty"`
	UpdatedAt          *time.Time     `json:"updated_at,omitempty"`
}

// Normalize canonicalises contact fields in place. It is applied once,
// right before the record is persisted.
func (c *CompanyRecord) Normalize() *CompanyRecord {
	c.Name = reapply(c.Name, normalize.Text)
	c.Address = reapply(c.Address, normalize.Text)
	c.City = reapply(c.City, normalize.City)
	c.PostalCode = reapply(c.PostalCode, normalize.Text)
	c.TaxID = reapply(c.TaxID, normalize.TaxID)
	c.RegistrationID = reapply(c.RegistrationID, normalize.TaxID)
	c.KRS = reapply(c.KRS, normalize.TaxID)
	c.Website = reapply(c.Website, normalize.Website)
	c.Email = reapply(c.Email, normalize.Email)
	c.Phone = reapply(c.Phone, normalize.Phone)
	return c
}

// SetExtra records a provenance value, allocating the map on first use.
func (c *CompanyRecord) SetExtra(key string, value any) {
	if c.Extra == nil {
		c.Extra = make(map[string]any)
	}
	c.Extra[key] = value
}

func reapply(value *string, fn func(string) *string) *string {
	if value == nil {
		return nil
	}
	return fn(*value)
}
