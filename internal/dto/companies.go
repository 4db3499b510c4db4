package dto

import "time"

// ListFilter contains query parameters for company listing endpoints.
type ListFilter struct {
	Q            string
	City         string
	TaxID        string
	WebsiteState string
	UpdatedSince *time.Time
	Sort         string
	Page         int
	PerPage      int
	Limit        int
}

// SubscriberFilter narrows the contacts selected for subscriber sync.
// Empty fields are not applied.
type SubscriberFilter struct {
	SearchCity   string
	RegistryType string
	City         string
	Limit        int
}
