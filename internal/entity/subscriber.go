package entity

// SubscriberRow is the contact projection the subscriber sync reads.
type SubscriberRow struct {
	Email string
	TaxID *string
}
