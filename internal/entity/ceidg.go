package entity

import (
	"encoding/json"
	"time"
)

// CEIDGRecord stores the raw register payload fetched for a company.
type CEIDGRecord struct {
	CompanyID int64           `json:"company_id"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CEIDGCandidate is a stored company that has a NIP to look up.
type CEIDGCandidate struct {
	CompanyID int64
	TaxID     string
}
