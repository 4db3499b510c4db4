package dto

import "github.com/octobees/aleo-sync/internal/entity"

// LookupResponse is returned by the NIP lookup endpoint.
type LookupResponse struct {
	QueryNIP string                  `json:"query_nip"`
	Count    int                     `json:"count"`
	Results  []*entity.CompanyRecord `json:"results"`
}
