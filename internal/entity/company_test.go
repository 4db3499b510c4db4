package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompanyRecordNormalize(t *testing.T) {
	record := &CompanyRecord{
		Name:      ptr("  Acme Sp. z o.o. "),
		DetailURL: "https://aleo.com/pl/firma/acme",
		TaxID:     ptr("521-345-67-89"),
		Website:   ptr("kontakt@acme.pl"),
		Email:     ptr(" kontakt@acme.pl "),
		Phone:     ptr("+48 601 234 567"),
		Address:   ptr("   "),
	}

	record.Normalize()

	assert.Equal(t, "Acme Sp. z o.o.", *record.Name)
	assert.Equal(t, "5213456789", *record.TaxID)
	assert.Nil(t, record.Website)
	assert.Equal(t, "kontakt@acme.pl", *record.Email)
	assert.Equal(t, "48601234567", *record.Phone)
	assert.Nil(t, record.Address)
	assert.Nil(t, record.City)
}

func TestSetExtra(t *testing.T) {
	var record CompanyRecord
	record.SetExtra("source", "aleo")
	assert.Equal(t, map[string]any{"source": "aleo"}, record.Extra)
}

func ptr(s string) *string {
	return &s
}
