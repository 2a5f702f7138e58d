package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDocumentType(t *testing.T) {
	tests := map[string]DocumentType{
		"Can you draft a demand letter for me?":              DocDemandLetter,
		"I lost my ID and need an affidavit of loss":          DocAffidavitOfLoss,
		"We need a DTI sales promotion permit for our raffle": DocSalesPromoPermit,
		"What does the labor code say about overtime?":        "",
	}
	for msg, want := range tests {
		assert.Equal(t, want, DetectDocumentType(msg), msg)
	}
}

func TestParseDocumentType(t *testing.T) {
	assert.Equal(t, DocSalesPromoPermit, ParseDocumentType("Sales Promotion Permit"))
	assert.Equal(t, DocServiceAgreement, ParseDocumentType("service-agreement"))
	assert.Equal(t, DocumentType(""), ParseDocumentType("complaint"))
}

func TestSalesPromoPermitRequiredFields(t *testing.T) {
	spec, ok := LookupDocument(DocSalesPromoPermit)
	require.True(t, ok)

	missing := spec.MissingFields(map[string]string{"promo_title": "Summer Raffle", "coverage": "NCR"})
	names := make([]string, 0, len(missing))
	for _, f := range missing {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{
		"sponsor_name", "sponsor_address", "representative_name", "representative_designation",
		"promo_start_date", "promo_end_date", "promo_type", "participating_establishments", "products_covered",
	}, names)
}
