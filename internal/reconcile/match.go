package reconcile

import "github.com/sells-group/citation-cli/internal/model"

// NAPMatch is the field-by-field comparison of a listing against the
// authoritative record.
type NAPMatch struct {
	NameMatch    bool `json:"name_match"`
	AddressMatch bool `json:"address_match"`
	PhoneMatch   bool `json:"phone_match"`
	NAPCorrect   bool `json:"nap_correct"`
}

// MatchNAP compares name, address and phone. A field the provider did not
// report counts as a match; only a contradicting value fails it. NAPCorrect
// requires all three.
func MatchNAP(listing model.ProviderListing, record model.AuthoritativeRecord) NAPMatch {
	m := NAPMatch{
		NameMatch:    fieldMatches(listing.FoundName, record.Name, NormalizeText),
		AddressMatch: fieldMatches(listing.FoundAddress, record.ExpectedAddress(), NormalizeText),
		PhoneMatch:   fieldMatches(listing.FoundPhone, record.Phone, NormalizePhone),
	}
	m.NAPCorrect = m.NameMatch && m.AddressMatch && m.PhoneMatch
	return m
}

func fieldMatches(found, expected string, normalize func(string) string) bool {
	if found == "" {
		return true
	}
	return normalize(found) == normalize(expected)
}
