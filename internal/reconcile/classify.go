package reconcile

import "github.com/sells-group/citation-cli/internal/model"

// IsMissing reports whether the provider neither marked the listing active
// nor found a URL for it.
func IsMissing(listing model.ProviderListing) bool {
	return listing.ProviderStatus != model.ProviderStatusActive && !listing.HasURL()
}

// IsLive reports whether either presence signal is set: the listing is
// active or has a URL. It is always the complement of IsMissing.
func IsLive(listing model.ProviderListing) bool {
	return listing.ProviderStatus == model.ProviderStatusActive || listing.HasURL()
}

// Classify derives the listing status. An active listing without a URL, or a
// pending/possible one with a URL, is not short-circuited as missing and
// falls through to the NAP check.
func Classify(listing model.ProviderListing, napCorrect bool) model.ListingStatus {
	if IsMissing(listing) {
		return model.ListingStatusNotListed
	}
	if !napCorrect {
		return model.ListingStatusActionNeeded
	}
	return model.ListingStatusFound
}
