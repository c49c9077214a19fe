package reconcile

import (
	"time"

	"github.com/sells-group/citation-cli/internal/model"
)

// Reconcile runs matcher, classifier and recommendation builder over a single
// provider listing.
func Reconcile(listing model.ProviderListing, record model.AuthoritativeRecord, checkedAt time.Time) model.ReconciledListing {
	m := MatchNAP(listing, record)
	return model.ReconciledListing{
		LocationID:      record.LocationID,
		Directory:       listing.Source,
		ListingURL:      listing.ListingURL,
		ProviderStatus:  listing.ProviderStatus,
		DomainAuthority: listing.DomainAuthority,
		SiteType:        listing.SiteType,
		ExpectedName:    record.Name,
		ExpectedAddress: record.ExpectedAddress(),
		ExpectedPhone:   record.Phone,
		FoundName:       listing.FoundName,
		FoundAddress:    listing.FoundAddress,
		FoundPhone:      listing.FoundPhone,
		NameMatch:       m.NameMatch,
		AddressMatch:    m.AddressMatch,
		PhoneMatch:      m.PhoneMatch,
		NAPCorrect:      m.NAPCorrect,
		Status:          Classify(listing, m.NAPCorrect),
		Recommendation:  BuildRecommendation(listing, IsLive(listing), record.Name, record.Phone),
		LastCheckedAt:   checkedAt,
	}
}

// ReconcileAll reconciles every listing in order and computes the aggregate
// summary over the full set.
func ReconcileAll(listings []model.ProviderListing, record model.AuthoritativeRecord, checkedAt time.Time) ([]model.ReconciledListing, model.AuditSummary) {
	out := make([]model.ReconciledListing, 0, len(listings))
	for _, l := range listings {
		out = append(out, Reconcile(l, record, checkedAt))
	}
	return out, Summarize(out)
}

// Summarize counts correct, incorrect and missing listings. A listing is
// missing when it is not active and has no URL, otherwise correct or
// incorrect by NAPCorrect. TotalFound is every listing processed.
func Summarize(listings []model.ReconciledListing) model.AuditSummary {
	s := model.AuditSummary{TotalFound: len(listings)}
	for _, l := range listings {
		switch {
		case l.ProviderStatus != model.ProviderStatusActive && l.ListingURL == "":
			s.TotalMissing++
		case l.NAPCorrect:
			s.TotalCorrect++
		default:
			s.TotalIncorrect++
		}
	}
	return s
}
