// Package provider adapts citation report vendors to the domain report
// lifecycle: submit, start, poll status, fetch listings.
package provider

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/citation-cli/internal/model"
	"github.com/sells-group/citation-cli/pkg/brightlocal"
)

// ReportClient is the domain view of an external citation report provider.
type ReportClient interface {
	SubmitReport(ctx context.Context, rec model.AuthoritativeRecord) (string, error)
	StartReport(ctx context.Context, reportID string) error
	// GetReportStatus returns the raw provider status string.
	GetReportStatus(ctx context.Context, reportID string) (string, error)
	GetReportListings(ctx context.Context, reportID string) ([]model.ProviderListing, error)
	DeleteReport(ctx context.Context, reportID string) error
}

// BrightLocal implements ReportClient on the BrightLocal Citation Tracker.
type BrightLocal struct {
	client brightlocal.Client
}

// NewBrightLocal wraps a raw BrightLocal client.
func NewBrightLocal(c brightlocal.Client) *BrightLocal {
	return &BrightLocal{client: c}
}

// SubmitReport registers a report for the record and returns its provider ID.
func (b *BrightLocal) SubmitReport(ctx context.Context, rec model.AuthoritativeRecord) (string, error) {
	id, err := b.client.AddReport(ctx, brightlocal.AddReportRequest{
		ReportName:   rec.LocationID,
		BusinessName: rec.Name,
		Phone:        rec.Phone,
		Address:      rec.AddressLine,
		City:         rec.City,
		StateCode:    rec.Region,
		Postcode:     rec.PostalCode,
	})
	if err != nil {
		return "", eris.Wrapf(err, "provider: submit report for %s", rec.LocationID)
	}
	return id, nil
}

// StartReport kicks off the provider scan.
func (b *BrightLocal) StartReport(ctx context.Context, reportID string) error {
	return eris.Wrap(b.client.RunReport(ctx, reportID), "provider: start report")
}

// GetReportStatus returns the report's current status string.
func (b *BrightLocal) GetReportStatus(ctx context.Context, reportID string) (string, error) {
	rep, err := b.client.GetReport(ctx, reportID)
	if err != nil {
		return "", eris.Wrap(err, "provider: get report status")
	}
	return rep.Status, nil
}

// GetReportListings flattens the active, pending and possible result groups,
// in that order, tagging each listing with its group.
func (b *BrightLocal) GetReportListings(ctx context.Context, reportID string) ([]model.ProviderListing, error) {
	res, err := b.client.GetResults(ctx, reportID)
	if err != nil {
		return nil, eris.Wrap(err, "provider: get report listings")
	}

	out := make([]model.ProviderListing, 0, len(res.Active)+len(res.Pending)+len(res.Possible))
	out = appendGroup(out, res.Active, model.ProviderStatusActive)
	out = appendGroup(out, res.Pending, model.ProviderStatusPending)
	out = appendGroup(out, res.Possible, model.ProviderStatusPossible)
	return out, nil
}

// DeleteReport removes the report at the provider.
func (b *BrightLocal) DeleteReport(ctx context.Context, reportID string) error {
	return eris.Wrap(b.client.DeleteReport(ctx, reportID), "provider: delete report")
}

func appendGroup(out []model.ProviderListing, group []brightlocal.Citation, status model.ProviderStatus) []model.ProviderListing {
	for _, c := range group {
		out = append(out, model.ProviderListing{
			Source:          c.Source,
			ListingURL:      deref(c.URL),
			ProviderStatus:  status,
			FoundName:       deref(c.BusinessName),
			FoundAddress:    deref(c.Address),
			FoundPhone:      deref(c.Telephone),
			DomainAuthority: c.DomainAuthority,
			SiteType:        c.SiteType,
		})
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
