// Package model defines the domain types shared across the citation audit engine.
package model

import (
	"strings"
	"time"
)

// Location is a managed business location as held by the host application.
// Only the NAP fields needed for citation comparison are modeled.
type Location struct {
	ID           string    `json:"id" yaml:"id" validate:"required"`
	Name         string    `json:"name" yaml:"name" validate:"required"`
	Phone        string    `json:"phone" yaml:"phone"`
	AddressLine1 string    `json:"address_line1" yaml:"address_line1"`
	City         string    `json:"city" yaml:"city"`
	State        string    `json:"state" yaml:"state"`
	PostalCode   string    `json:"postal_code" yaml:"postal_code"`
	CreatedAt    time.Time `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"-"`
}

// Record returns the authoritative NAP record for the location.
func (l Location) Record() AuthoritativeRecord {
	return AuthoritativeRecord{
		LocationID:  l.ID,
		Name:        l.Name,
		Phone:       l.Phone,
		AddressLine: l.AddressLine1,
		City:        l.City,
		Region:      l.State,
		PostalCode:  l.PostalCode,
	}
}

// AuthoritativeRecord is the business's own source-of-truth NAP data.
type AuthoritativeRecord struct {
	LocationID  string `json:"location_id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	AddressLine string `json:"address_line"`
	City        string `json:"city"`
	Region      string `json:"region"`
	PostalCode  string `json:"postal_code"`
}

// ExpectedAddress joins the non-empty address parts with ", ".
func (r AuthoritativeRecord) ExpectedAddress() string {
	parts := make([]string, 0, 4)
	for _, p := range []string{r.AddressLine, r.City, r.Region, r.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// ProviderStatus is the provider's confidence that a listing exists.
type ProviderStatus string

const (
	ProviderStatusActive   ProviderStatus = "active"
	ProviderStatusPending  ProviderStatus = "pending"
	ProviderStatusPossible ProviderStatus = "possible"
)

// Valid reports whether s is one of the known provider statuses.
func (s ProviderStatus) Valid() bool {
	switch s {
	case ProviderStatusActive, ProviderStatusPending, ProviderStatusPossible:
		return true
	}
	return false
}

// ProviderListing is one directory result reported by the external provider.
// Empty strings stand for values the provider did not report.
type ProviderListing struct {
	Source          string         `json:"source"`
	ListingURL      string         `json:"listing_url,omitempty"`
	ProviderStatus  ProviderStatus `json:"provider_status"`
	FoundName       string         `json:"found_name,omitempty"`
	FoundAddress    string         `json:"found_address,omitempty"`
	FoundPhone      string         `json:"found_phone,omitempty"`
	DomainAuthority int            `json:"domain_authority,omitempty"`
	SiteType        string         `json:"site_type,omitempty"`
}

// HasURL reports whether the provider found a listing URL.
func (l ProviderListing) HasURL() bool {
	return l.ListingURL != ""
}

// ListingStatus is the reconciled health of a single citation.
type ListingStatus string

const (
	ListingStatusNotListed    ListingStatus = "not_listed"
	ListingStatusActionNeeded ListingStatus = "action_needed"
	ListingStatusFound        ListingStatus = "found"
)

// ReconciledListing is the per-directory audit result for a location. It is
// upserted on (LocationID, Directory) by every completed audit run.
type ReconciledListing struct {
	LocationID      string         `json:"location_id"`
	AuditRunID      string         `json:"audit_run_id"`
	Directory       string         `json:"directory"`
	ListingURL      string         `json:"listing_url,omitempty"`
	ProviderStatus  ProviderStatus `json:"provider_status"`
	DomainAuthority int            `json:"domain_authority,omitempty"`
	SiteType        string         `json:"site_type,omitempty"`

	ExpectedName    string `json:"expected_name"`
	ExpectedAddress string `json:"expected_address"`
	ExpectedPhone   string `json:"expected_phone"`
	FoundName       string `json:"found_name,omitempty"`
	FoundAddress    string `json:"found_address,omitempty"`
	FoundPhone      string `json:"found_phone,omitempty"`

	NameMatch    bool `json:"name_match"`
	AddressMatch bool `json:"address_match"`
	PhoneMatch   bool `json:"phone_match"`
	NAPCorrect   bool `json:"nap_correct"`

	Status         ListingStatus `json:"status"`
	Recommendation *string       `json:"recommendation"`
	LastCheckedAt  time.Time     `json:"last_checked_at"`
}

// AuditStatus is the lifecycle state of an audit run.
type AuditStatus string

const (
	AuditStatusSubmitted AuditStatus = "submitted"
	AuditStatusRunning   AuditStatus = "running"
	AuditStatusCompleted AuditStatus = "completed"
	AuditStatusFailed    AuditStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s AuditStatus) Terminal() bool {
	return s == AuditStatusCompleted || s == AuditStatusFailed
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s AuditStatus) CanTransition(next AuditStatus) bool {
	switch s {
	case AuditStatusSubmitted:
		return next == AuditStatusRunning || next == AuditStatusFailed
	case AuditStatusRunning:
		return next == AuditStatusCompleted || next == AuditStatusFailed
	}
	return false
}

// AuditSummary holds the aggregate counts computed when a run completes.
// TotalFound counts every listing the provider returned, missing ones included.
type AuditSummary struct {
	TotalFound     int `json:"total_found"`
	TotalCorrect   int `json:"total_correct"`
	TotalIncorrect int `json:"total_incorrect"`
	TotalMissing   int `json:"total_missing"`
}

// AuditRun is one submit -> poll -> reconcile execution for a location.
type AuditRun struct {
	ID               string      `json:"id"`
	LocationID       string      `json:"location_id"`
	ProviderReportID string      `json:"provider_report_id"`
	Status           AuditStatus `json:"status"`
	AuditSummary
	Error       string     `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
