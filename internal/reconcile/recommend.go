package reconcile

import (
	"fmt"
	"strings"

	"github.com/sells-group/citation-cli/internal/model"
)

const (
	issueBusinessName = "business name"
	issuePhoneNumber  = "phone number"
)

// BuildRecommendation returns the remediation text for a listing, or nil when
// nothing is actionable. Address mismatches are not surfaced here even though
// they fail NAPCorrect.
func BuildRecommendation(listing model.ProviderListing, isLive bool, expectedName, expectedPhone string) *string {
	if !isLive {
		msg := fmt.Sprintf("Not listed on %s. Submit business listing to improve citation coverage.", listing.Source)
		return &msg
	}

	var issues []string
	if listing.FoundName != "" && NormalizeText(listing.FoundName) != NormalizeText(expectedName) {
		issues = append(issues, issueBusinessName)
	}
	if listing.FoundPhone != "" && NormalizePhone(listing.FoundPhone) != NormalizePhone(expectedPhone) {
		issues = append(issues, issuePhoneNumber)
	}
	if len(issues) == 0 {
		return nil
	}

	msg := fmt.Sprintf("Incorrect %s on %s. Update the listing to match current business information.",
		strings.Join(issues, ", "), listing.Source)
	return &msg
}
