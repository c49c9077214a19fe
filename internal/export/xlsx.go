// Package export renders reconciled citation listings for reporting.
package export

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/citation-cli/internal/model"
)

// SheetName is the worksheet that holds the exported listings.
const SheetName = "Citations"

// Headers is the header row of the exported sheet.
var Headers = []string{
	"Directory",
	"Status",
	"NAP Correct",
	"Name Match",
	"Address Match",
	"Phone Match",
	"Found Name",
	"Found Address",
	"Found Phone",
	"Listing URL",
	"Recommendation",
	"Last Checked",
}

// WriteCitationsXLSX writes listings as a single-sheet workbook to w, one
// row per listing in the order given.
func WriteCitationsXLSX(w io.Writer, listings []model.ReconciledListing) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, Headers)
	for _, l := range listings {
		addRow(sheet, listingRow(l))
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write workbook")
	}
	return nil
}

func listingRow(l model.ReconciledListing) []string {
	rec := ""
	if l.Recommendation != nil {
		rec = *l.Recommendation
	}
	checked := ""
	if !l.LastCheckedAt.IsZero() {
		checked = l.LastCheckedAt.UTC().Format(time.RFC3339)
	}
	return []string{
		l.Directory,
		string(l.Status),
		yesNo(l.NAPCorrect),
		yesNo(l.NameMatch),
		yesNo(l.AddressMatch),
		yesNo(l.PhoneMatch),
		l.FoundName,
		l.FoundAddress,
		l.FoundPhone,
		l.ListingURL,
		rec,
		checked,
	}
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
