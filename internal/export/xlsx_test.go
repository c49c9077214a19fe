package export

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/citation-cli/internal/model"
)

func readSheet(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := xlsx.OpenBinary(data)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok, "sheet %q missing", SheetName)

	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows
}

func TestWriteCitationsXLSX(t *testing.T) {
	rec := "Incorrect phone number on Yelp. Update to (555) 123-4567."
	checked := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	listings := []model.ReconciledListing{
		{
			Directory:     "Google",
			Status:        model.ListingStatusFound,
			NAPCorrect:    true,
			NameMatch:     true,
			AddressMatch:  true,
			PhoneMatch:    true,
			FoundName:     "Acme Dental",
			FoundPhone:    "5551234567",
			ListingURL:    "https://g.co/acme",
			LastCheckedAt: checked,
		},
		{
			Directory:      "Yelp",
			Status:         model.ListingStatusActionNeeded,
			NameMatch:      true,
			AddressMatch:   true,
			FoundPhone:     "5559999999",
			ListingURL:     "https://yelp.com/acme",
			Recommendation: &rec,
			LastCheckedAt:  checked,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCitationsXLSX(&buf, listings))

	rows := readSheet(t, buf.Bytes())
	require.Len(t, rows, 3)
	assert.Equal(t, Headers, rows[0])
	assert.Equal(t, []string{
		"Google", "found", "yes", "yes", "yes", "yes",
		"Acme Dental", "", "5551234567", "https://g.co/acme", "", "2026-03-10T12:00:00Z",
	}, rows[1])
	assert.Equal(t, "action_needed", rows[2][1])
	assert.Equal(t, "no", rows[2][2])
	assert.Equal(t, "no", rows[2][5])
	assert.Equal(t, rec, rows[2][10])
}

func TestWriteCitationsXLSX_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCitationsXLSX(&buf, nil))

	rows := readSheet(t, buf.Bytes())
	require.Len(t, rows, 1)
	assert.Equal(t, Headers, rows[0])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCitationsXLSX_WriteError(t *testing.T) {
	err := WriteCitationsXLSX(failingWriter{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "export: write workbook")
}

func TestListingRow_ZeroTime(t *testing.T) {
	row := listingRow(model.ReconciledListing{Directory: "Bing", Status: model.ListingStatusNotListed})
	assert.Equal(t, "", row[11])
	assert.Equal(t, "", row[10])
	assert.Equal(t, "not_listed", row[1])
}
