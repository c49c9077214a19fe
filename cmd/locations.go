package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/citation-cli/internal/config"
	"github.com/sells-group/citation-cli/internal/model"
)

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "Manage audited locations",
}

// -- locations import --

var locationsImportCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import or update locations from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "locations import: open file")
		}
		defer f.Close() //nolint:errcheck

		locs, err := parseLocations(f)
		if err != nil {
			return err
		}

		st, err := initStore(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, loc := range locs {
			if err := st.UpsertLocation(ctx, loc); err != nil {
				return eris.Wrapf(err, "locations import: upsert %s", loc.ID)
			}
		}

		zap.L().Info("locations imported", zap.Int("count", len(locs)))
		return nil
	},
}

// -- locations show --

var locationsShowCmd = &cobra.Command{
	Use:   "show <location-id>",
	Short: "Show a location and its reconciled citations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, config.ModeStore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		loc, err := st.GetLocation(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "locations show")
		}
		listings, err := st.ListReconciledListings(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "locations show")
		}

		return writeJSON(os.Stdout, struct {
			Location  *model.Location           `json:"location"`
			Citations []model.ReconciledListing `json:"citations"`
		}{loc, listings})
	},
}

func init() {
	locationsCmd.AddCommand(locationsImportCmd)
	locationsCmd.AddCommand(locationsShowCmd)
	rootCmd.AddCommand(locationsCmd)
}

// locationsFile is the import file layout.
type locationsFile struct {
	Locations []model.Location `yaml:"locations" validate:"required,min=1,dive"`
}

// parseLocations decodes and validates a locations YAML document.
func parseLocations(r io.Reader) ([]model.Location, error) {
	var doc locationsFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, eris.New("locations: file is empty")
		}
		return nil, eris.Wrap(err, "locations: decode yaml")
	}

	if err := validator.New().Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, eris.Wrap(err, "locations: validate")
		}
		problems := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
		}
		return nil, eris.Errorf("locations: %s", strings.Join(problems, "; "))
	}

	seen := make(map[string]bool, len(doc.Locations))
	for _, loc := range doc.Locations {
		if seen[loc.ID] {
			return nil, eris.Errorf("locations: duplicate id %q", loc.ID)
		}
		seen[loc.ID] = true
	}
	return doc.Locations, nil
}
