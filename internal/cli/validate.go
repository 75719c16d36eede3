package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult holds catalog validation results.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Procedures  int      `json:"procedures,omitempty"`
	Facilities  int      `json:"facilities,omitempty"`
	ServiceLine []string `json:"service_lines,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var catalogDir, overridesPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a catalog without generating events",
		Long: `Validate catalog CUE files and optional volume overrides.

Checks schema conformance, weight tables, timezone and cross-references
without generating any events. Faster feedback than a full generate run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidateCatalog(rootOpts, catalogDir, overridesPath, cmd)
		},
	}

	cmd.Flags().StringVar(&catalogDir, "catalog", "", "catalog directory (default: embedded catalog)")
	cmd.Flags().StringVar(&overridesPath, "overrides", "", "YAML volume overrides file")

	return cmd
}

func runValidateCatalog(rootOpts *RootOptions, catalogDir, overridesPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	cat, err := loadCatalog(catalogDir, overridesPath)
	if err != nil {
		return outputCatalogError(formatter, err)
	}

	result := ValidationResult{
		Valid:       true,
		Procedures:  len(cat.Procedures()),
		Facilities:  len(cat.Facilities()),
		ServiceLine: cat.ServiceLines(),
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, "✓ Catalog valid")
	fmt.Fprintf(formatter.Writer, "  %d procedure(s), %d facilit(ies), %d service line(s)\n",
		result.Procedures, result.Facilities, len(result.ServiceLine))
	return nil
}
