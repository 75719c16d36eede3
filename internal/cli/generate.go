package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/catalog"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/event"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/gen"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/store"
)

// Error codes for generate and shared command failures.
const (
	ErrCodeGeneric    = "E001"
	ErrCodeBadDate    = "E201"
	ErrCodeGeneration = "E202"
	ErrCodeEdgeDB     = "E203"
	ErrCodeExport     = "E204"
)

const dateLayout = "2006-01-02"

// GenerateResult is the JSON payload for a generate run.
type GenerateResult struct {
	Cases      int            `json:"cases"`
	Days       int            `json:"days"`
	Facilities int            `json:"facilities"`
	ByStatus   map[string]int `json:"by_status"`
	Inserted   int64          `json:"inserted,omitempty"`
	Database   string         `json:"database,omitempty"`
	Output     string         `json:"output,omitempty"`
}

type generateOptions struct {
	From        string
	To          string
	Seed        int64
	Facilities  []string
	CatalogDir  string
	Overrides   string
	Database    string
	Out         string
	GeneratorID string
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate deterministic outpatient case events",
		Long: `Generate a seeded, reproducible stream of outpatient case events.

The same seed, date range and catalog always produce byte-identical
output. Events can be written to a local SQLite edge database, exported
to JSON or CSV, or both.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.From, "from", "", "start date (YYYY-MM-DD, inclusive)")
	cmd.Flags().StringVar(&opts.To, "to", "", "end date (YYYY-MM-DD, inclusive)")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 42, "generator seed")
	cmd.Flags().StringSliceVar(&opts.Facilities, "facility", nil, "restrict to facility id (repeatable)")
	cmd.Flags().StringVar(&opts.CatalogDir, "catalog", "", "catalog directory (default: embedded catalog)")
	cmd.Flags().StringVar(&opts.Overrides, "overrides", "", "YAML volume overrides file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite edge database path to write events into")
	cmd.Flags().StringVar(&opts.Out, "out", "", "export file (.json or .csv)")
	cmd.Flags().StringVar(&opts.GeneratorID, "generator-id", gen.DefaultGeneratorID, "source generator id stamped on events")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")

	return cmd
}

func runGenerate(rootOpts *RootOptions, opts *generateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	from, err := time.Parse(dateLayout, opts.From)
	if err != nil {
		return outputCommandError(formatter, ErrCodeBadDate, fmt.Sprintf("invalid --from date %q", opts.From))
	}
	to, err := time.Parse(dateLayout, opts.To)
	if err != nil {
		return outputCommandError(formatter, ErrCodeBadDate, fmt.Sprintf("invalid --to date %q", opts.To))
	}

	cat, err := loadCatalog(opts.CatalogDir, opts.Overrides)
	if err != nil {
		return outputCatalogError(formatter, err)
	}
	formatter.VerboseLog("catalog loaded: %d procedures, %d facilities",
		len(cat.Procedures()), len(cat.Facilities()))

	events, err := gen.New(cat).Run(gen.Options{
		Start:       from,
		End:         to,
		Seed:        opts.Seed,
		GeneratorID: opts.GeneratorID,
		Facilities:  opts.Facilities,
	})
	if err != nil {
		_ = formatter.Error(ErrCodeGeneration, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	summary := gen.Summarize(events)
	result := GenerateResult{
		Cases:      summary.Cases,
		Days:       summary.Days,
		Facilities: summary.Facilities,
		ByStatus:   statusCounts(summary),
	}

	if opts.Database != "" {
		inserted, err := writeToEdgeDB(cmd, opts.Database, cat, events)
		if err != nil {
			_ = formatter.Error(ErrCodeEdgeDB, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		result.Inserted = inserted
		result.Database = opts.Database
		formatter.VerboseLog("wrote %d new event(s) to %s", inserted, opts.Database)
	}

	if opts.Out != "" {
		if err := exportEvents(opts.Out, events); err != nil {
			_ = formatter.Error(ErrCodeExport, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
		result.Output = opts.Out
	}

	return outputGenerateResult(formatter, result)
}

func writeToEdgeDB(cmd *cobra.Command, path string, cat *catalog.Catalog, events []event.CaseEvent) (int64, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	ctx := cmd.Context()
	if err := db.SeedReference(ctx, cat); err != nil {
		return 0, err
	}
	return db.WriteEvents(ctx, events)
}

// exportEvents writes events as JSON or CSV based on the file extension.
func exportEvents(path string, events []event.CaseEvent) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = event.WriteJSON(f, events)
	case ".csv":
		err = event.WriteCSV(f, events)
	default:
		f.Close()
		return fmt.Errorf("unsupported export extension %q: use .json or .csv", filepath.Ext(path))
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("export events: %w", err)
	}
	return f.Close()
}

func statusCounts(s gen.Summary) map[string]int {
	out := make(map[string]int, len(s.ByStatus))
	for status, n := range s.ByStatus {
		out[string(status)] = n
	}
	return out
}

func outputGenerateResult(formatter *OutputFormatter, result GenerateResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "Generated %d case(s) across %d day(s) and %d facilit(ies)\n",
		result.Cases, result.Days, result.Facilities)
	for status, n := range result.ByStatus {
		fmt.Fprintf(formatter.Writer, "  %-24s %d\n", status, n)
	}
	if result.Database != "" {
		fmt.Fprintf(formatter.Writer, "Inserted %d new event(s) into %s\n", result.Inserted, result.Database)
	}
	if result.Output != "" {
		fmt.Fprintf(formatter.Writer, "Exported to %s\n", result.Output)
	}
	return nil
}

// loadCatalog loads the embedded catalog or a directory, then applies
// volume overrides if given.
func loadCatalog(dir, overridesPath string) (*catalog.Catalog, error) {
	cat, err := catalog.Load(dir)
	if err != nil {
		return nil, err
	}
	if overridesPath != "" {
		ov, err := catalog.LoadOverrides(overridesPath)
		if err != nil {
			return nil, err
		}
		cat, err = cat.WithOverrides(ov)
		if err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// outputCatalogError maps catalog load failures to their positioned
// error codes where available.
func outputCatalogError(formatter *OutputFormatter, err error) error {
	var cfgErr *catalog.ConfigError
	if errors.As(err, &cfgErr) {
		_ = formatter.Error(cfgErr.Code, cfgErr.Message, nil)
		return NewExitError(ExitCommandError, cfgErr.Error())
	}
	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return NewExitError(ExitCommandError, err.Error())
}

func outputCommandError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}
