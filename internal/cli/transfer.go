package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/store"
	"github.com/samueltauil/outpatient-flow-analytics-openshift/internal/transfer"
)

// Error codes for transfer failures.
const (
	ErrCodeTransferConfig = "E301"
	ErrCodeCentralDB      = "E302"
	ErrCodeTransferRun    = "E303"
)

// TransferResult is the JSON payload for a transfer run.
type TransferResult struct {
	SourceID     string `json:"source_id"`
	RowsFetched  int64  `json:"rows_fetched"`
	RowsInserted int64  `json:"rows_inserted"`
	Batches      int    `json:"batches"`
	Watermark    string `json:"watermark,omitempty"`
	NoNewData    bool   `json:"no_new_data"`
}

// NewTransferCommand creates the transfer command.
//
// Connection settings come from flags or the environment: EDGE_DB_PATH
// and CENTRAL_DB_DSN are read when the corresponding flag is not set, so
// the command runs unmodified inside a scheduled container.
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer new events from the edge store to the central database",
		Long: `Incrementally transfer case events from a SQLite edge database to the
central PostgreSQL store.

Only events created after the stored watermark are read, in batches.
Writes are idempotent on event id and the watermark advances only after
every batch has been written, so an interrupted run can simply be rerun.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTransfer(rootOpts, v, cmd)
		},
	}

	cmd.Flags().String("edge-db", "", "SQLite edge database path (env EDGE_DB_PATH)")
	cmd.Flags().String("central-dsn", "", "central PostgreSQL DSN (env CENTRAL_DB_DSN)")
	cmd.Flags().String("source-id", "", "source identifier for the watermark (env TRANSFER_SOURCE_ID)")
	cmd.Flags().Int("batch-size", 500, "rows per batch (env TRANSFER_BATCH_SIZE)")
	cmd.Flags().Duration("timeout", 5*time.Minute, "overall run timeout")
	cmd.Flags().Bool("ensure-schema", false, "create central tables if missing")
	cmd.Flags().String("catalog", "", "catalog directory for central reference seeding (default: embedded)")

	v.BindPFlag("edge_db", cmd.Flags().Lookup("edge-db"))
	v.BindPFlag("central_dsn", cmd.Flags().Lookup("central-dsn"))
	v.BindPFlag("source_id", cmd.Flags().Lookup("source-id"))
	v.BindPFlag("batch_size", cmd.Flags().Lookup("batch-size"))
	v.BindEnv("edge_db", "EDGE_DB_PATH")
	v.BindEnv("central_dsn", "CENTRAL_DB_DSN")
	v.BindEnv("source_id", "TRANSFER_SOURCE_ID")
	v.BindEnv("batch_size", "TRANSFER_BATCH_SIZE")

	return cmd
}

func runTransfer(rootOpts *RootOptions, v *viper.Viper, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	edgePath := v.GetString("edge_db")
	centralDSN := v.GetString("central_dsn")
	sourceID := v.GetString("source_id")
	batchSize := v.GetInt("batch_size")

	if edgePath == "" {
		return outputCommandError(formatter, ErrCodeTransferConfig, "edge database path required (--edge-db or EDGE_DB_PATH)")
	}
	if centralDSN == "" {
		return outputCommandError(formatter, ErrCodeTransferConfig, "central DSN required (--central-dsn or CENTRAL_DB_DSN)")
	}
	if sourceID == "" {
		return outputCommandError(formatter, ErrCodeTransferConfig, "source id required (--source-id or TRANSFER_SOURCE_ID)")
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	edge, err := store.OpenSQLite(edgePath)
	if err != nil {
		_ = formatter.Error(ErrCodeEdgeDB, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	defer edge.Close()

	central, err := store.OpenPostgres(ctx, centralDSN)
	if err != nil {
		_ = formatter.Error(ErrCodeCentralDB, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}
	defer central.Close()

	if ensure, _ := cmd.Flags().GetBool("ensure-schema"); ensure {
		if err := prepareCentral(ctx, central, cmd); err != nil {
			_ = formatter.Error(ErrCodeCentralDB, err.Error(), nil)
			return NewExitError(ExitCommandError, err.Error())
		}
	}

	engine, err := transfer.New(edge, central, sourceID, batchSize)
	if err != nil {
		return outputCommandError(formatter, ErrCodeTransferConfig, err.Error())
	}

	res, err := engine.Run(ctx)
	if err != nil {
		return outputTransferError(formatter, err)
	}

	return outputTransferResult(formatter, res)
}

// prepareCentral creates the central schema and seeds reference rows so
// a fresh database can receive its first transfer.
func prepareCentral(ctx context.Context, central *store.Postgres, cmd *cobra.Command) error {
	if err := central.EnsureSchema(ctx); err != nil {
		return err
	}
	catalogDir, _ := cmd.Flags().GetString("catalog")
	cat, err := loadCatalog(catalogDir, "")
	if err != nil {
		return err
	}
	return central.SeedReference(ctx, cat)
}

func outputTransferResult(formatter *OutputFormatter, res *transfer.Result) error {
	result := TransferResult{
		SourceID:     res.SourceID,
		RowsFetched:  res.RowsFetched,
		RowsInserted: res.RowsInserted,
		Batches:      res.Batches,
		NoNewData:    res.NoNewData,
	}
	if !res.Watermark.IsZero() {
		result.Watermark = res.Watermark.UTC().Format(time.RFC3339Nano)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if res.NoNewData {
		fmt.Fprintf(formatter.Writer, "No new events for source %s\n", res.SourceID)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "Transferred %d/%d event(s) in %d batch(es) for source %s\n",
		res.RowsInserted, res.RowsFetched, res.Batches, res.SourceID)
	fmt.Fprintf(formatter.Writer, "Watermark advanced to %s\n", result.Watermark)
	return nil
}

// outputTransferError reports a failed run with the state it stopped in.
// Run failures exit 1; the watermark is still at its last good value.
func outputTransferError(formatter *OutputFormatter, err error) error {
	var runErr *transfer.RunError
	if errors.As(err, &runErr) {
		details := map[string]any{
			"state": runErr.State.String(),
			"batch": runErr.Batch,
		}
		if !runErr.LastGood.IsZero() {
			details["watermark"] = runErr.LastGood.UTC().Format(time.RFC3339Nano)
		}
		_ = formatter.Error(ErrCodeTransferRun, runErr.Error(), details)
		return NewExitError(ExitFailure, runErr.Error())
	}
	_ = formatter.Error(ErrCodeTransferRun, err.Error(), nil)
	return NewExitError(ExitFailure, err.Error())
}
