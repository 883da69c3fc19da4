package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"options-analyzer/internal/analysis/chain"
	apperrors "options-analyzer/internal/errors"
	"options-analyzer/internal/models"
	"options-analyzer/internal/store"
)

// snapshotRef identifies a stored snapshot from command flags. Empty date or
// hour resolve to the latest stored one.
type snapshotRef struct {
	ticker string
	date   string
	hour   string
}

func (r *snapshotRef) bind(cmd *cobra.Command, prefix, usage string) {
	flag := func(name string) string {
		if prefix == "" {
			return name
		}
		return prefix + "-" + name
	}
	cmd.Flags().StringVar(&r.ticker, flag("ticker"), "", usage+" ticker")
	cmd.Flags().StringVar(&r.date, flag("date"), "", usage+" date (default: latest)")
	cmd.Flags().StringVar(&r.hour, flag("hour"), "", usage+" hour bucket, e.g. 15_30 (default: latest)")
}

// resolve finds the snapshot metadata the flags point at.
func (r snapshotRef) resolve(ctx context.Context, ds store.DataStore) (models.SnapshotMeta, error) {
	if r.ticker == "" {
		return models.SnapshotMeta{}, apperrors.NewValidationError("ticker", r.ticker, "ticker is required")
	}
	filter := store.SnapshotFilter{Ticker: r.ticker, Hour: r.hour}
	if r.date != "" {
		d, err := chain.ParseDate(r.date)
		if err != nil {
			return models.SnapshotMeta{}, apperrors.NewValidationError("date", r.date, err.Error())
		}
		filter.StartDate, filter.EndDate = d, d
	}

	metas, err := ds.ListSnapshots(ctx, filter)
	if err != nil {
		return models.SnapshotMeta{}, err
	}
	if len(metas) == 0 {
		return models.SnapshotMeta{}, apperrors.NewDataError("snapshot", r.ticker,
			fmt.Sprintf("no snapshot for date=%q hour=%q", r.date, r.hour), apperrors.ErrDataNotFound)
	}
	return metas[len(metas)-1], nil
}

// load resolves and reads the snapshot.
func (r snapshotRef) load(ctx context.Context, ds store.DataStore) (*models.Snapshot, error) {
	meta, err := r.resolve(ctx, ds)
	if err != nil {
		return nil, err
	}
	return ds.GetSnapshot(ctx, meta.Ticker, meta.Date, meta.Hour)
}

func snapshotLabel(m models.SnapshotMeta) string {
	return fmt.Sprintf("%s %s %s", m.Ticker, m.Date.Format("2006-01-02"), m.Hour)
}

func addSnapshotCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List and delete stored chain snapshots",
	}
	cmd.AddCommand(newSnapshotsListCmd(app))
	cmd.AddCommand(newSnapshotsDeleteCmd(app))
	rootCmd.AddCommand(cmd)
}

func newSnapshotsListCmd(app *App) *cobra.Command {
	var (
		ticker   string
		from, to string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Example: `  optanalyzer snapshots list --ticker SPX
  optanalyzer snapshots list --ticker SPX --from 2024-03-01 --to 2024-03-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ds, err := app.Store()
			if err != nil {
				return err
			}

			filter := store.SnapshotFilter{Ticker: ticker, Limit: limit}
			if filter.StartDate, err = optionalDate("from", from); err != nil {
				return err
			}
			if filter.EndDate, err = optionalDate("to", to); err != nil {
				return err
			}

			metas, err := ds.ListSnapshots(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				type entry struct {
					Ticker string `json:"ticker"`
					Date   string `json:"date"`
					Hour   string `json:"hour"`
				}
				entries := make([]entry, len(metas))
				for i, m := range metas {
					entries[i] = entry{m.Ticker, m.Date.Format("2006-01-02"), m.Hour}
				}
				return output.JSON(entries)
			}

			if len(metas) == 0 {
				output.Warning("No snapshots stored")
				return nil
			}
			table := NewTable(output, "Ticker", "Date", "Hour")
			for _, m := range metas {
				table.AddRow(m.Ticker, m.Date.Format("2006-01-02"), m.Hour)
			}
			table.Render()
			output.Dim("%d snapshot(s)", len(metas))
			return nil
		},
	}

	cmd.Flags().StringVar(&ticker, "ticker", "", "filter by ticker")
	cmd.Flags().StringVar(&from, "from", "", "first date (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "last date (inclusive)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of snapshots")
	return cmd
}

func newSnapshotsDeleteCmd(app *App) *cobra.Command {
	var ref snapshotRef

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete one snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if ref.date == "" || ref.hour == "" {
				return apperrors.NewValidationError("snapshot", ref, "delete needs --ticker, --date and --hour")
			}
			ds, err := app.Store()
			if err != nil {
				return err
			}
			meta, err := ref.resolve(cmd.Context(), ds)
			if err != nil {
				return err
			}
			if err := ds.DeleteSnapshot(cmd.Context(), meta); err != nil {
				return err
			}
			app.Logger.Info().Str("snapshot", snapshotLabel(meta)).Msg("Snapshot deleted")

			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": snapshotLabel(meta)})
			}
			output.Success("✓ Deleted %s", snapshotLabel(meta))
			return nil
		},
	}

	ref.bind(cmd, "", "snapshot")
	return cmd
}

func optionalDate(field, v string) (time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return time.Time{}, nil
	}
	t, err := chain.ParseDate(v)
	if err != nil {
		return time.Time{}, apperrors.NewValidationError(field, v, err.Error())
	}
	return t, nil
}
