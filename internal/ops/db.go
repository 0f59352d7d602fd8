package ops

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/supabase-community/supabase-go"
	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/pkg"
)

var ErrMissingTables = errors.New("expected tables are missing")

// TableChecker reports whether a table exists.
type TableChecker interface {
	HasTable(ctx context.Context, name string) (bool, error)
}

// GormTableChecker asks Postgres directly through the gorm migrator.
type GormTableChecker struct {
	db *gorm.DB
}

func NewGormTableChecker(db *gorm.DB) *GormTableChecker {
	return &GormTableChecker{db: db}
}

func (c *GormTableChecker) HasTable(ctx context.Context, name string) (bool, error) {
	return c.db.WithContext(ctx).Migrator().HasTable(name), nil
}

// SupabaseTableChecker selects one row of each table through the PostgREST API.
type SupabaseTableChecker struct {
	query func(table string) error
}

func NewSupabaseTableChecker(client *supabase.Client) *SupabaseTableChecker {
	return &SupabaseTableChecker{query: func(table string) error {
		_, _, err := client.From(table).Select("*", "exact", true).Limit(1, "").Execute()
		return err
	}}
}

func (c *SupabaseTableChecker) HasTable(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := c.query(name)
	if err == nil {
		return true, nil
	}
	if isMissingRelation(err) {
		return false, nil
	}
	return false, err
}

// PostgREST answers 42P01 or PGRST205 for unknown relations
func isMissingRelation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "42P01") ||
		strings.Contains(msg, "PGRST205") ||
		strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "Could not find the table")
}

// TableReport is the outcome of CheckTables.
type TableReport struct {
	Source  string
	Present []string
	Missing []string
}

// CheckTables asks checker about every name.
func CheckTables(ctx context.Context, checker TableChecker, names []string) (*TableReport, error) {
	report := &TableReport{}
	for _, name := range names {
		ok, err := checker.HasTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to check table %s: %w", name, err)
		}
		if ok {
			report.Present = append(report.Present, name)
		} else {
			report.Missing = append(report.Missing, name)
		}
	}
	return report, nil
}

// NewDBCommand creates the db command group.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database checks and migrations",
	}
	cmd.AddCommand(newDBCheckTablesCommand(rootOpts))
	cmd.AddCommand(newDBMigrateCommand(rootOpts))
	return cmd
}

func newDBCheckTablesCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check-tables",
		Short: "Verify that every platform table exists",
		Long: `Verify that every platform table exists.

Connects to Postgres with DATABASE_URL. When that connection cannot be
opened the check falls back to the Supabase REST API using SUPABASE_URL
and SUPABASE_SERVICE_ROLE_KEY.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runCheckTables(ctx, rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall time limit for the check")
	return cmd
}

func runCheckTables(ctx context.Context, opts *RootOptions, out, errOut io.Writer) error {
	checker, source, closeChecker, err := openTableChecker(ctx, opts, errOut)
	if err != nil {
		return err
	}
	defer closeChecker()

	report, err := CheckTables(ctx, checker, models.TableNames())
	if err != nil {
		return err
	}
	report.Source = source

	fmt.Fprintf(out, "Checked %d tables via %s\n", len(report.Present)+len(report.Missing), report.Source)
	for _, name := range report.Present {
		fmt.Fprintf(out, "  ok       %s\n", name)
	}
	for _, name := range report.Missing {
		fmt.Fprintf(out, "  missing  %s\n", name)
	}
	if len(report.Missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingTables, strings.Join(report.Missing, ", "))
	}
	return nil
}

// openTableChecker returns the checker plus a func releasing its connection
func openTableChecker(ctx context.Context, opts *RootOptions, errOut io.Writer) (TableChecker, string, func(), error) {
	cfg, err := opts.deps.LoadConfig()
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}

	db, dbErr := opts.deps.OpenDatabase(cfg)
	if dbErr == nil {
		if dbErr = pingDatabase(ctx, db); dbErr == nil {
			return NewGormTableChecker(db), "postgres", func() { closeDatabase(db) }, nil
		}
		closeDatabase(db)
	}

	fmt.Fprintf(errOut, "postgres unavailable (%v), falling back to supabase rest\n", dbErr)
	checker, err := opts.deps.OpenSupabase(cfg.Supabase)
	if err != nil {
		return nil, "", nil, fmt.Errorf("postgres unavailable and supabase fallback failed: %w", errors.Join(dbErr, err))
	}
	return checker, "supabase", func() {}, nil
}

func pingDatabase(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func newDBMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Create or update every platform table",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			db, err := rootOpts.deps.OpenDatabase(cfg)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			if err := pkg.AutoMigrate(db); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables\n", len(models.AllModels()))
			return nil
		},
	}
}
