package ops

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/config"
	"github.com/7p-education/platform/pkg"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	EnvFile string

	deps *Deps
}

// Deps are the process-level collaborators the commands reach for.
// Tests replace them to avoid touching the real environment.
type Deps struct {
	LookupEnv    func(key string) (string, bool)
	LoadConfig   func() (*config.Config, error)
	OpenDatabase func(cfg *config.Config) (*gorm.DB, error)
	OpenSupabase func(cfg config.SupabaseConfig) (TableChecker, error)
	Now          func() time.Time
}

func defaultDeps() *Deps {
	return &Deps{
		LookupEnv:    os.LookupEnv,
		LoadConfig:   config.LoadConfig,
		OpenDatabase: pkg.InitDatabase,
		OpenSupabase: func(cfg config.SupabaseConfig) (TableChecker, error) {
			client, err := pkg.NewSupabaseClient(cfg)
			if err != nil {
				return nil, err
			}
			return NewSupabaseTableChecker(client), nil
		},
		Now: time.Now,
	}
}

// NewRootCommand creates the root command for the platform operations CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDeps())
}

func newRootCommand(deps *Deps) *cobra.Command {
	opts := &RootOptions{deps: deps}

	cmd := &cobra.Command{
		Use:   "7p-ops",
		Short: "7P Education operations toolkit",
		Long:  "Operational checks and chores for the 7P Education platform: environment audit, database checks and docs housekeeping.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.EnvFile == "" {
				return nil
			}
			// A missing env file is fine, the process environment still applies
			if _, err := os.Stat(opts.EnvFile); err != nil {
				return nil
			}
			return godotenv.Load(opts.EnvFile)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before running the command")

	cmd.AddCommand(NewEnvCommand(opts))
	cmd.AddCommand(NewDBCommand(opts))
	cmd.AddCommand(NewDocsCommand(opts))

	return cmd
}
