package ops

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var ErrMissingRequiredEnv = errors.New("required environment variables are missing")

// EnvVar describes one setting the platform reads from the environment.
type EnvVar struct {
	Name     string
	Required bool
	Secret   bool
	Purpose  string
}

// KnownEnvVars is the audited environment surface.
var KnownEnvVars = []EnvVar{
	{Name: "DATABASE_URL", Required: true, Secret: true, Purpose: "Postgres connection string"},
	{Name: "SUPABASE_JWT_SECRET", Required: true, Secret: true, Purpose: "Supabase access token verification"},
	{Name: "SESSION_SECRET", Required: true, Secret: true, Purpose: "platform session and MFA challenge tokens"},
	{Name: "MFA_ENCRYPTION_KEY", Required: true, Secret: true, Purpose: "TOTP secret encryption"},
	{Name: "FRONTEND_URL", Required: true, Purpose: "CORS origin and redirect target"},
	{Name: "ENVIRONMENT", Purpose: "development or production"},
	{Name: "PORT", Purpose: "HTTP listen port"},
	{Name: "REDIS_URL", Secret: true, Purpose: "rate limits, MFA attempts and cache"},
	{Name: "AUTH_PROVIDER", Purpose: "supabase or casdoor"},
	{Name: "ENROLLMENT_ACCESS_PERIOD", Purpose: "enrollment lifetime such as 8760h; unset means lifetime access"},
	{Name: "COOKIE_SECRET", Secret: true, Purpose: "OAuth state cookie signing"},
	{Name: "SUPABASE_URL", Purpose: "storage and REST fallback"},
	{Name: "SUPABASE_SERVICE_ROLE_KEY", Secret: true, Purpose: "storage and REST fallback"},
	{Name: "GOOGLE_CLIENT_ID", Purpose: "Google sign-in"},
	{Name: "GOOGLE_CLIENT_SECRET", Secret: true, Purpose: "Google sign-in"},
	{Name: "GOOGLE_REDIRECT_URL", Purpose: "Google sign-in callback"},
	{Name: "STRIPE_ENABLED", Purpose: "payments feature flag"},
	{Name: "STRIPE_SECRET_KEY", Secret: true, Purpose: "Stripe API"},
	{Name: "STRIPE_WEBHOOK_SECRET", Secret: true, Purpose: "Stripe webhook signatures"},
	{Name: "SENDGRID_API_KEY", Secret: true, Purpose: "transactional email"},
	{Name: "KAFKA_BROKERS", Purpose: "event transport"},
	{Name: "ROLLBAR_TOKEN", Secret: true, Purpose: "error reporting"},
	{Name: "CASDOOR_ENDPOINT", Purpose: "Casdoor token verification"},
}

// EnvStatus is the audit outcome for one variable.
type EnvStatus struct {
	EnvVar
	Present bool
	Value   string
}

// AuditEnv checks vars against lookup. Secret values are masked.
func AuditEnv(vars []EnvVar, lookup func(string) (string, bool)) []EnvStatus {
	statuses := make([]EnvStatus, 0, len(vars))
	for _, v := range vars {
		raw, ok := lookup(v.Name)
		raw = strings.TrimSpace(raw)
		status := EnvStatus{EnvVar: v, Present: ok && raw != ""}
		if status.Present {
			if v.Secret {
				status.Value = MaskValue(raw)
			} else {
				status.Value = raw
			}
		}
		statuses = append(statuses, status)
	}
	return statuses
}

// MaskValue keeps the first and last two characters of long values.
func MaskValue(value string) string {
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
}

// NewEnvCommand creates the env command group.
func NewEnvCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Inspect the runtime environment",
	}
	cmd.AddCommand(newEnvAuditCommand(rootOpts))
	return cmd
}

func newEnvAuditCommand(rootOpts *RootOptions) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Report required and optional environment variables",
		Long: `Report which platform environment variables are set.

Secret values are masked. With --strict the command fails when a
required variable is missing, which makes it usable as a deploy gate.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := AuditEnv(KnownEnvVars, rootOpts.deps.LookupEnv)
			missing := writeEnvReport(cmd.OutOrStdout(), statuses, rootOpts.Verbose)
			if strict && len(missing) > 0 {
				return fmt.Errorf("%w: %s", ErrMissingRequiredEnv, strings.Join(missing, ", "))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when a required variable is missing")
	return cmd
}

func writeEnvReport(w io.Writer, statuses []EnvStatus, verbose bool) []string {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIABLE\tKIND\tSTATUS\tVALUE")

	var missing []string
	for _, s := range statuses {
		kind := "optional"
		if s.Required {
			kind = "required"
		}
		state := "set"
		if !s.Present {
			state = "missing"
			if s.Required {
				missing = append(missing, s.Name)
			}
		}
		value := s.Value
		if verbose {
			value = strings.TrimSpace(value + "  # " + s.Purpose)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Name, kind, state, value)
	}
	tw.Flush()

	if len(missing) == 0 {
		fmt.Fprintln(w, "\nAll required variables are set.")
	} else {
		fmt.Fprintf(w, "\n%d required variable(s) missing: %s\n", len(missing), strings.Join(missing, ", "))
	}
	return missing
}
