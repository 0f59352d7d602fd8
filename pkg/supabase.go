package pkg

import (
	"errors"
	"fmt"

	"github.com/supabase-community/supabase-go"

	"github.com/7p-education/platform/internal/config"
)

var ErrSupabaseNotConfigured = errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required")

// NewSupabaseClient builds a service-role client for storage and REST access
func NewSupabaseClient(cfg config.SupabaseConfig) (*supabase.Client, error) {
	if cfg.URL == "" || cfg.ServiceRoleKey == "" {
		return nil, ErrSupabaseNotConfigured
	}

	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, &supabase.ClientOptions{
		Headers: map[string]string{"X-Client-Info": "7p-education-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return client, nil
}
