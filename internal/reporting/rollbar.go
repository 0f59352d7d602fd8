package reporting

import (
	"net/http"
	"os"

	"github.com/rollbar/rollbar-go"

	"github.com/7p-education/platform/internal/config"
)

// Reporter forwards unexpected errors to an error tracker
type Reporter interface {
	Error(err error, req *http.Request, extras map[string]interface{})
	Close()
}

// NewReporter returns a Rollbar reporter when a token is configured, a no-op otherwise
func NewReporter(cfg *config.Config) Reporter {
	if cfg.Rollbar.Token == "" {
		return NopReporter{}
	}

	host, _ := os.Hostname()
	rollbar.SetToken(cfg.Rollbar.Token)
	rollbar.SetEnvironment(cfg.Environment)
	rollbar.SetCodeVersion(cfg.Rollbar.CodeVersion)
	rollbar.SetServerHost(host)
	rollbar.SetServerRoot("github.com/7p-education/platform")
	return &RollbarReporter{}
}

type RollbarReporter struct{}

func (RollbarReporter) Error(err error, req *http.Request, extras map[string]interface{}) {
	if req != nil {
		rollbar.RequestErrorWithExtras(rollbar.ERR, req, err, extras)
		return
	}
	rollbar.ErrorWithExtras(rollbar.ERR, err, extras)
}

func (RollbarReporter) Close() {
	rollbar.Wait()
	rollbar.Close()
}

type NopReporter struct{}

func (NopReporter) Error(error, *http.Request, map[string]interface{}) {}
func (NopReporter) Close()                                             {}
