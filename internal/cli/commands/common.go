package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rs/zerolog"

	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/history"
	"github.com/firerestore-dev/firerestore/internal/models"
	"github.com/firerestore-dev/firerestore/internal/wizard"
)

// Env carries what every command needs. The root command fills it in before
// any subcommand runs.
type Env struct {
	Gateway     *gcloud.Gateway
	Options     wizard.Options
	DatabaseURL string // empty = no restore history
	Out         io.Writer
	Logger      zerolog.Logger
	JSON        bool
}

// openHistory opens the restore history store, or returns nil when none is configured
func (e *Env) openHistory() (*history.Service, func(), error) {
	if e.DatabaseURL == "" {
		return nil, func() {}, nil
	}
	db, err := models.Open(e.DatabaseURL, e.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open history database: %w", err)
	}
	closeFn := func() {
		if err := models.Close(db); err != nil {
			e.Logger.Warn().Err(err).Msg("Failed to close history database")
		}
	}
	return history.NewService(db, e.Logger), closeFn, nil
}

// printJSON writes v indented
func (e *Env) printJSON(v interface{}) error {
	enc := json.NewEncoder(e.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table returns a tabwriter with the given header and an underline row
func (e *Env) table(columns ...string) *tabwriter.Writer {
	w := tabwriter.NewWriter(e.Out, 0, 0, 2, ' ', 0)
	var header, underline string
	for i, col := range columns {
		if i > 0 {
			header += "\t"
			underline += "\t"
		}
		header += col
		for range col {
			underline += "─"
		}
	}
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, underline)
	return w
}

// requireAuth fails unless the CLI is installed and logged in
func (e *Env) requireAuth(status gcloud.AuthStatus) error {
	if !status.Installed {
		return fmt.Errorf("gcloud CLI not found. Install the Google Cloud SDK and make sure gcloud is on PATH")
	}
	if !status.Authenticated {
		return fmt.Errorf("gcloud CLI is not authenticated. Run 'gcloud auth login' first")
	}
	return nil
}

func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
