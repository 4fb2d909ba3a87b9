package doctor

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/dagrunner/planengine/internal/config"
	"github.com/dagrunner/planengine/internal/store"
)

// versionFunc matches store.Version's signature; overridable in tests so a
// doctor run can be exercised against a fixed migration state without
// touching a real database file.
type versionFunc func(dbPath string) (uint, bool, error)

// Doctor runs the read-only preflight and structural sweep over one engine
// database, and optionally one plan within it.
type Doctor struct {
	store     *store.Store
	cfg       *config.Config
	dbPath    string
	logger    *zap.Logger
	versionFn versionFunc
}

func New(s *store.Store, cfg *config.Config, dbPath string, logger *zap.Logger) *Doctor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Doctor{store: s, cfg: cfg, dbPath: dbPath, logger: logger, versionFn: store.Version}
}

// Run executes every database check, and — when planID is non-nil — the
// plan-structural and (under workflow_mode=v2) deliverable-metadata checks
// for that plan. It never mutates anything; a failing Report is the signal
// for the CLI's repair-db verb to run instead.
func (d *Doctor) Run(ctx context.Context, planID *string) (*Report, error) {
	r := NewReport()
	d.checkDatabase(ctx, r)
	if planID != nil {
		d.checkPlan(ctx, r, *planID)
	}

	var merr *multierror.Error
	for _, c := range r.Failures() {
		merr = multierror.Append(merr, &checkError{c})
	}
	if merr.ErrorOrNil() != nil {
		d.logger.Warn("doctor found failing checks", zap.Int("count", len(r.Failures())))
		return r, merr.ErrorOrNil()
	}
	return r, nil
}

// checkError adapts a Check into an error for multierror aggregation.
type checkError struct {
	check Check
}

func (e *checkError) Error() string {
	return string(e.check.Severity) + " " + e.check.Code + ": " + e.check.Message
}
