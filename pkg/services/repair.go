package services

import (
	"context"
	"log/slog"

	"github.com/greenlighthq/greenlight/pkg/models"
	"github.com/greenlighthq/greenlight/pkg/persistence"
)

// RepairReport summarizes one consistency repair pass.
type RepairReport struct {
	RequestsChecked int `json:"requests_checked"`
	FixedCount      int `json:"fixed_count"`
}

// Repair is the batch job that restores the sequencing invariant across all
// in-flight requests. Drift is expected, not fatal: decisions applied out of
// strict order can leave multiple steps pending or none, and this pass
// settles every such request back to the canonical shape. Running it twice
// in a row fixes nothing the second time.
type Repair struct {
	persistence persistence.Persistence
	sequencer   *Sequencer
	archival    *Archival
	logger      *slog.Logger
}

func NewRepair(persistence persistence.Persistence, sequencer *Sequencer, archival *Archival, logger *slog.Logger) *Repair {
	return &Repair{
		persistence: persistence,
		sequencer:   sequencer,
		archival:    archival,
		logger:      logger.With("module", "repair"),
	}
}

// Run scans every pending request and repairs its step rows. A failure on
// one request is logged and does not stop the pass.
func (r *Repair) Run(ctx context.Context) (*RepairReport, error) {
	requests, err := r.persistence.RequestRepository().ListByStatus(ctx, models.RequestStatusPending)
	if err != nil {
		return nil, err
	}

	report := &RepairReport{}

	for _, request := range requests {
		report.RequestsChecked++

		fixed, completed, err := r.sequencer.RepairInvariant(ctx, request)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to repair request",
				"request_id", request.ID, "error", err)
			continue
		}

		report.FixedCount += fixed

		if fixed > 0 {
			r.logger.InfoContext(ctx, "Repaired sequencing invariant",
				"request_id", request.ID, "fixed_steps", fixed)
		}

		if completed {
			// The completion this repair recovered never ran its archival;
			// generate it now. Idempotent, so a pre-existing document stands.
			if _, err := r.archival.Generate(ctx, request.ID, false, ""); err != nil {
				r.logger.ErrorContext(ctx, "Failed to archive repaired request",
					"request_id", request.ID, "error", err)
			}
		}
	}

	return report, nil
}
