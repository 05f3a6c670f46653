package matching

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"transaction-reconciliation-backend/internal/models"
	"transaction-reconciliation-backend/internal/repository"
)

// DuplicateKind classifies a collision between a candidate record and the
// records already seen or persisted.
type DuplicateKind int

const (
	NotDuplicate DuplicateKind = iota
	DuplicateWithinBatch
	DuplicateAcrossJobs
	DuplicateWithinJob
)

// Duplicate reason text recorded on reconciliation results.
const (
	ReasonWithinBatch = "Duplicate within upload"
	ReasonAcrossJobs  = "Duplicate in system"
	ReasonWithinJob   = "Multiple matches found"
)

// DuplicateVerdict is the outcome of classifying one candidate.
type DuplicateVerdict struct {
	Kind     DuplicateKind
	Existing *models.Record
	Reason   string
}

// DuplicateDetector tracks transaction ids seen during one reconciliation
// run and checks the persisted population for collisions. The seen-set is
// exclusively owned by the single worker running the job; detectors must
// not be shared across jobs.
type DuplicateDetector struct {
	records *repository.RecordRepository
	seen    map[string]struct{}
}

func NewDuplicateDetector(records *repository.RecordRepository) *DuplicateDetector {
	return &DuplicateDetector{
		records: records,
		seen:    make(map[string]struct{}),
	}
}

// WithTx returns a fresh detector scoped to the given transaction.
func (d *DuplicateDetector) WithTx(tx *gorm.DB) *DuplicateDetector {
	return NewDuplicateDetector(d.records.WithTx(tx))
}

// Classify runs the three duplicate checks in order, short-circuiting on the
// first hit: within the current batch first (cheapest, and most likely a
// malformed source file), then across jobs, then inside the same job.
func (d *DuplicateDetector) Classify(candidate *models.Record, jobID uuid.UUID) (DuplicateVerdict, error) {
	if _, ok := d.seen[candidate.TransactionID]; ok {
		return DuplicateVerdict{Kind: DuplicateWithinBatch, Reason: ReasonWithinBatch}, nil
	}
	d.seen[candidate.TransactionID] = struct{}{}

	outside, err := d.records.FindOutsideJob(candidate.TransactionID, jobID)
	if err != nil {
		return DuplicateVerdict{}, err
	}
	if len(outside) > 0 {
		return DuplicateVerdict{
			Kind:     DuplicateAcrossJobs,
			Existing: &outside[0],
			Reason:   ReasonAcrossJobs,
		}, nil
	}

	inside, err := d.records.FindInJob(candidate.TransactionID, jobID)
	if err != nil {
		return DuplicateVerdict{}, err
	}
	if len(inside) > 1 {
		return DuplicateVerdict{
			Kind:     DuplicateWithinJob,
			Existing: &inside[0],
			Reason:   ReasonWithinJob,
		}, nil
	}

	return DuplicateVerdict{Kind: NotDuplicate}, nil
}
