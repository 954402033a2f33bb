package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
	StageSessionOpen  Stage = "SESSION_OPEN"
	StageSessionClose Stage = "SESSION_CLOSE"
	StageSessionError Stage = "SESSION_ERROR"
	StageAttemptDone  Stage = "ATTEMPT_DONE"
)

// Event captures one milestone of an enrichment run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	// Batch is the backlog batch (contract) the run enriches.
	Batch string
	// Worker is the index of the emitting worker, or -1 for run events.
	Worker int
	// Record is the masked identifier of the attempted record.
	Record string
	// Outcome and FailedStage are set on ATTEMPT_DONE.
	Outcome     enrich.OutcomeKind
	FailedStage string
	// PersistFailed reports a definitive outcome that could not be written back.
	PersistFailed bool
	Dur           time.Duration
	// Counts is the tracker snapshot after the event.
	Counts Snapshot
	Note   string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError,
		StageSessionOpen, StageSessionClose, StageSessionError:
	case StageAttemptDone:
		switch e.Outcome {
		case enrich.OutcomeSuccess, enrich.OutcomeNotFound, enrich.OutcomeFailure:
		default:
			return fmt.Errorf("attempt done has unknown outcome %q", e.Outcome)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// MaskID keeps the last four characters of an identifier so events and logs
// never carry a full CPF.
func MaskID(id string) string {
	const keep = 4
	if len(id) <= keep {
		return id
	}
	masked := make([]byte, len(id))
	for i := range masked {
		masked[i] = '*'
	}
	copy(masked[len(id)-keep:], id[len(id)-keep:])
	return string(masked)
}
