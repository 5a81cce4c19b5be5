package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/sitelens/internal/ingest"
)

// Kind denotes the milestone represented by an Event.
type Kind string

// Supported event kinds.
const (
	KindRunStart   Kind = "RUN_START"
	KindChunkStart Kind = "CHUNK_START"
	KindChunkDone  Kind = "CHUNK_DONE"
	KindItemDone   Kind = "ITEM_DONE"
	KindRunDone    Kind = "RUN_DONE"
)

// Event captures a single milestone of a batch run.
type Event struct {
	// RunID identifies the batch run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS   time.Time
	Kind Kind
	// Chunk is the zero-based chunk index for chunk and item events.
	Chunk int
	// Items is the run input size for run events and chunk size for chunk events.
	Items int
	// URL, Status and Stage describe an item's terminal outcome.
	URL    string
	Status ingest.Status
	Stage  ingest.Stage
	// Dur is the elapsed time for done events.
	Dur time.Duration
	// Note carries low-volume context such as an item's failure reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Kind {
	case KindRunStart, KindRunDone, KindChunkStart, KindChunkDone:
	case KindItemDone:
		if e.URL == "" {
			return errors.New("item event requires url")
		}
		if e.Status == "" {
			return errors.New("item event requires status")
		}
	default:
		return fmt.Errorf("unknown kind %q", e.Kind)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID back to a uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ItemEvent builds an ITEM_DONE event from a terminal outcome.
func ItemEvent(runID [16]byte, chunk int, o ingest.Outcome) Event {
	return Event{
		RunID:  runID,
		TS:     time.Now().UTC(),
		Kind:   KindItemDone,
		Chunk:  chunk,
		URL:    o.URL,
		Status: o.Status,
		Stage:  o.Stage,
		Note:   o.Reason,
	}
}
