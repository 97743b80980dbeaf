package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ad/go-telegram-contest/internal/fsm"
	"github.com/ad/go-telegram-contest/internal/models"
)

const (
	checkpointColParticipantID = iota
	checkpointColPhase
	checkpointColData
	checkpointColStartedAt
	checkpointColLastPrompt
	checkpointColUpdatedAt
)

// CheckpointRepository keeps one row per participant that ever opened a
// draft. Rows are overwritten in place, never removed.
type CheckpointRepository struct {
	store RowStore

	// mu guards the read-then-write cycles below. Without it two writers
	// could both miss a participant's row and append it twice.
	mu sync.Mutex
}

func NewCheckpointRepository(store RowStore) *CheckpointRepository {
	return &CheckpointRepository{store: store}
}

// Get returns the stored checkpoint, or an idle one when the participant has
// no row yet.
func (r *CheckpointRepository) Get(ctx context.Context, participantID int64) (*models.Checkpoint, error) {
	rows, err := r.store.Rows(ctx, TableCheckpoints)
	if err != nil {
		return nil, err
	}
	idx := findRow(rows, checkpointColParticipantID, formatID(participantID))
	if idx < 0 {
		return models.IdleCheckpoint(participantID), nil
	}
	return scanCheckpoint(rows[idx])
}

func (r *CheckpointRepository) Save(ctx context.Context, cp *models.Checkpoint) error {
	row, err := checkpointRow(cp)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.store.Rows(ctx, TableCheckpoints)
	if err != nil {
		return err
	}
	idx := findRow(rows, checkpointColParticipantID, formatID(cp.ParticipantID))
	if idx < 0 {
		return r.store.Append(ctx, TableCheckpoints, row)
	}
	return r.store.Update(ctx, TableCheckpoints, idx, row)
}

// Clear resets the participant's row to idle with no data.
func (r *CheckpointRepository) Clear(ctx context.Context, participantID int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.store.Rows(ctx, TableCheckpoints)
	if err != nil {
		return err
	}
	idx := findRow(rows, checkpointColParticipantID, formatID(participantID))
	if idx < 0 {
		return nil
	}

	idle := models.IdleCheckpoint(participantID)
	idle.UpdatedAt = now
	row, err := checkpointRow(idle)
	if err != nil {
		return err
	}
	return r.store.Update(ctx, TableCheckpoints, idx, row)
}

// SetPromptRef writes the last prompt id of a draft. Nothing is written, and
// false is returned, when the stored row is no longer the draft started at
// startedAt or has left phase.
func (r *CheckpointRepository) SetPromptRef(ctx context.Context, participantID int64, startedAt time.Time, phase fsm.Phase, ref int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.store.Rows(ctx, TableCheckpoints)
	if err != nil {
		return false, err
	}
	idx := findRow(rows, checkpointColParticipantID, formatID(participantID))
	if idx < 0 {
		return false, nil
	}
	cp, err := scanCheckpoint(rows[idx])
	if err != nil {
		return false, err
	}
	if cp.Phase != phase || formatTime(cp.StartedAt) != formatTime(startedAt) {
		return false, nil
	}
	cp.LastPromptRef = ref
	row, err := checkpointRow(cp)
	if err != nil {
		return false, err
	}
	return true, r.store.Update(ctx, TableCheckpoints, idx, row)
}

// GetAll returns every checkpoint row, idle ones included. Rows that fail to
// decode are skipped and reported in the error slice.
func (r *CheckpointRepository) GetAll(ctx context.Context) ([]*models.Checkpoint, []error, error) {
	rows, err := r.store.Rows(ctx, TableCheckpoints)
	if err != nil {
		return nil, nil, err
	}
	var (
		result []*models.Checkpoint
		broken []error
	)
	for i, row := range rows {
		if cell(row, checkpointColParticipantID) == "" {
			continue
		}
		cp, err := scanCheckpoint(row)
		if err != nil {
			broken = append(broken, fmt.Errorf("checkpoint row %d: %w", i, err))
			continue
		}
		result = append(result, cp)
	}
	return result, broken, nil
}

func checkpointRow(cp *models.Checkpoint) ([]string, error) {
	data := cp.Data
	if data == nil {
		data = map[fsm.Field]string{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	lastPrompt := ""
	if cp.LastPromptRef != 0 {
		lastPrompt = strconv.Itoa(cp.LastPromptRef)
	}
	return []string{
		formatID(cp.ParticipantID),
		string(cp.Phase),
		string(raw),
		formatTime(cp.StartedAt),
		lastPrompt,
		formatTime(cp.UpdatedAt),
	}, nil
}

func scanCheckpoint(row []string) (*models.Checkpoint, error) {
	participantID, err := strconv.ParseInt(cell(row, checkpointColParticipantID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("participant id: %w", err)
	}

	cp := &models.Checkpoint{
		ParticipantID: participantID,
		Phase:         fsm.Phase(cell(row, checkpointColPhase)),
		Data:          map[fsm.Field]string{},
		StartedAt:     parseTime(cell(row, checkpointColStartedAt)),
		LastPromptRef: parseInt(cell(row, checkpointColLastPrompt)),
		UpdatedAt:     parseTime(cell(row, checkpointColUpdatedAt)),
	}
	if cp.Phase == "" {
		cp.Phase = fsm.PhaseIdle
	}
	if raw := cell(row, checkpointColData); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cp.Data); err != nil {
			return nil, fmt.Errorf("draft data: %w", err)
		}
	}
	return cp, nil
}
