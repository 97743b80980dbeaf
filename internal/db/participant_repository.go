package db

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ad/go-telegram-contest/internal/models"
)

const (
	participantColID = iota
	participantColUsername
	participantColFullName
	participantColEnrolledAt
	participantColLastSeenAt
	participantColScore
)

type ParticipantRepository struct {
	store RowStore
	mu    sync.Mutex
}

func NewParticipantRepository(store RowStore) *ParticipantRepository {
	return &ParticipantRepository{store: store}
}

// Touch registers the participant on first sight and refreshes the profile
// and last-seen time afterwards. The cached score is left alone.
func (r *ParticipantRepository) Touch(ctx context.Context, p *models.Participant, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.store.Rows(ctx, TableParticipants)
	if err != nil {
		return err
	}

	idx := findRow(rows, participantColID, formatID(p.ID))
	if idx < 0 {
		p.EnrolledAt = now
		p.LastSeenAt = now
		return r.store.Append(ctx, TableParticipants, participantRow(p))
	}

	existing := scanParticipant(rows[idx])
	existing.Username = p.Username
	existing.FullName = p.FullName
	existing.LastSeenAt = now
	*p = *existing
	return r.store.Update(ctx, TableParticipants, idx, participantRow(existing))
}

func (r *ParticipantRepository) Get(ctx context.Context, id int64) (*models.Participant, error) {
	rows, err := r.store.Rows(ctx, TableParticipants)
	if err != nil {
		return nil, err
	}
	idx := findRow(rows, participantColID, formatID(id))
	if idx < 0 {
		return nil, ErrNotFound
	}
	return scanParticipant(rows[idx]), nil
}

func (r *ParticipantRepository) GetAll(ctx context.Context) ([]*models.Participant, error) {
	rows, err := r.store.Rows(ctx, TableParticipants)
	if err != nil {
		return nil, err
	}
	var participants []*models.Participant
	for _, row := range rows {
		p := scanParticipant(row)
		if p.ID == 0 {
			continue
		}
		participants = append(participants, p)
	}
	return participants, nil
}

// SetScore stores the cumulative score cache of a participant.
func (r *ParticipantRepository) SetScore(ctx context.Context, id int64, score int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.store.Rows(ctx, TableParticipants)
	if err != nil {
		return err
	}
	idx := findRow(rows, participantColID, formatID(id))
	if idx < 0 {
		return ErrNotFound
	}
	p := scanParticipant(rows[idx])
	p.Score = score
	return r.store.Update(ctx, TableParticipants, idx, participantRow(p))
}

func participantRow(p *models.Participant) []string {
	return []string{
		formatID(p.ID),
		p.Username,
		p.FullName,
		formatTime(p.EnrolledAt),
		formatTime(p.LastSeenAt),
		strconv.Itoa(p.Score),
	}
}

func scanParticipant(row []string) *models.Participant {
	id, _ := strconv.ParseInt(cell(row, participantColID), 10, 64)
	return &models.Participant{
		ID:         id,
		Username:   cell(row, participantColUsername),
		FullName:   cell(row, participantColFullName),
		EnrolledAt: parseTime(cell(row, participantColEnrolledAt)),
		LastSeenAt: parseTime(cell(row, participantColLastSeenAt)),
		Score:      parseInt(cell(row, participantColScore)),
	}
}
