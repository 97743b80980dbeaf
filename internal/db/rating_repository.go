package db

import (
	"context"
	"strconv"
	"time"

	"github.com/ad/go-telegram-contest/internal/models"
)

// RatingRepository keeps the last exported rating in the Rating table.
type RatingRepository struct {
	store RowStore
}

func NewRatingRepository(store RowStore) *RatingRepository {
	return &RatingRepository{store: store}
}

// Replace overwrites the table with entries. Rows left over from a longer
// previous export are blanked.
func (r *RatingRepository) Replace(ctx context.Context, entries []models.RatingEntry, exportedAt time.Time) error {
	existing, err := r.store.Rows(ctx, TableRating)
	if err != nil {
		return err
	}

	for i, e := range entries {
		row := []string{
			strconv.Itoa(e.Place),
			formatID(e.ParticipantID),
			e.Username,
			e.FullName,
			strconv.Itoa(e.Score),
			strconv.Itoa(e.Submissions),
			formatTime(exportedAt),
		}
		if i < len(existing) {
			err = r.store.Update(ctx, TableRating, i, row)
		} else {
			err = r.store.Append(ctx, TableRating, row)
		}
		if err != nil {
			return err
		}
	}

	for i := len(entries); i < len(existing); i++ {
		if len(existing[i]) == 0 || cell(existing[i], 0) == "" {
			continue
		}
		if err := r.store.Update(ctx, TableRating, i, []string{}); err != nil {
			return err
		}
	}
	return nil
}

// GetAll returns the stored rating, skipping blanked rows.
func (r *RatingRepository) GetAll(ctx context.Context) ([]models.RatingEntry, error) {
	rows, err := r.store.Rows(ctx, TableRating)
	if err != nil {
		return nil, err
	}
	var entries []models.RatingEntry
	for _, row := range rows {
		if cell(row, 0) == "" {
			continue
		}
		id, _ := strconv.ParseInt(cell(row, 1), 10, 64)
		entries = append(entries, models.RatingEntry{
			Place:         parseInt(cell(row, 0)),
			ParticipantID: id,
			Username:      cell(row, 2),
			FullName:      cell(row, 3),
			Score:         parseInt(cell(row, 4)),
			Submissions:   parseInt(cell(row, 5)),
		})
	}
	return entries, nil
}
