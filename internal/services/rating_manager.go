package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ad/go-telegram-contest/internal/db"
	"github.com/ad/go-telegram-contest/internal/models"
	"github.com/ad/go-telegram-contest/internal/transport"
	"github.com/rs/zerolog"
)

type Stats struct {
	Submissions  int
	Participants int
	Scored       int
}

// RatingManager builds the contest rating from scored submissions and
// exports it.
type RatingManager struct {
	submissions  *db.SubmissionRepository
	participants *db.ParticipantRepository
	rating       *db.RatingRepository
	bot          transport.Bot
	logger       zerolog.Logger
	now          func() time.Time
}

func NewRatingManager(
	submissions *db.SubmissionRepository,
	participants *db.ParticipantRepository,
	rating *db.RatingRepository,
	b transport.Bot,
	logger zerolog.Logger,
) *RatingManager {
	return &RatingManager{
		submissions:  submissions,
		participants: participants,
		rating:       rating,
		bot:          b,
		logger:       logger,
		now:          time.Now,
	}
}

func (rm *RatingManager) Stats(ctx context.Context) (Stats, error) {
	subs, err := rm.submissions.GetAll(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Submissions: len(subs)}
	seen := make(map[int64]bool)
	for _, s := range subs {
		if !seen[s.ParticipantID] {
			seen[s.ParticipantID] = true
			stats.Participants++
		}
		if s.Score != nil {
			stats.Scored++
		}
	}
	return stats, nil
}

// Rating ranks every participant with at least one submission by total
// score, then by number of submissions. Ties keep distinct places.
func (rm *RatingManager) Rating(ctx context.Context) ([]models.RatingEntry, error) {
	subs, err := rm.submissions.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	participants, err := rm.participants.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	profiles := make(map[int64]*models.Participant, len(participants))
	for _, p := range participants {
		profiles[p.ID] = p
	}

	byID := make(map[int64]*models.RatingEntry)
	var order []int64
	for _, s := range subs {
		e, ok := byID[s.ParticipantID]
		if !ok {
			e = &models.RatingEntry{ParticipantID: s.ParticipantID, Username: s.Username, FullName: s.FullName}
			if p, ok := profiles[s.ParticipantID]; ok {
				e.Username, e.FullName = p.Username, p.FullName
			}
			byID[s.ParticipantID] = e
			order = append(order, s.ParticipantID)
		}
		e.Submissions++
		e.Score += s.Points()
	}

	entries := make([]models.RatingEntry, 0, len(order))
	for _, id := range order {
		entries = append(entries, *byID[id])
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		if entries[i].Submissions != entries[j].Submissions {
			return entries[i].Submissions > entries[j].Submissions
		}
		return entries[i].ParticipantID < entries[j].ParticipantID
	})
	for i := range entries {
		entries[i].Place = i + 1
	}
	return entries, nil
}

func (rm *RatingManager) Top(ctx context.Context, n int) ([]models.RatingEntry, error) {
	entries, err := rm.Rating(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

// Export writes the rating to the Rating table and returns it as CSV.
func (rm *RatingManager) Export(ctx context.Context) ([]byte, error) {
	entries, err := rm.Rating(ctx)
	if err != nil {
		return nil, fmt.Errorf("build rating: %w", err)
	}
	if err := rm.rating.Replace(ctx, entries, rm.now()); err != nil {
		return nil, fmt.Errorf("write rating table: %w", err)
	}
	return RatingCSV(entries)
}

func RatingCSV(entries []models.RatingEntry) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"place", "user_id", "username", "full_name", "score", "submissions"}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		record := []string{
			strconv.Itoa(e.Place),
			strconv.FormatInt(e.ParticipantID, 10),
			e.Username,
			e.FullName,
			strconv.Itoa(e.Score),
			strconv.Itoa(e.Submissions),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SendRatingToAdmin exports the rating and sends the CSV as a document.
func (rm *RatingManager) SendRatingToAdmin(ctx context.Context, adminID int64) error {
	data, err := rm.Export(ctx)
	if err != nil {
		return err
	}

	now := rm.now()
	filename := fmt.Sprintf("rating_%s.csv", now.Format("2006-01-02_15-04-05"))
	caption := fmt.Sprintf("✅ Рейтинг выгружен: %s", now.Format("2006-01-02 15:04:05"))
	if err := rm.bot.SendDocument(ctx, adminID, filename, bytes.NewReader(data), caption); err != nil {
		return fmt.Errorf("failed to send rating file: %w", err)
	}
	rm.logger.Info().Int64("admin_id", adminID).Str("file", filename).Msg("rating exported")
	return nil
}
