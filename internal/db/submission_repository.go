package db

import (
	"context"
	"strconv"

	"github.com/ad/go-telegram-contest/internal/models"
)

const (
	submissionColID = iota
	submissionColParticipantID
	submissionColUsername
	submissionColFullName
	submissionColDate
	submissionColLocation
	submissionColName
	submissionColLink
	submissionColSubmittedAt
	submissionColScore
	submissionColComment
)

// SubmissionRepository is the append-only log of finalized submissions.
type SubmissionRepository struct {
	store RowStore
}

func NewSubmissionRepository(store RowStore) *SubmissionRepository {
	return &SubmissionRepository{store: store}
}

func (r *SubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	return r.store.Append(ctx, TableSubmissions, submissionRow(s))
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	rows, err := r.store.Rows(ctx, TableSubmissions)
	if err != nil {
		return nil, err
	}
	idx := findRow(rows, submissionColID, id)
	if idx < 0 {
		return nil, ErrNotFound
	}
	return scanSubmission(rows[idx]), nil
}

// FindByLink returns the participant's submission with exactly this link.
func (r *SubmissionRepository) FindByLink(ctx context.Context, participantID int64, link string) (*models.Submission, error) {
	rows, err := r.store.Rows(ctx, TableSubmissions)
	if err != nil {
		return nil, err
	}
	pid := formatID(participantID)
	for _, row := range rows {
		if cell(row, submissionColParticipantID) == pid && cell(row, submissionColLink) == link {
			return scanSubmission(row), nil
		}
	}
	return nil, ErrNotFound
}

func (r *SubmissionRepository) ListByParticipant(ctx context.Context, participantID int64) ([]*models.Submission, error) {
	rows, err := r.store.Rows(ctx, TableSubmissions)
	if err != nil {
		return nil, err
	}
	pid := formatID(participantID)
	var result []*models.Submission
	for _, row := range rows {
		if cell(row, submissionColParticipantID) == pid {
			result = append(result, scanSubmission(row))
		}
	}
	return result, nil
}

func (r *SubmissionRepository) GetAll(ctx context.Context) ([]*models.Submission, error) {
	rows, err := r.store.Rows(ctx, TableSubmissions)
	if err != nil {
		return nil, err
	}
	var result []*models.Submission
	for _, row := range rows {
		if cell(row, submissionColID) == "" {
			continue
		}
		result = append(result, scanSubmission(row))
	}
	return result, nil
}

// SetScore overwrites the score and admin comment of a submission.
func (r *SubmissionRepository) SetScore(ctx context.Context, id string, score int, comment string) (*models.Submission, error) {
	rows, err := r.store.Rows(ctx, TableSubmissions)
	if err != nil {
		return nil, err
	}
	idx := findRow(rows, submissionColID, id)
	if idx < 0 {
		return nil, ErrNotFound
	}
	s := scanSubmission(rows[idx])
	s.Score = &score
	s.AdminComment = comment
	if err := r.store.Update(ctx, TableSubmissions, idx, submissionRow(s)); err != nil {
		return nil, err
	}
	return s, nil
}

func submissionRow(s *models.Submission) []string {
	score := ""
	if s.Score != nil {
		score = strconv.Itoa(*s.Score)
	}
	return []string{
		s.ID,
		formatID(s.ParticipantID),
		s.Username,
		s.FullName,
		s.Date,
		s.Location,
		s.Name,
		s.Link,
		formatTime(s.SubmittedAt),
		score,
		s.AdminComment,
	}
}

func scanSubmission(row []string) *models.Submission {
	participantID, _ := strconv.ParseInt(cell(row, submissionColParticipantID), 10, 64)
	s := &models.Submission{
		ID:            cell(row, submissionColID),
		ParticipantID: participantID,
		Username:      cell(row, submissionColUsername),
		FullName:      cell(row, submissionColFullName),
		Date:          cell(row, submissionColDate),
		Location:      cell(row, submissionColLocation),
		Name:          cell(row, submissionColName),
		Link:          cell(row, submissionColLink),
		SubmittedAt:   parseTime(cell(row, submissionColSubmittedAt)),
		AdminComment:  cell(row, submissionColComment),
	}
	if raw := cell(row, submissionColScore); raw != "" {
		if score, err := strconv.Atoi(raw); err == nil {
			s.Score = &score
		}
	}
	return s
}
