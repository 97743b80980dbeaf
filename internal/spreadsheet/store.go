// Package spreadsheet implements db.RowStore on top of a Google Sheets
// document. Each table is a sheet whose first row holds column headers.
package spreadsheet

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Headers lists the column titles written to empty sheets.
var Headers = map[string][]string{
	"Participants": {"user_id", "username", "full_name", "enrolled_at", "last_seen_at", "score"},
	"Submissions":  {"submission_id", "user_id", "username", "full_name", "date", "location", "name", "link", "submitted_at", "score", "admin_comment"},
	"Checkpoints":  {"user_id", "phase", "data", "started_at", "last_prompt_ref", "updated_at"},
	"Admins":       {"user_id"},
	"AdminStates":  {"user_id", "state", "submission_id", "last_bot_message_id"},
	"Rating":       {"place", "user_id", "username", "full_name", "score", "submissions", "exported_at"},
}

type Store struct {
	values        *gsheets.SpreadsheetsValuesService
	spreadsheetID string

	mu      sync.Mutex
	checked map[string]bool
}

func NewWithOptions(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Store, error) {
	srv, err := gsheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &Store{
		values:        srv.Spreadsheets.Values,
		spreadsheetID: spreadsheetID,
		checked:       make(map[string]bool),
	}, nil
}

// NewFromCredentialsFile authenticates with a service account key file.
func NewFromCredentialsFile(ctx context.Context, spreadsheetID, credentialsFile string) (*Store, error) {
	return NewWithOptions(ctx, spreadsheetID,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gsheets.SpreadsheetsScope),
	)
}

// Rows returns the data rows of a table, header excluded. Index 0 is the
// first row below the header.
func (s *Store) Rows(ctx context.Context, table string) ([][]string, error) {
	resp, err := s.values.Get(s.spreadsheetID, table+"!A2:Z").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", table, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, v := range raw {
			row[i] = toString(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Store) Append(ctx context.Context, table string, row []string) error {
	if err := s.ensureHeader(ctx, table); err != nil {
		return err
	}
	_, err := s.values.Append(s.spreadsheetID, table+"!A1", valueRange(row)).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", table, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, index int, row []string) error {
	if index < 0 {
		return fmt.Errorf("update %s: negative row index %d", table, index)
	}
	rng := fmt.Sprintf("%s!A%d", table, index+2)
	_, err := s.values.Update(s.spreadsheetID, rng, valueRange(row)).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s row %d: %w", table, index, err)
	}
	return nil
}

// ensureHeader writes the header row once per process when the sheet is
// blank, so appends never land in the header position.
func (s *Store) ensureHeader(ctx context.Context, table string) error {
	s.mu.Lock()
	done := s.checked[table]
	s.mu.Unlock()
	if done {
		return nil
	}

	resp, err := s.values.Get(s.spreadsheetID, table+"!A1:Z1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read %s header: %w", table, err)
	}
	if len(resp.Values) == 0 {
		header, ok := Headers[table]
		if !ok {
			header = []string{"data"}
		}
		_, err := s.values.Update(s.spreadsheetID, table+"!A1", valueRange(header)).
			ValueInputOption("RAW").
			Context(ctx).
			Do()
		if err != nil {
			return fmt.Errorf("write %s header: %w", table, err)
		}
	}

	s.mu.Lock()
	s.checked[table] = true
	s.mu.Unlock()
	return nil
}

func valueRange(row []string) *gsheets.ValueRange {
	cells := make([]interface{}, len(row))
	for i, c := range row {
		cells[i] = c
	}
	return &gsheets.ValueRange{Values: [][]interface{}{cells}}
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
