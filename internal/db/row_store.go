package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Table names shared by every RowStore backend.
const (
	TableParticipants = "Participants"
	TableSubmissions  = "Submissions"
	TableCheckpoints  = "Checkpoints"
	TableAdmins       = "Admins"
	TableAdminStates  = "AdminStates"
	TableRating       = "Rating"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrRowNotFound = errors.New("row index out of range")
)

// RowStore is a spreadsheet-like store: named tables of string rows addressed
// by position, without a query language. Callers scan whole tables.
type RowStore interface {
	Rows(ctx context.Context, table string) ([][]string, error)
	Append(ctx context.Context, table string, row []string) error
	Update(ctx context.Context, table string, index int, row []string) error
}

// SQLiteStore keeps the tables of a RowStore in a local SQLite file.
type SQLiteStore struct {
	queue *DBQueue
}

func NewSQLiteStore(queue *DBQueue) *SQLiteStore {
	return &SQLiteStore{queue: queue}
}

func (s *SQLiteStore) Rows(ctx context.Context, table string) ([][]string, error) {
	rows, err := s.queue.DB().QueryContext(ctx, `
		SELECT cells FROM sheet_rows WHERE sheet = ? ORDER BY row_no
	`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("decode %s row %d: %w", table, len(result), err)
		}
		result = append(result, cells)
	}
	return result, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, table string, row []string) error {
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}
	_, err = s.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO sheet_rows (sheet, row_no, cells, updated_at)
			SELECT ?, COALESCE(MAX(row_no) + 1, 0), ?, CURRENT_TIMESTAMP FROM sheet_rows WHERE sheet = ?
		`, table, cells, table)
		return nil, err
	})
	return err
}

func (s *SQLiteStore) Update(ctx context.Context, table string, index int, row []string) error {
	cells, err := encodeCells(row)
	if err != nil {
		return err
	}
	result, err := s.queue.Execute(func(db *sql.DB) (interface{}, error) {
		res, err := db.ExecContext(ctx, `
			UPDATE sheet_rows SET cells = ?, updated_at = CURRENT_TIMESTAMP
			WHERE sheet = ? AND row_no = ?
		`, cells, table, index)
		if err != nil {
			return nil, err
		}
		return res.RowsAffected()
	})
	if err != nil {
		return err
	}
	if result.(int64) == 0 {
		return fmt.Errorf("%s row %d: %w", table, index, ErrRowNotFound)
	}
	return nil
}

func encodeCells(row []string) (string, error) {
	if row == nil {
		row = []string{}
	}
	data, err := json.Marshal(row)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// cell returns the i-th cell of a row, tolerating short rows the way
// spreadsheets trim trailing blanks.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// findRow returns the index of the first row whose column col equals key.
func findRow(rows [][]string, col int, key string) int {
	for i, row := range rows {
		if cell(row, col) == key {
			return i
		}
	}
	return -1
}
