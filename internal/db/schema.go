package db

import (
	"database/sql"
	"log"
	"strings"
)

const schema = `
CREATE TABLE IF NOT EXISTS sheet_rows (
    sheet TEXT NOT NULL,
    row_no INTEGER NOT NULL,
    cells TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (sheet, row_no)
);

CREATE INDEX IF NOT EXISTS idx_sheet_rows_sheet ON sheet_rows(sheet);
`

const migrations = `
ALTER TABLE sheet_rows ADD COLUMN updated_at DATETIME DEFAULT NULL
`

func InitSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return err
	}

	migrationStatements := strings.Split(migrations, ";")
	for i, stmt := range migrationStatements {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err == nil {
			log.Printf("Migration %d executed: %s", i, stmt)
		}
	}

	return nil
}
