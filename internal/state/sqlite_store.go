package state

import (
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/mirrorbox/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS path_state (
    direction TEXT NOT NULL,
    path TEXT NOT NULL,
    PRIMARY KEY (direction, path)
);
`

const (
	directionSource = "from_source"
	directionTarget = "from_target"
)

type dbPathState struct {
	Direction string `db:"direction"`
	Path      string `db:"path"`
}

// SQLiteStore keeps the snapshot in a SQLite table. Every Save rewrites the
// table inside one transaction, so a crash leaves the previous snapshot intact.
type SQLiteStore struct {
	db     *sqlx.DB
	dbPath string
}

// OpenSQLiteStore opens (or creates) the database at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	database, err := db.Open(dbPath, db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("initialize state schema: %w", err)
	}

	return &SQLiteStore{db: database, dbPath: dbPath}, nil
}

func (s *SQLiteStore) Load() (*Snapshot, error) {
	var rows []dbPathState
	if err := s.db.Select(&rows, "SELECT direction, path FROM path_state"); err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}

	snap := NewSnapshot()
	for _, row := range rows {
		switch row.Direction {
		case directionSource:
			snap.FromSource[row.Path] = presenceMarker
		case directionTarget:
			snap.FromTarget[row.Path] = presenceMarker
		default:
			slog.Warn("state db unknown direction", "direction", row.Direction, "path", row.Path)
		}
	}
	return snap, nil
}

func (s *SQLiteStore) Save(snap *Snapshot) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM path_state"); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}

	stmt, err := tx.PrepareNamed("INSERT INTO path_state (direction, path) VALUES (:direction, :path)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for direction, markers := range map[string]map[string]int{
		directionSource: snap.FromSource,
		directionTarget: snap.FromTarget,
	} {
		for path := range markers {
			if _, err := stmt.Exec(dbPathState{Direction: direction, Path: path}); err != nil {
				return fmt.Errorf("insert %s: %w", path, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored paths across both directions.
func (s *SQLiteStore) Count() (int, error) {
	var count int
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM path_state"); err != nil {
		return 0, fmt.Errorf("count state: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close state db %s: %w", s.dbPath, err)
	}
	return nil
}
