package stats

import (
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id           TEXT PRIMARY KEY,
	tracks_added      INTEGER NOT NULL DEFAULT 0,
	tracks_listened   INTEGER NOT NULL DEFAULT 0,
	duration_listened INTEGER NOT NULL DEFAULT 0,
	recent_month      TEXT    NOT NULL DEFAULT '',
	monthly_listened  INTEGER NOT NULL DEFAULT 0
)`

// SQLiteSink persists usage counters in a local SQLite database. Monthly
// listening totals roll over when a record lands in a new calendar month.
type SQLiteSink struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the stats database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening stats db %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating stats schema")
	}
	return &SQLiteSink{db: db, now: time.Now}, nil
}

// RecordTrackAdded counts one accepted submission for the user.
func (s *SQLiteSink) RecordTrackAdded(userID string) {
	month := s.currentMonth()
	_, err := s.db.Exec(`
		INSERT INTO users (user_id, tracks_added, recent_month) VALUES (?, 1, ?)
		ON CONFLICT(user_id) DO UPDATE SET tracks_added = tracks_added + 1`,
		userID, month)
	if err != nil {
		zlog.Error().Err(err).Msgf("failed to record track added for %s", userID)
	}
}

// RecordListened credits listened seconds to the user, rolling the monthly
// total over when the calendar month changed since the last record.
func (s *SQLiteSink) RecordListened(userID string, seconds int) {
	if seconds <= 0 {
		return
	}
	month := s.currentMonth()
	_, err := s.db.Exec(`
		INSERT INTO users (user_id, tracks_listened, duration_listened, recent_month, monthly_listened)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			tracks_listened   = tracks_listened + 1,
			duration_listened = duration_listened + excluded.duration_listened,
			monthly_listened  = CASE
				WHEN recent_month = excluded.recent_month
				THEN monthly_listened + excluded.monthly_listened
				ELSE excluded.monthly_listened
			END,
			recent_month = excluded.recent_month`,
		userID, seconds, month, seconds)
	if err != nil {
		zlog.Error().Err(err).Msgf("failed to record listening for %s", userID)
	}
}

// Lookup returns the user's stats, or nil if the user has none.
func (s *SQLiteSink) Lookup(userID string) (*UserStats, error) {
	row := s.db.QueryRow(`
		SELECT user_id, tracks_added, tracks_listened, duration_listened, recent_month, monthly_listened
		FROM users WHERE user_id = ?`, userID)

	var u UserStats
	err := row.Scan(&u.UserID, &u.TracksAdded, &u.TracksListened, &u.DurationListened, &u.RecentMonth, &u.MonthlyListened)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "looking up stats for %s", userID)
	}
	return &u, nil
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) currentMonth() string {
	return s.now().Format("2006-01")
}
