package journal

import (
	"database/sql"
	"time"
)

// Session is one supervisor run.
type Session struct {
	ID              int64
	PID             int
	PreviousContext string
	Recovered       bool
	StartedAt       time.Time
	EndedAt         time.Time // zero while running or after a crash
}

// Finished reports whether the session ended, cleanly or by recovery.
func (s *Session) Finished() bool {
	return !s.EndedAt.IsZero()
}

// ProcessRecord is a process spawned during a session.
type ProcessRecord struct {
	SessionID  int64
	Role       string
	PID        int
	StartedAt  time.Time
	ReleasedAt time.Time
}

// Begin opens a new session for the current process.
func (d *DB) Begin(pid int) (*Session, error) {
	now := time.Now().Truncate(time.Second)
	res, err := d.db.Exec(`INSERT INTO sessions (pid, started_at) VALUES (?, ?)`,
		pid, now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, PID: pid, StartedAt: now}, nil
}

// End marks the session as cleanly finished.
func (d *DB) End(id int64) error {
	_, err := d.db.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`,
		time.Now().Format(time.RFC3339), id)
	return err
}

// MarkRecovered closes a crashed session after its leftovers were cleaned up.
func (d *DB) MarkRecovered(id int64) error {
	_, err := d.db.Exec(`UPDATE sessions SET ended_at = ?, recovered = 1 WHERE id = ? AND ended_at IS NULL`,
		time.Now().Format(time.RFC3339), id)
	return err
}

// SetPreviousContext records the docker context that was active before the
// session changed it. Only the first call per session has an effect.
func (d *DB) SetPreviousContext(id int64, name string) error {
	_, err := d.db.Exec(`UPDATE sessions SET previous_context = ? WHERE id = ? AND previous_context = ''`,
		name, id)
	return err
}

// getSession retrieves a session by ID. Returns nil if absent.
func (d *DB) getSession(id int64) (*Session, error) {
	row := d.db.QueryRow(`
		SELECT id, pid, previous_context, recovered, started_at, ended_at
		FROM sessions WHERE id = ?
	`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// Unfinished lists sessions that never ended, oldest first. Outside of the
// running session these belong to crashed or killed supervisors.
func (d *DB) Unfinished() ([]*Session, error) {
	rows, err := d.db.Query(`
		SELECT id, pid, previous_context, recovered, started_at, ended_at
		FROM sessions WHERE ended_at IS NULL ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LastSession returns the most recent session, or nil if none.
func (d *DB) LastSession() (*Session, error) {
	row := d.db.QueryRow(`
		SELECT id, pid, previous_context, recovered, started_at, ended_at
		FROM sessions ORDER BY id DESC LIMIT 1
	`)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// RecordProcess notes a process spawned during the session.
func (d *DB) RecordProcess(sessionID int64, role string, pid int) error {
	_, err := d.db.Exec(`
		INSERT INTO processes (session_id, role, pid, started_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, pid) DO UPDATE SET role = excluded.role, started_at = excluded.started_at, released_at = NULL
	`, sessionID, role, pid, time.Now().Format(time.RFC3339))
	return err
}

// ReleaseProcess notes that the process was terminated by its owner.
func (d *DB) ReleaseProcess(sessionID int64, pid int) error {
	_, err := d.db.Exec(`UPDATE processes SET released_at = ? WHERE session_id = ? AND pid = ? AND released_at IS NULL`,
		time.Now().Format(time.RFC3339), sessionID, pid)
	return err
}

// UnreleasedProcesses lists the session's processes that were never released.
func (d *DB) UnreleasedProcesses(sessionID int64) ([]*ProcessRecord, error) {
	rows, err := d.db.Query(`
		SELECT session_id, role, pid, started_at
		FROM processes WHERE session_id = ? AND released_at IS NULL ORDER BY started_at, pid
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ProcessRecord
	for rows.Next() {
		var (
			p         ProcessRecord
			startedAt string
		)
		if err := rows.Scan(&p.SessionID, &p.Role, &p.PID, &startedAt); err != nil {
			return nil, err
		}
		p.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s         Session
		recovered int
		startedAt string
		endedAt   sql.NullString
	)
	if err := row.Scan(&s.ID, &s.PID, &s.PreviousContext, &recovered, &startedAt, &endedAt); err != nil {
		return nil, err
	}
	s.Recovered = recovered != 0
	s.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
	if endedAt.Valid {
		s.EndedAt, _ = time.Parse(time.RFC3339, endedAt.String)
	}
	return &s, nil
}
