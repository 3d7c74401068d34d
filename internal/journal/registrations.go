package journal

import (
	"database/sql"
	"time"
)

// Registration records how a distribution was imported.
type Registration struct {
	Name         string
	Artifact     string
	Digest       string
	GuestVersion string
	ImportedAt   time.Time
}

// SaveRegistration inserts or replaces the import record for a distribution.
func (d *DB) SaveRegistration(r *Registration) error {
	imported := r.ImportedAt
	if imported.IsZero() {
		imported = time.Now()
	}
	_, err := d.db.Exec(`
		INSERT INTO registrations (name, artifact, digest, guest_version, imported_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			artifact = excluded.artifact,
			digest = excluded.digest,
			guest_version = excluded.guest_version,
			imported_at = excluded.imported_at
	`, r.Name, r.Artifact, r.Digest, r.GuestVersion, imported.Format(time.RFC3339))
	return err
}

// GetRegistration returns the import record for name, or nil if none.
func (d *DB) GetRegistration(name string) (*Registration, error) {
	var (
		r        Registration
		imported string
	)
	err := d.db.QueryRow(`
		SELECT name, artifact, digest, guest_version, imported_at
		FROM registrations WHERE name = ?
	`, name).Scan(&r.Name, &r.Artifact, &r.Digest, &r.GuestVersion, &imported)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.ImportedAt, _ = time.Parse(time.RFC3339, imported)
	return &r, nil
}

// DeleteRegistration forgets the import record, e.g. after an unregister.
func (d *DB) DeleteRegistration(name string) error {
	_, err := d.db.Exec(`DELETE FROM registrations WHERE name = ?`, name)
	return err
}
