package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ggeimport/ggeimport/internal/store"
)

// ImportRun describes one finished import.
type ImportRun struct {
	ID             int64     `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	LoginConfirmed bool      `json:"login_confirmed"`
	Locations      int       `json:"locations"`
	Occupants      int       `json:"occupants"`
}

// SaveSnapshot records run and upserts every record of snap in one
// transaction. Rows from earlier runs that snap does not mention are kept.
func (d *Database) SaveSnapshot(ctx context.Context, run ImportRun, snap store.Snapshot) (int64, error) {
	var importID int64
	err := d.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO imports (started_at, finished_at, login_confirmed, locations, occupants)
			 VALUES (?, ?, ?, ?, ?)`,
			run.StartedAt.UTC(), run.FinishedAt.UTC(), run.LoginConfirmed,
			len(snap.Locations), len(snap.Occupants))
		if err != nil {
			return fmt.Errorf("failed to record import: %w", err)
		}
		if importID, err = res.LastInsertId(); err != nil {
			return err
		}

		occStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO occupants (id, display_name, is_known_ally, import_id) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				display_name = COALESCE(excluded.display_name, occupants.display_name),
				is_known_ally = excluded.is_known_ally OR occupants.is_known_ally,
				import_id = excluded.import_id`)
		if err != nil {
			return err
		}
		defer occStmt.Close()

		for _, o := range snap.Occupants {
			if _, err := occStmt.ExecContext(ctx, o.ID, nullString(o.DisplayName), o.IsKnownAlly, importID); err != nil {
				return fmt.Errorf("failed to store occupant %d: %w", o.ID, err)
			}
		}

		locStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO locations (id, owner_id, name, x, y, region, import_id) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id,
				name = excluded.name,
				x = excluded.x,
				y = excluded.y,
				region = excluded.region,
				import_id = excluded.import_id`)
		if err != nil {
			return err
		}
		defer locStmt.Close()

		for _, l := range snap.Locations {
			var region sql.NullInt64
			if l.Region != nil {
				region = sql.NullInt64{Int64: int64(*l.Region), Valid: true}
			}
			if _, err := locStmt.ExecContext(ctx,
				l.ID, nullInt(l.OwnerID), nullString(l.Name), nullInt(l.X), nullInt(l.Y), region, importID,
			); err != nil {
				return fmt.Errorf("failed to store location %d: %w", l.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.logger.Info().
		Int64("import", importID).
		Int("locations", len(snap.Locations)).
		Int("occupants", len(snap.Occupants)).
		Msg("snapshot saved")
	return importID, nil
}

// LoadSnapshot reads every stored record back into a snapshot.
func (d *Database) LoadSnapshot(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, owner_id, name, x, y, region FROM locations ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("failed to query locations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			l           store.Location
			owner, x, y sql.NullInt64
			region      sql.NullInt64
			name        sql.NullString
		)
		if err := rows.Scan(&l.ID, &owner, &name, &x, &y, &region); err != nil {
			return snap, fmt.Errorf("failed to scan location: %w", err)
		}
		l.OwnerID = ptrInt(owner)
		l.Name = ptrString(name)
		l.X = ptrInt(x)
		l.Y = ptrInt(y)
		if region.Valid {
			r, err := store.ParseRegion(region.Int64)
			if err != nil {
				return snap, err
			}
			l.Region = &r
		}
		snap.Locations = append(snap.Locations, l)
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	orows, err := d.db.QueryContext(ctx,
		`SELECT id, display_name, is_known_ally FROM occupants ORDER BY id`)
	if err != nil {
		return snap, fmt.Errorf("failed to query occupants: %w", err)
	}
	defer orows.Close()

	for orows.Next() {
		var (
			o    store.Occupant
			name sql.NullString
		)
		if err := orows.Scan(&o.ID, &name, &o.IsKnownAlly); err != nil {
			return snap, fmt.Errorf("failed to scan occupant: %w", err)
		}
		o.DisplayName = ptrString(name)
		snap.Occupants = append(snap.Occupants, o)
	}
	return snap, orows.Err()
}

// Imports lists the recorded runs, newest first.
func (d *Database) Imports(ctx context.Context, limit int) ([]ImportRun, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, login_confirmed, locations, occupants
		FROM imports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query imports: %w", err)
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		var r ImportRun
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.FinishedAt, &r.LoginConfirmed, &r.Locations, &r.Occupants); err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func ptrInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	return store.Int64(v.Int64)
}

func ptrString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return store.String(v.String)
}
