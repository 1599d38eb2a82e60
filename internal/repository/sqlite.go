package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

type SQLiteDB struct {
	db *sql.DB
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error while pinging database: %w", err)
	}

	s := &SQLiteDB{
		db: db,
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("error while migrating to database: %w", err)
	}

	return s, nil
}

func (s *SQLiteDB) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS emergencies (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			priority TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			accuracy REAL,
			address TEXT,
			advisory BLOB,
			resolved_by TEXT,
			resolved_at DATETIME,
			notes TEXT,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS timeline_entries (
			emergency_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			details BLOB NOT NULL,
			PRIMARY KEY (emergency_id, seq),
			FOREIGN KEY (emergency_id) REFERENCES emergencies(id)
		);

		CREATE TABLE IF NOT EXISTS assignments (
			emergency_id TEXT NOT NULL,
			responder_id TEXT NOT NULL,
			role TEXT NOT NULL,
			distance_km REAL NOT NULL,
			eta_minutes INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (emergency_id, responder_id),
			FOREIGN KEY (emergency_id) REFERENCES emergencies(id)
		);

		CREATE TABLE IF NOT EXISTS notification_attempts (
			id TEXT PRIMARY KEY,
			emergency_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			last_error TEXT,
			updated_at DATETIME NOT NULL,
			UNIQUE (emergency_id, recipient_id, channel),
			FOREIGN KEY (emergency_id) REFERENCES emergencies(id)
		);

		CREATE TABLE IF NOT EXISTS responders (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			role TEXT NOT NULL,
			latitude REAL NOT NULL,
			longitude REAL NOT NULL,
			phone TEXT,
			push_token TEXT,
			available INTEGER NOT NULL DEFAULT 1
		);

		CREATE INDEX IF NOT EXISTS idx_emergencies_user_status ON emergencies(user_id, status);
		CREATE INDEX IF NOT EXISTS idx_emergencies_status ON emergencies(status);
		CREATE INDEX IF NOT EXISTS idx_attempts_emergency ON notification_attempts(emergency_id);
  	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

func (s *SQLiteDB) Save(ctx context.Context, e *models.Emergency) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	var advisory []byte
	if e.Advisory != nil {
		advisory, err = json.Marshal(e.Advisory)
		if err != nil {
			return fmt.Errorf("error marshaling advisory: %w", err)
		}
	}

	var resolvedAt any
	if e.ResolvedAt != nil {
		resolvedAt = *e.ResolvedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO emergencies (id, user_id, type, status, priority, latitude, longitude, accuracy, address, advisory, resolved_by, resolved_at, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			advisory = excluded.advisory,
			resolved_by = excluded.resolved_by,
			resolved_at = excluded.resolved_at,
			notes = excluded.notes,
			updated_at = excluded.updated_at`,
		e.ID, e.UserID, string(e.Type), string(e.Status), string(e.Priority),
		e.Location.Latitude, e.Location.Longitude, e.Location.Accuracy, e.Location.Address,
		advisory, e.ResolvedBy, resolvedAt, e.Notes, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("error upserting emergency %s: %w", e.ID, err)
	}

	// Timeline is append-only: only entries past the stored high-water mark
	// are inserted.
	var maxSeq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM timeline_entries WHERE emergency_id = ?`, e.ID,
	).Scan(&maxSeq); err != nil {
		return fmt.Errorf("error reading timeline high-water mark: %w", err)
	}
	for i := range e.Timeline {
		entry := &e.Timeline[i]
		if entry.Seq <= maxSeq {
			continue
		}
		details, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("error marshaling timeline entry: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO timeline_entries (emergency_id, seq, kind, timestamp, details) VALUES (?, ?, ?, ?, ?)`,
			e.ID, entry.Seq, string(entry.Kind), entry.Timestamp, details,
		); err != nil {
			return fmt.Errorf("error inserting timeline entry: %w", err)
		}
	}

	for _, a := range e.Assignments {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO assignments (emergency_id, responder_id, role, distance_km, eta_minutes, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(emergency_id, responder_id) DO NOTHING`,
			a.EmergencyID, a.ResponderID, string(a.Role), a.DistanceKm, a.ETAMinutes, a.CreatedAt,
		); err != nil {
			return fmt.Errorf("error inserting assignment: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteDB) GetByID(ctx context.Context, id string) (*models.Emergency, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, type, status, priority, latitude, longitude, accuracy, address, advisory, resolved_by, resolved_at, notes, created_at, updated_at
		FROM emergencies WHERE id = ?`, id)

	e, err := scanEmergency(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning emergency %s: %w", id, err)
	}

	if err := s.loadTimeline(ctx, e); err != nil {
		return nil, err
	}
	if err := s.loadAssignments(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *SQLiteDB) FindOpenByUser(ctx context.Context, userID string) (*models.Emergency, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM emergencies
		WHERE user_id = ? AND status IN (?, ?)
		ORDER BY created_at LIMIT 1`,
		userID, string(models.StatusActive), string(models.StatusAcknowledged),
	).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error finding open emergency for user %s: %w", userID, err)
	}
	return s.GetByID(ctx, id)
}

// List returns summary records: the timeline and assignments are not
// loaded. Use GetByID for the full record.
func (s *SQLiteDB) List(ctx context.Context, opts Filter) ([]models.Emergency, error) {
	query := `SELECT id, user_id, type, status, priority, latitude, longitude, accuracy, address, advisory, resolved_by, resolved_at, notes, created_at, updated_at FROM emergencies`
	var conds []string
	var args []any

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, st := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		conds = append(conds, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if opts.Bounds != nil {
		conds = append(conds, "latitude BETWEEN ? AND ?", "longitude BETWEEN ? AND ?")
		args = append(args, opts.Bounds.MinLat, opts.Bounds.MaxLat, opts.Bounds.MinLon, opts.Bounds.MaxLon)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing emergencies: %w", err)
	}
	defer rows.Close()

	var out []models.Emergency
	for rows.Next() {
		e, err := scanEmergency(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning emergency row: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmergency(row rowScanner) (*models.Emergency, error) {
	var (
		e          models.Emergency
		typ        string
		status     string
		priority   string
		advisory   []byte
		resolvedBy sql.NullString
		resolvedAt sql.NullTime
		accuracy   sql.NullFloat64
		address    sql.NullString
		notes      sql.NullString
	)

	err := row.Scan(&e.ID, &e.UserID, &typ, &status, &priority,
		&e.Location.Latitude, &e.Location.Longitude, &accuracy, &address,
		&advisory, &resolvedBy, &resolvedAt, &notes, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.Type = models.EmergencyType(typ)
	e.Status = models.EmergencyStatus(status)
	e.Priority = models.Priority(priority)
	e.Location.Accuracy = accuracy.Float64
	e.Location.Address = address.String
	e.ResolvedBy = resolvedBy.String
	e.Notes = notes.String
	if resolvedAt.Valid {
		t := resolvedAt.Time
		e.ResolvedAt = &t
	}
	if len(advisory) > 0 {
		var adv models.Advisory
		if err := json.Unmarshal(advisory, &adv); err != nil {
			return nil, fmt.Errorf("error unmarshaling advisory: %w", err)
		}
		e.Advisory = &adv
	}
	return &e, nil
}

func (s *SQLiteDB) loadTimeline(ctx context.Context, e *models.Emergency) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT details FROM timeline_entries WHERE emergency_id = ? ORDER BY seq`, e.ID)
	if err != nil {
		return fmt.Errorf("error loading timeline for %s: %w", e.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var details []byte
		if err := rows.Scan(&details); err != nil {
			return fmt.Errorf("error scanning timeline entry: %w", err)
		}
		var entry models.TimelineEntry
		if err := json.Unmarshal(details, &entry); err != nil {
			return fmt.Errorf("error unmarshaling timeline entry: %w", err)
		}
		e.Timeline = append(e.Timeline, entry)
	}
	return rows.Err()
}

func (s *SQLiteDB) loadAssignments(ctx context.Context, e *models.Emergency) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT emergency_id, responder_id, role, distance_km, eta_minutes, created_at
		FROM assignments WHERE emergency_id = ? ORDER BY distance_km, responder_id`, e.ID)
	if err != nil {
		return fmt.Errorf("error loading assignments for %s: %w", e.ID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var a models.Assignment
		var role string
		if err := rows.Scan(&a.EmergencyID, &a.ResponderID, &role, &a.DistanceKm, &a.ETAMinutes, &a.CreatedAt); err != nil {
			return fmt.Errorf("error scanning assignment: %w", err)
		}
		a.Role = models.ResponderRole(role)
		e.Assignments = append(e.Assignments, a)
	}
	return rows.Err()
}

func (s *SQLiteDB) UpsertResponder(ctx context.Context, r *models.Responder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responders (id, name, role, latitude, longitude, phone, push_token, available)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			phone = excluded.phone,
			push_token = excluded.push_token,
			available = excluded.available`,
		r.ID, r.Name, string(r.Role), r.Location.Latitude, r.Location.Longitude,
		r.Phone, r.PushToken, boolToInt(r.Available),
	)
	if err != nil {
		return fmt.Errorf("error upserting responder %s: %w", r.ID, err)
	}
	return nil
}

func (s *SQLiteDB) GetResponder(ctx context.Context, id string) (*models.Responder, error) {
	var (
		r         models.Responder
		role      string
		phone     sql.NullString
		pushToken sql.NullString
		available int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, role, latitude, longitude, phone, push_token, available
		FROM responders WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &role, &r.Location.Latitude, &r.Location.Longitude, &phone, &pushToken, &available)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting responder %s: %w", id, err)
	}
	r.Role = models.ResponderRole(role)
	r.Phone = phone.String
	r.PushToken = pushToken.String
	r.Available = available != 0
	return &r, nil
}

func (s *SQLiteDB) ListAvailable(ctx context.Context) ([]models.Responder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, role, latitude, longitude, phone, push_token, available
		FROM responders WHERE available = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("error listing responders: %w", err)
	}
	defer rows.Close()

	var out []models.Responder
	for rows.Next() {
		var (
			r         models.Responder
			role      string
			phone     sql.NullString
			pushToken sql.NullString
			available int
		)
		if err := rows.Scan(&r.ID, &r.Name, &role, &r.Location.Latitude, &r.Location.Longitude, &phone, &pushToken, &available); err != nil {
			return nil, fmt.Errorf("error scanning responder: %w", err)
		}
		r.Role = models.ResponderRole(role)
		r.Phone = phone.String
		r.PushToken = pushToken.String
		r.Available = available != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteDB) CreateAttempt(ctx context.Context, a *models.NotificationAttempt) (bool, error) {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_attempts (id, emergency_id, recipient_id, channel, status, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(emergency_id, recipient_id, channel) DO NOTHING`,
		a.ID, a.EmergencyID, a.RecipientID, string(a.Channel), string(a.Status), a.Attempts, a.LastError, a.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("error creating attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("error reading rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteDB) UpdateAttempt(ctx context.Context, a *models.NotificationAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_attempts
		SET status = ?, attempts = ?, last_error = ?, updated_at = ?
		WHERE emergency_id = ? AND recipient_id = ? AND channel = ?`,
		string(a.Status), a.Attempts, a.LastError, a.UpdatedAt,
		a.EmergencyID, a.RecipientID, string(a.Channel),
	)
	if err != nil {
		return fmt.Errorf("error updating attempt: %w", err)
	}
	return nil
}

func (s *SQLiteDB) ListAttempts(ctx context.Context, emergencyID string) ([]models.NotificationAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, emergency_id, recipient_id, channel, status, attempts, last_error, updated_at
		FROM notification_attempts WHERE emergency_id = ? ORDER BY recipient_id, channel`, emergencyID)
	if err != nil {
		return nil, fmt.Errorf("error listing attempts for %s: %w", emergencyID, err)
	}
	defer rows.Close()

	var out []models.NotificationAttempt
	for rows.Next() {
		var (
			a       models.NotificationAttempt
			channel string
			status  string
			lastErr sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.EmergencyID, &a.RecipientID, &channel, &status, &a.Attempts, &lastErr, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("error scanning attempt: %w", err)
		}
		a.Channel = models.Channel(channel)
		a.Status = models.AttemptStatus(status)
		a.LastError = lastErr.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
