package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"

	"github.com/wayfinder-app/wayfinder/internal/database"
	"github.com/wayfinder-app/wayfinder/internal/model"
)

// Postgres implements Store on a pgx pool.
type Postgres struct {
	db *database.DB
}

var _ Store = (*Postgres)(nil)

// NewPostgres wraps the pool in the full Store surface.
func NewPostgres(db *database.DB) *Postgres {
	return &Postgres{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// CreateUser inserts the user, recomputing lookup hashes from the
// plaintext columns.
func (p *Postgres) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.EmailHash = LookupHash(u.Email)
	u.UsernameHash = LookupHash(u.Username)

	err := p.db.Pool.QueryRow(ctx,
		`INSERT INTO users
		   (id, email, email_hash, username, username_hash, password_hash,
		    is_active, is_staff, two_fa_enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		u.ID, u.Email, u.EmailHash, u.Username, u.UsernameHash,
		u.PasswordHash, u.IsActive, u.IsStaff, u.TwoFAEnabled,
	).Scan(&u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

const userColumns = `id, email, email_hash, username, username_hash,
	password_hash, is_active, is_staff, failed_attempts,
	COALESCE(last_failed_at, 'epoch'::timestamptz), two_fa_enabled, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Email, &u.EmailHash, &u.Username, &u.UsernameHash,
		&u.PasswordHash, &u.IsActive, &u.IsStaff, &u.FailedAttempts,
		&u.LastFailedAt, &u.TwoFAEnabled, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (p *Postgres) UserByEmailHash(ctx context.Context, emailHash string) (*model.User, error) {
	return scanUser(p.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email_hash = $1`, emailHash))
}

func (p *Postgres) UserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(p.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (p *Postgres) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	tag, err := p.db.Pool.Exec(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordLoginFailure restarts the counter at 1 when the previous failure
// is older than the window, otherwise increments it. One statement so
// concurrent failures never lose an increment.
func (p *Postgres) RecordLoginFailure(ctx context.Context, id uuid.UUID, now time.Time, window time.Duration) (int, error) {
	var attempts int
	err := p.db.Pool.QueryRow(ctx,
		`UPDATE users
		 SET failed_attempts = CASE
		       WHEN last_failed_at IS NULL OR last_failed_at < $2 THEN 1
		       ELSE failed_attempts + 1
		     END,
		     last_failed_at = $3
		 WHERE id = $1
		 RETURNING failed_attempts`,
		id, now.Add(-window), now,
	).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

func (p *Postgres) ResetLoginFailures(ctx context.Context, id uuid.UUID) error {
	_, err := p.db.Pool.Exec(ctx,
		`UPDATE users SET failed_attempts = 0, last_failed_at = NULL WHERE id = $1`, id)
	return err
}

func (p *Postgres) SetTwoFAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	tag, err := p.db.Pool.Exec(ctx,
		`UPDATE users SET two_fa_enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Device(ctx context.Context, userID uuid.UUID, confirmed bool) (*model.TOTPDevice, error) {
	var d model.TOTPDevice
	err := p.db.Pool.QueryRow(ctx,
		`SELECT id, user_id, secret, confirmed, created_at
		 FROM totp_devices
		 WHERE user_id = $1 AND confirmed = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		userID, confirmed,
	).Scan(&d.ID, &d.UserID, &d.Secret, &d.Confirmed, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *Postgres) CreateDevice(ctx context.Context, d *model.TOTPDevice) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return p.db.Pool.QueryRow(ctx,
		`INSERT INTO totp_devices (id, user_id, secret, confirmed)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		d.ID, d.UserID, d.Secret, d.Confirmed,
	).Scan(&d.CreatedAt)
}

func (p *Postgres) ConfirmDevice(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Pool.Exec(ctx,
		`UPDATE totp_devices SET confirmed = true WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteDevices(ctx context.Context, userID uuid.UUID) error {
	_, err := p.db.Pool.Exec(ctx,
		`DELETE FROM totp_devices WHERE user_id = $1`, userID)
	return err
}

// ReplaceCodes swaps the user's recovery batch inside one transaction so a
// crash can never leave a mix of old and new codes.
func (p *Postgres) ReplaceCodes(ctx context.Context, userID uuid.UUID, hashes []string) error {
	tx, err := p.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM recovery_codes WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO recovery_codes (id, user_id, code_hash) VALUES ($1, $2, $3)`,
			uuid.New(), userID, h); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

// ConsumeCode is a conditional update: the used=false predicate makes
// redemption exactly-once even under concurrent submission.
func (p *Postgres) ConsumeCode(ctx context.Context, userID uuid.UUID, codeHash string) error {
	tag, err := p.db.Pool.Exec(ctx,
		`UPDATE recovery_codes SET used = true
		 WHERE user_id = $1 AND code_hash = $2 AND used = false`,
		userID, codeHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteCodes(ctx context.Context, userID uuid.UUID) error {
	_, err := p.db.Pool.Exec(ctx,
		`DELETE FROM recovery_codes WHERE user_id = $1`, userID)
	return err
}

func (p *Postgres) CreateSession(ctx context.Context, userID uuid.UUID, tokenID string, expiresAt time.Time) error {
	_, err := p.db.Pool.Exec(ctx,
		`INSERT INTO sessions (user_id, token_id, expires_at) VALUES ($1, $2, $3)`,
		userID, tokenID, expiresAt)
	return err
}

func (p *Postgres) RevokeSession(ctx context.Context, tokenID string) error {
	tag, err := p.db.Pool.Exec(ctx,
		`UPDATE sessions SET revoked = true WHERE token_id = $1`, tokenID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SessionValid(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	var expiresAt time.Time
	err := p.db.Pool.QueryRow(ctx,
		`SELECT revoked, expires_at FROM sessions WHERE token_id = $1`,
		tokenID).Scan(&revoked, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !revoked && time.Now().Before(expiresAt), nil
}

func (p *Postgres) CreateRoute(ctx context.Context, r *model.Route) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return p.db.Pool.QueryRow(ctx,
		`INSERT INTO routes
		   (id, user_id, start_location_name, start_location_lat, start_location_lng,
		    end_location_name, end_location_lat, end_location_lng,
		    distance, duration_seconds, saved)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING created_at`,
		r.ID, r.UserID, r.StartLocationName, r.StartLocationLat, r.StartLocationLng,
		r.EndLocationName, r.EndLocationLat, r.EndLocationLng,
		r.Distance, int64(r.Duration.Seconds()), r.Saved,
	).Scan(&r.CreatedAt)
}

func (p *Postgres) RoutesByUser(ctx context.Context, userID uuid.UUID) ([]model.Route, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT id, user_id, start_location_name, start_location_lat, start_location_lng,
		        end_location_name, end_location_lat, end_location_lng,
		        distance, duration_seconds, saved, created_at
		 FROM routes WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []model.Route
	for rows.Next() {
		var r model.Route
		var seconds int64
		if err := rows.Scan(&r.ID, &r.UserID,
			&r.StartLocationName, &r.StartLocationLat, &r.StartLocationLng,
			&r.EndLocationName, &r.EndLocationLat, &r.EndLocationLng,
			&r.Distance, &seconds, &r.Saved, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(seconds) * time.Second
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (p *Postgres) DeleteRoute(ctx context.Context, id, userID uuid.UUID) error {
	return p.deleteOwned(ctx, "routes", id, userID)
}

func (p *Postgres) CreateLocation(ctx context.Context, l *model.SearchedLocation) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return p.db.Pool.QueryRow(ctx,
		`INSERT INTO searched_locations (id, user_id, name, lat, lng)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		l.ID, l.UserID, l.Name, l.Lat, l.Lng,
	).Scan(&l.CreatedAt)
}

func (p *Postgres) LocationsByUser(ctx context.Context, userID uuid.UUID) ([]model.SearchedLocation, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT id, user_id, name, lat, lng, created_at
		 FROM searched_locations WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []model.SearchedLocation
	for rows.Next() {
		var l model.SearchedLocation
		if err := rows.Scan(&l.ID, &l.UserID, &l.Name, &l.Lat, &l.Lng, &l.CreatedAt); err != nil {
			return nil, err
		}
		locations = append(locations, l)
	}
	return locations, rows.Err()
}

func (p *Postgres) DeleteLocation(ctx context.Context, id, userID uuid.UUID) error {
	return p.deleteOwned(ctx, "searched_locations", id, userID)
}

func (p *Postgres) CreateFavRoute(ctx context.Context, f *model.FavRoute) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return p.db.Pool.QueryRow(ctx,
		`INSERT INTO fav_routes (id, user_id, name, data)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		f.ID, f.UserID, f.Name, f.Data,
	).Scan(&f.CreatedAt)
}

func (p *Postgres) FavRoutesByUser(ctx context.Context, userID uuid.UUID) ([]model.FavRoute, error) {
	rows, err := p.db.Pool.Query(ctx,
		`SELECT id, user_id, name, data, created_at
		 FROM fav_routes WHERE user_id = $1 ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favs []model.FavRoute
	for rows.Next() {
		var f model.FavRoute
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &f.Data, &f.CreatedAt); err != nil {
			return nil, err
		}
		favs = append(favs, f)
	}
	return favs, rows.Err()
}

func (p *Postgres) DeleteFavRoute(ctx context.Context, id, userID uuid.UUID) error {
	return p.deleteOwned(ctx, "fav_routes", id, userID)
}

func (p *Postgres) deleteOwned(ctx context.Context, table string, id, userID uuid.UUID) error {
	tag, err := p.db.Pool.Exec(ctx,
		`DELETE FROM `+table+` WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
