// Package postgres implements storage.Store on PostgreSQL. Owner scopes are
// serialized with a transaction-scoped advisory lock on the owner id, so
// writers of different owners never wait on each other.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"blackout/internal/core"
	"blackout/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type PostgresStore struct {
	db *sql.DB
}

// Open connects to databaseURL and applies pending migrations.
func Open(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if err := RunMigrations(databaseURL); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db), nil
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

func RunMigrations(databaseURL string) error {
	migrateDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := migratepg.WithInstance(migrateDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *PostgresStore) Users() storage.UserStore { return pgUsers{db: p.db} }

func (p *PostgresStore) WithinOwner(ctx context.Context, owner core.OwnerID, fn func(tx storage.Tx) error) (err error) {
	dbTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", mapErr(err))
	}
	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	if _, err = dbTx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(owner)); err != nil {
		return fmt.Errorf("lock owner %d: %w", owner, mapErr(err))
	}
	if err = fn(&pgTx{tx: dbTx, owner: owner}); err != nil {
		return err
	}
	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

func (p *PostgresStore) View(ctx context.Context, owner core.OwnerID, fn func(tx storage.Tx) error) error {
	dbTx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read: %w", mapErr(err))
	}
	defer dbTx.Rollback()

	return fn(&pgTx{tx: dbTx, owner: owner, readOnly: true})
}

type pgTx struct {
	tx       *sql.Tx
	owner    core.OwnerID
	readOnly bool
}

const recordColumns = `id, owner_id, value_cents, category, description, date, created_at, updated_at`

func (t *pgTx) Get(ctx context.Context, kind core.Kind, id int64) (core.Record, error) {
	table, err := storage.TableName(kind)
	if err != nil {
		return core.Record{}, err
	}
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE id = $1 AND owner_id = $2`, id, int64(t.owner))
	rec, err := scanRecord(row, kind)
	if err == sql.ErrNoRows {
		return core.Record{}, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get %s: %w", kind, mapErr(err))
	}
	return rec, nil
}

func (t *pgTx) List(ctx context.Context, kind core.Kind) ([]core.Record, error) {
	table, err := storage.TableName(kind)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE owner_id = $1 ORDER BY date DESC, id DESC`, int64(t.owner))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, mapErr(err))
	}
	defer rows.Close()

	records := []core.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows, kind)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, mapErr(err))
	}
	return records, nil
}

func (t *pgTx) Insert(ctx context.Context, r core.Record) (core.Record, error) {
	if t.readOnly {
		return core.Record{}, storage.ErrReadOnly
	}
	r.Owner = t.owner
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	table, err := storage.TableName(r.Kind)
	if err != nil {
		return core.Record{}, err
	}
	now := time.Now().UTC()
	err = t.tx.QueryRowContext(ctx,
		`INSERT INTO `+table+` (owner_id, value_cents, category, description, date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6) RETURNING id`,
		int64(t.owner), r.Value.Cents, r.Category, r.Description, r.Date.Time, now).Scan(&r.ID)
	if err != nil {
		return core.Record{}, fmt.Errorf("insert %s: %w", r.Kind, mapErr(err))
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	return r, nil
}

func (t *pgTx) Update(ctx context.Context, r core.Record) (core.Record, error) {
	if t.readOnly {
		return core.Record{}, storage.ErrReadOnly
	}
	r.Owner = t.owner
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	table, err := storage.TableName(r.Kind)
	if err != nil {
		return core.Record{}, err
	}
	now := time.Now().UTC()
	err = t.tx.QueryRowContext(ctx,
		`UPDATE `+table+` SET value_cents = $1, category = $2, description = $3, date = $4, updated_at = $5
		WHERE id = $6 AND owner_id = $7 RETURNING created_at`,
		r.Value.Cents, r.Category, r.Description, r.Date.Time, now, r.ID, int64(t.owner)).Scan(&r.CreatedAt)
	if err == sql.ErrNoRows {
		return core.Record{}, fmt.Errorf("%s %d: %w", r.Kind, r.ID, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("update %s: %w", r.Kind, mapErr(err))
	}
	r.UpdatedAt = now
	return r, nil
}

func (t *pgTx) Delete(ctx context.Context, kind core.Kind, id int64) (bool, error) {
	if t.readOnly {
		return false, storage.ErrReadOnly
	}
	table, err := storage.TableName(kind)
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1 AND owner_id = $2`, id, int64(t.owner))
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", kind, mapErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (t *pgTx) Sum(ctx context.Context, kind core.Kind) (core.Money, error) {
	table, err := storage.TableName(kind)
	if err != nil {
		return core.Money{}, err
	}
	var cents int64
	err = t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value_cents), 0)::BIGINT FROM `+table+` WHERE owner_id = $1`, int64(t.owner)).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum %s: %w", kind, mapErr(err))
	}
	return core.Cents(cents), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, kind core.Kind) (core.Record, error) {
	var (
		rec   core.Record
		owner int64
		date  time.Time
	)
	err := row.Scan(&rec.ID, &owner, &rec.Value.Cents, &rec.Category, &rec.Description,
		&date, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return core.Record{}, err
	}
	rec.Kind = kind
	rec.Owner = core.OwnerID(owner)
	rec.Date = core.NewDate(date.Year(), int(date.Month()), date.Day())
	return rec, nil
}

// mapErr reports serialization failures and deadlocks as storage.ErrConflict.
func mapErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", storage.ErrConflict, err)
		}
	}
	return err
}

type pgUsers struct {
	db *sql.DB
}

func (u pgUsers) CreateUser(ctx context.Context, user core.User) (core.User, error) {
	user.Email = core.NormalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	var dob any
	if !user.DateOfBirth.IsZero() {
		dob = user.DateOfBirth.Time
	}
	var id int64
	err := u.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, phone_number, date_of_birth, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		user.Name, user.Email, user.PhoneNumber, dob, user.PasswordHash, user.CreatedAt).Scan(&id)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return core.User{}, fmt.Errorf("%s: %w", user.Email, storage.ErrEmailTaken)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = core.OwnerID(id)
	return user, nil
}

func (u pgUsers) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	return u.get(ctx, `email = $1`, core.NormalizeEmail(email))
}

func (u pgUsers) GetUserByID(ctx context.Context, id core.OwnerID) (core.User, error) {
	return u.get(ctx, `id = $1`, int64(id))
}

func (u pgUsers) get(ctx context.Context, where string, arg any) (core.User, error) {
	var (
		user core.User
		id   int64
		dob  sql.NullTime
	)
	err := u.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone_number, date_of_birth, password_hash, created_at FROM users WHERE `+where, arg).
		Scan(&id, &user.Name, &user.Email, &user.PhoneNumber, &dob, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	user.ID = core.OwnerID(id)
	if dob.Valid {
		user.DateOfBirth = core.NewDate(dob.Time.Year(), int(dob.Time.Month()), dob.Time.Day())
	}
	return user, nil
}

var _ storage.Store = (*PostgresStore)(nil)
