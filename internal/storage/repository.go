package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"blackout/internal/core"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	timeLayout = time.RFC3339Nano

	// Writers take the database lock at BEGIN, so two scopes can never both
	// read a balance and then race to write.
	dsnOptions = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"
)

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies pending migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?" + dsnOptions
	if err := RunMigrations(dsn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) Users() UserStore {
	return sqliteUsers{db: r.db}
}

// WithinOwner implements Store. SQLite has a single writer, so scopes are
// serialized across owners as well.
func (r *SQLiteRepository) WithinOwner(ctx context.Context, owner core.OwnerID, fn func(tx Tx) error) (err error) {
	dbTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", mapSQLiteErr(err))
	}
	defer func() {
		if err != nil {
			_ = dbTx.Rollback()
		}
	}()

	if err = fn(&sqliteTx{tx: dbTx, owner: owner}); err != nil {
		return err
	}
	if err = dbTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", mapSQLiteErr(err))
	}
	return nil
}

func (r *SQLiteRepository) View(ctx context.Context, owner core.OwnerID, fn func(tx Tx) error) error {
	dbTx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read: %w", mapSQLiteErr(err))
	}
	defer dbTx.Rollback()

	return fn(&sqliteTx{tx: dbTx, owner: owner, readOnly: true})
}

type sqliteTx struct {
	tx       *sql.Tx
	owner    core.OwnerID
	readOnly bool
}

const recordColumns = `id, owner_id, value_cents, category, description, date, created_at, updated_at`

func (t *sqliteTx) Get(ctx context.Context, kind core.Kind, id int64) (core.Record, error) {
	table, err := TableName(kind)
	if err != nil {
		return core.Record{}, err
	}
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE id = ? AND owner_id = ?`, id, int64(t.owner))
	rec, err := scanSQLiteRecord(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Record{}, fmt.Errorf("%s %d: %w", kind, id, core.ErrNotFound)
	}
	if err != nil {
		return core.Record{}, fmt.Errorf("get %s: %w", kind, mapSQLiteErr(err))
	}
	return rec, nil
}

func (t *sqliteTx) List(ctx context.Context, kind core.Kind) ([]core.Record, error) {
	table, err := TableName(kind)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM `+table+` WHERE owner_id = ? ORDER BY date DESC, id DESC`, int64(t.owner))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, mapSQLiteErr(err))
	}
	defer rows.Close()

	records := []core.Record{}
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows, kind)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", kind, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, mapSQLiteErr(err))
	}
	return records, nil
}

func (t *sqliteTx) Insert(ctx context.Context, r core.Record) (core.Record, error) {
	if t.readOnly {
		return core.Record{}, ErrReadOnly
	}
	r.Owner = t.owner
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	table, err := TableName(r.Kind)
	if err != nil {
		return core.Record{}, err
	}
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO `+table+` (owner_id, value_cents, category, description, date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		int64(t.owner), r.Value.Cents, r.Category, r.Description, r.Date.String(),
		now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return core.Record{}, fmt.Errorf("insert %s: %w", r.Kind, mapSQLiteErr(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Record{}, fmt.Errorf("insert %s: %w", r.Kind, err)
	}

	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return r, nil
}

func (t *sqliteTx) Update(ctx context.Context, r core.Record) (core.Record, error) {
	if t.readOnly {
		return core.Record{}, ErrReadOnly
	}
	r.Owner = t.owner
	if err := r.Validate(); err != nil {
		return core.Record{}, err
	}
	table, err := TableName(r.Kind)
	if err != nil {
		return core.Record{}, err
	}
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`UPDATE `+table+` SET value_cents = ?, category = ?, description = ?, date = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		r.Value.Cents, r.Category, r.Description, r.Date.String(), now.Format(timeLayout),
		r.ID, int64(t.owner))
	if err != nil {
		return core.Record{}, fmt.Errorf("update %s: %w", r.Kind, mapSQLiteErr(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Record{}, fmt.Errorf("%s %d: %w", r.Kind, r.ID, core.ErrNotFound)
	}

	r.UpdatedAt = now
	return r, nil
}

func (t *sqliteTx) Delete(ctx context.Context, kind core.Kind, id int64) (bool, error) {
	if t.readOnly {
		return false, ErrReadOnly
	}
	table, err := TableName(kind)
	if err != nil {
		return false, err
	}
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = ? AND owner_id = ?`, id, int64(t.owner))
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", kind, mapSQLiteErr(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", kind, err)
	}
	return n > 0, nil
}

func (t *sqliteTx) Sum(ctx context.Context, kind core.Kind) (core.Money, error) {
	table, err := TableName(kind)
	if err != nil {
		return core.Money{}, err
	}
	var cents int64
	err = t.tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value_cents), 0) FROM `+table+` WHERE owner_id = ?`, int64(t.owner)).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("sum %s: %w", kind, mapSQLiteErr(err))
	}
	return core.Cents(cents), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner, kind core.Kind) (core.Record, error) {
	var (
		rec                  core.Record
		owner                int64
		date                 string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &owner, &rec.Value.Cents, &rec.Category, &rec.Description,
		&date, &createdAt, &updatedAt); err != nil {
		return core.Record{}, err
	}

	d, err := core.ParseDate(date)
	if err != nil {
		return core.Record{}, fmt.Errorf("stored date %q: %w", date, err)
	}
	rec.Kind = kind
	rec.Owner = core.OwnerID(owner)
	rec.Date = d
	rec.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	rec.UpdatedAt, _ = time.Parse(timeLayout, updatedAt)
	return rec, nil
}

// mapSQLiteErr turns lock contention into ErrConflict so the caller can retry
// the whole scope.
func mapSQLiteErr(err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", ErrConflict, err)
		}
	}
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}

type sqliteUsers struct {
	db *sql.DB
}

func (u sqliteUsers) CreateUser(ctx context.Context, user core.User) (core.User, error) {
	user.Email = core.NormalizeEmail(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	res, err := u.db.ExecContext(ctx,
		`INSERT INTO users (name, email, phone_number, date_of_birth, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		user.Name, user.Email, user.PhoneNumber, user.DateOfBirth.String(), user.PasswordHash,
		user.CreatedAt.Format(timeLayout))
	if isUniqueViolation(err) {
		return core.User{}, fmt.Errorf("%s: %w", user.Email, ErrEmailTaken)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.User{}, fmt.Errorf("insert user: %w", err)
	}
	user.ID = core.OwnerID(id)
	return user, nil
}

func (u sqliteUsers) GetUserByEmail(ctx context.Context, email string) (core.User, error) {
	row := u.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone_number, date_of_birth, password_hash, created_at
		FROM users WHERE email = ?`, core.NormalizeEmail(email))
	return scanSQLiteUser(row)
}

func (u sqliteUsers) GetUserByID(ctx context.Context, id core.OwnerID) (core.User, error) {
	row := u.db.QueryRowContext(ctx,
		`SELECT id, name, email, phone_number, date_of_birth, password_hash, created_at
		FROM users WHERE id = ?`, int64(id))
	return scanSQLiteUser(row)
}

func scanSQLiteUser(row rowScanner) (core.User, error) {
	var (
		user       core.User
		id         int64
		dob, since string
	)
	err := row.Scan(&id, &user.Name, &user.Email, &user.PhoneNumber, &dob, &user.PasswordHash, &since)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.ID = core.OwnerID(id)
	if dob != "" {
		user.DateOfBirth, _ = core.ParseDate(dob)
	}
	user.CreatedAt, _ = time.Parse(timeLayout, since)
	return user, nil
}

var _ Store = (*SQLiteRepository)(nil)
