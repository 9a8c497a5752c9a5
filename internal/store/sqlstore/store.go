package sqlstore

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver (pgx)
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pliu/socialsync/internal/errors"
	"github.com/pliu/socialsync/internal/models"
)

// SQLStore keeps every collection in one table of JSON documents keyed by
// (collection, id). It has no push capability; clients of a bare SQLStore
// observe it by polling.
type SQLStore struct {
	db         *sql.DB
	driverName string
}

func New(driverName, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" && strings.Contains(dataSourceName, ":memory:") {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) postgres() bool {
	return s.driverName == "postgres" || s.driverName == "pgx"
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (collection, id)
	);

	CREATE TABLE IF NOT EXISTS accounts (
		user_id TEXT PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL
	);
	`

	if s.postgres() {
		query = strings.ReplaceAll(query, "DATETIME", "TIMESTAMP")
	}

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.postgres() {
		// Replace ? with $1, $2, etc.
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

func (s *SQLStore) Put(ctx context.Context, record models.Record) error {
	env, err := models.Encode(record)
	if err != nil {
		return err
	}
	query := s.rebind(`
		INSERT INTO records (collection, id, body, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = CURRENT_TIMESTAMP
	`)
	if _, err := s.db.ExecContext(ctx, query, string(env.Collection), env.ID, string(env.Record)); err != nil {
		return errors.Wrap(errors.ErrStoreUnavailable, "put "+string(env.Collection)+"/"+env.ID, err)
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, collection models.Collection, id string) (models.Record, error) {
	var body string
	query := s.rebind("SELECT body FROM records WHERE collection = ? AND id = ?")
	err := s.db.QueryRowContext(ctx, query, string(collection), id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, "%s/%s not found", collection, id)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "get "+string(collection)+"/"+id, err)
	}
	return models.DecodeRecord(collection, []byte(body))
}

func (s *SQLStore) List(ctx context.Context, collection models.Collection) ([]models.Record, error) {
	query := s.rebind("SELECT body FROM records WHERE collection = ? ORDER BY id ASC")
	rows, err := s.db.QueryContext(ctx, query, string(collection))
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "list "+string(collection), err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrap(errors.ErrStoreUnavailable, "list "+string(collection), err)
		}
		r, err := models.DecodeRecord(collection, []byte(body))
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "list "+string(collection), err)
	}
	return records, nil
}

// CreateAccount relies on the UNIQUE columns, so two concurrent signups
// for the same name cannot both succeed.
func (s *SQLStore) CreateAccount(ctx context.Context, account *models.Account) error {
	query := s.rebind("INSERT INTO accounts (user_id, username, email, password) VALUES (?, ?, ?, ?)")
	if _, err := s.db.ExecContext(ctx, query, account.UserID, account.Username, account.Email, account.PasswordHash); err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(errors.ErrDuplicate, "username or email already registered", err)
		}
		return errors.Wrap(errors.ErrStoreUnavailable, "create account", err)
	}
	return nil
}

// UpdateAccount renames an account and changes its email.
func (s *SQLStore) UpdateAccount(ctx context.Context, userID, username, email string) error {
	query := s.rebind("UPDATE accounts SET username = ?, email = ? WHERE user_id = ?")
	res, err := s.db.ExecContext(ctx, query, username, email, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrap(errors.ErrDuplicate, "username or email already registered", err)
		}
		return errors.Wrap(errors.ErrStoreUnavailable, "update account", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrStoreUnavailable, "update account", err)
	}
	if n == 0 {
		return errors.Newf(errors.ErrNotFound, "no account for user %s", userID)
	}
	return nil
}

func (s *SQLStore) GetAccountByUsername(ctx context.Context, username string) (*models.Account, error) {
	var account models.Account
	query := s.rebind("SELECT user_id, username, email, password FROM accounts WHERE username = ?")
	err := s.db.QueryRowContext(ctx, query, username).Scan(&account.UserID, &account.Username, &account.Email, &account.PasswordHash)
	if err == sql.ErrNoRows {
		return nil, errors.Newf(errors.ErrNotFound, "account %q not found", username)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrStoreUnavailable, "get account", err)
	}
	return &account, nil
}

// isUniqueViolation recognizes a UNIQUE or PRIMARY KEY conflict from any of
// the supported drivers.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if stderrors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
