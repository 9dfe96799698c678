package migrations

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	"github.com/lib/pq"
	"golang.org/x/xerrors"
)

const (
	// advisoryLockID serializes migrations across replicas starting at once.
	advisoryLockID   = int64(7291048836102230311)
	versionTableName = "schema_migrations"
)

// txnDriver is a golang-migrate database driver that runs every migration
// between Lock and Unlock in a single transaction. A failed migration rolls
// back completely instead of leaving the schema dirty.
type txnDriver struct {
	ctx context.Context
	db  *sql.DB
	tx  *sql.Tx
}

var _ database.Driver = (*txnDriver)(nil)

func newTxnDriver(ctx context.Context, db *sql.DB) (*txnDriver, error) {
	d := &txnDriver{ctx: ctx, db: db}
	const query = `CREATE TABLE IF NOT EXISTS ` + versionTableName + ` (version bigint NOT NULL PRIMARY KEY, dirty boolean NOT NULL)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return nil, &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return d, nil
}

func (*txnDriver) Open(string) (database.Driver, error) {
	return nil, xerrors.New("open by url is not supported")
}

func (*txnDriver) Close() error {
	return nil
}

func (d *txnDriver) Lock() error {
	tx, err := d.db.BeginTx(d.ctx, nil)
	if err != nil {
		return xerrors.Errorf("begin tx: %w", err)
	}
	_, err = tx.ExecContext(d.ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockID)
	if err != nil {
		_ = tx.Rollback()
		return xerrors.Errorf("acquire advisory lock: %w", err)
	}
	d.tx = tx
	return nil
}

func (d *txnDriver) Unlock() error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Commit()
	d.tx = nil
	if err != nil {
		return xerrors.Errorf("commit migration tx: %w", err)
	}
	return nil
}

// Run applies a migration inside the open transaction. Explicit transaction
// statements in the file are stripped since the driver owns the transaction.
func (d *txnDriver) Run(migration io.Reader) error {
	body, err := io.ReadAll(migration)
	if err != nil {
		return xerrors.Errorf("read migration: %w", err)
	}
	body = bytes.ReplaceAll(body, []byte("BEGIN;"), nil)
	body = bytes.ReplaceAll(body, []byte("COMMIT;"), nil)

	query := string(body)
	if strings.TrimSpace(query) == "" {
		return nil
	}
	if _, err := d.tx.ExecContext(d.ctx, query); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			msg := fmt.Sprintf("migration failed: %s", pqErr.Message)
			if pqErr.Detail != "" {
				msg += ", " + pqErr.Detail
			}
			return database.Error{OrigErr: err, Err: msg, Query: body}
		}
		return database.Error{OrigErr: err, Err: "migration failed", Query: body}
	}
	return nil
}

func (d *txnDriver) SetVersion(version int, dirty bool) error {
	query := `TRUNCATE ` + versionTableName
	if _, err := d.tx.ExecContext(d.ctx, query); err != nil {
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}
	if version < 0 {
		return nil
	}
	query = `INSERT INTO ` + versionTableName + ` (version, dirty) VALUES ($1, $2)`
	if _, err := d.tx.ExecContext(d.ctx, query, version, dirty); err != nil {
		return &database.Error{OrigErr: err, Query: []byte(query)}
	}
	return nil
}

func (d *txnDriver) Version() (version int, dirty bool, err error) {
	var q interface {
		QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	} = d.db
	if d.tx != nil {
		q = d.tx
	}

	query := `SELECT version, dirty FROM ` + versionTableName + ` LIMIT 1`
	err = q.QueryRowContext(d.ctx, query).Scan(&version, &dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return database.NilVersion, false, nil
	case err != nil:
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "undefined_table" {
			return database.NilVersion, false, nil
		}
		return 0, false, &database.Error{OrigErr: err, Query: []byte(query)}
	default:
		return version, dirty, nil
	}
}

func (*txnDriver) Drop() error {
	return xerrors.New("drop is not supported")
}
