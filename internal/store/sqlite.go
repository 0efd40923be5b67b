package store

import (
	"context"
	"database/sql"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore is the single-node Store backed by modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas are applied by the driver to every pooled connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

// sqliteDSN appends the connection pragmas to dsn as _pragma parameters.
func sqliteDSN(dsn string) string {
	params := make(url.Values)
	for _, p := range sqlitePragmas {
		params.Add("_pragma", p)
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + params.Encode()
}

// NewSQLite opens the database file at dsn and verifies the connection.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		return nil, eris.New("sqlite: empty dsn")
	}
	db, err := sql.Open("sqlite", sqliteDSN(dsn))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "sqlite: connect %s", dsn)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Staging() StagingStore       { return &sqliteStaging{db: s.db} }
func (s *SQLiteStore) Prospects() ProspectStore    { return &sqliteProspects{db: s.db} }
func (s *SQLiteStore) Quarantine() QuarantineStore { return &sqliteQuarantine{db: s.db} }
func (s *SQLiteStore) Enrichment() EnrichmentStore { return &sqliteEnrichment{db: s.db} }

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	names, err := migrationFiles("migrations/sqlite")
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := migrationFS.ReadFile("migrations/sqlite/" + name)
		if err != nil {
			return eris.Wrapf(err, "sqlite: read migration %s", name)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "sqlite: apply migration %s", name)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}
