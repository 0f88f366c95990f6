// Package sqlite reads live asset references from a SQLite record store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/tendant/assetstore/pkg/assetstore"
	"github.com/tendant/assetstore/pkg/assetstore/digest"
	"github.com/tendant/assetstore/pkg/assetstore/refsource"
	_ "modernc.org/sqlite"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Source implements assetstore.ReferenceSource over a SQLite database.
type Source struct {
	db   *sqlx.DB
	opts refsource.Options
	own  bool
}

// New wraps an open database.
func New(db *sqlx.DB, opts ...refsource.Option) *Source {
	return &Source{db: db, opts: refsource.Apply(opts...)}
}

// Open connects to the database at dsn, which may be a file path or a
// sqlite:// URL. The returned Source owns the connection.
func Open(ctx context.Context, dsn string, opts ...refsource.Option) (*Source, error) {
	dsn = strings.TrimPrefix(dsn, "sqlite://")
	if dsn == "" {
		return nil, fmt.Errorf("sqlite reference database path is required")
	}
	db, err := sqlx.ConnectContext(ctx, DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to reference database: %w", err)
	}
	s := New(db, opts...)
	s.own = true
	return s, nil
}

// LiveDigests runs the reference query and returns every valid digest.
func (s *Source) LiveDigests(ctx context.Context) (digest.Set, error) {
	var values []sql.NullString
	if err := s.db.SelectContext(ctx, &values, s.opts.Query); err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}

	b := refsource.NewBuilder()
	for _, v := range values {
		if v.Valid {
			b.Add(&v.String)
		}
	}
	return b.Finish(s.opts.Logger, "sqlite"), nil
}

// Close closes the database if the Source opened it.
func (s *Source) Close() error {
	if s.own {
		return s.db.Close()
	}
	return nil
}

var _ assetstore.ReferenceSource = (*Source)(nil)
