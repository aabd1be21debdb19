package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// SQLite keeps the whole keyspace in one records table. Unlike the
// other backends it implements Transactor, so registry writes on this
// backend have no partial-write window at all.
type SQLite struct {
	db *sql.DB
	gq *goqu.Database
}

type recordRow struct {
	Key string `db:"k"`
	Doc string `db:"doc"`
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", formatDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Debug().Str("path", path).Msg("sqlite store ready")

	return &SQLite{db: db, gq: goqu.New("sqlite", db)}, nil
}

func formatDSN(path string) string {
	// Pragmas for better performance and safety
	// See: https://pkg.go.dev/modernc.org/sqlite#pkg-overview
	params := url.Values{}
	params.Set("cache", "shared")
	params.Set("mode", "rwc")
	params.Set("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Set("_busy_timeout", "5000")

	return "file:" + path + "?" + params.Encode()
}

func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		k TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

func (s *SQLite) Get(ctx context.Context, key string) (Record, error) {
	query := s.gq.From("records").Where(goqu.Ex{"k": key}).Select("doc")

	var doc string
	found, err := query.Executor().ScanValContext(ctx, &doc)
	if err != nil {
		return Record{}, fmt.Errorf("sqlite get %q: %w", key, err)
	}
	if !found {
		return Record{}, ErrKeyNotFound
	}
	return Record{Key: key, Doc: []byte(doc)}, nil
}

func (s *SQLite) PutIfAbsent(ctx context.Context, key string, doc []byte) error {
	query := s.gq.Insert("records").
		Cols("k", "doc").
		Vals([]any{key, string(doc)}).
		OnConflict(goqu.DoNothing())

	res, err := query.Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("sqlite insert %q: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite insert %q: %w", key, err)
	}
	if affected == 0 {
		return ErrKeyExists
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key string) error {
	query := s.gq.Delete("records").Where(goqu.Ex{"k": key})
	if _, err := query.Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("sqlite delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLite) ScanPrefix(ctx context.Context, prefix string) ([]Record, error) {
	query := s.gq.From("records").
		Where(goqu.C("k").Like(prefix + "%")).
		Select("k", "doc").
		Order(goqu.C("k").Asc())

	var rows []recordRow
	if err := query.Executor().ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("sqlite scan %q: %w", prefix, err)
	}

	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = Record{Key: row.Key, Doc: []byte(row.Doc)}
	}
	return out, nil
}

// RunTransaction applies ops atomically. A put-if-absent whose key is
// taken rolls back every prior op and returns ErrKeyExists.
func (s *SQLite) RunTransaction(ctx context.Context, ops []Op) error {
	tx, err := s.gq.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}

	return tx.Wrap(func() error {
		for _, op := range ops {
			switch op.Kind {
			case OpPutIfAbsent:
				query := tx.Insert("records").
					Cols("k", "doc").
					Vals([]any{op.Key, string(op.Doc)}).
					OnConflict(goqu.DoNothing())
				res, err := query.Executor().ExecContext(ctx)
				if err != nil {
					return fmt.Errorf("sqlite tx insert %q: %w", op.Key, err)
				}
				affected, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("sqlite tx insert %q: %w", op.Key, err)
				}
				if affected == 0 {
					return ErrKeyExists
				}
			case OpDelete:
				query := tx.Delete("records").Where(goqu.Ex{"k": op.Key})
				if _, err := query.Executor().ExecContext(ctx); err != nil {
					return fmt.Errorf("sqlite tx delete %q: %w", op.Key, err)
				}
			default:
				return fmt.Errorf("sqlite tx: unknown op kind %d", op.Kind)
			}
		}
		return nil
	})
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
