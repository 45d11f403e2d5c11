package sandbox

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tulusdeveloper/new-medical-ui/internal/platform/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PGStore keeps records as JSONB rows so a sandbox survives restarts.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore applies the sandbox migrations and returns a store on pool.
func NewPGStore(ctx context.Context, pool *pgxpool.Pool) (*PGStore, error) {
	files, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return nil, err
	}
	if _, err := db.NewMigrator(pool, files).Up(ctx); err != nil {
		return nil, fmt.Errorf("migrate sandbox store: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) List(ctx context.Context, collection string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, body FROM sandbox_records WHERE collection = $1 ORDER BY id`, collection)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var id int64
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		rec, err := decodeRecord(id, body)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) Get(ctx context.Context, collection, id string) (Record, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	var body []byte
	err = s.pool.QueryRow(ctx,
		`SELECT body FROM sandbox_records WHERE collection = $1 AND id = $2`, collection, n).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s%s: %w", collection, id, err)
	}
	return decodeRecord(n, body)
}

func (s *PGStore) Create(ctx context.Context, collection string, rec Record) (Record, error) {
	body, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	var id int64
	if err := s.pool.QueryRow(ctx,
		`INSERT INTO sandbox_records (collection, body) VALUES ($1, $2) RETURNING id`,
		collection, body).Scan(&id); err != nil {
		return nil, fmt.Errorf("create %s: %w", collection, err)
	}
	out := rec.clone()
	out["id"] = id
	return out, nil
}

func (s *PGStore) Update(ctx context.Context, collection, id string, rec Record) (Record, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil, ErrNotFound
	}
	body, err := encodeRecord(rec)
	if err != nil {
		return nil, err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sandbox_records SET body = $3, updated_at = NOW() WHERE collection = $1 AND id = $2`,
		collection, n, body)
	if err != nil {
		return nil, fmt.Errorf("update %s%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	out := rec.clone()
	out["id"] = n
	return out, nil
}

func (s *PGStore) Delete(ctx context.Context, collection, id string) error {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM sandbox_records WHERE collection = $1 AND id = $2`, collection, n)
	if err != nil {
		return fmt.Errorf("delete %s%s: %w", collection, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `TRUNCATE sandbox_records RESTART IDENTITY`); err != nil {
		return fmt.Errorf("reset sandbox store: %w", err)
	}
	return nil
}

func encodeRecord(rec Record) ([]byte, error) {
	body := rec.clone()
	delete(body, "id")
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

func decodeRecord(id int64, body []byte) (Record, error) {
	rec := Record{}
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("decode record %d: %w", id, err)
	}
	rec["id"] = id
	return rec, nil
}
