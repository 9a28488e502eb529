package maintenance

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

func (s *pgStore) CountWhere(ctx context.Context, table string, f Filter) (int64, error) {
	q := fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s < $1`, ident(table), ident(f.Column))
	var n int64
	if err := s.pool.QueryRow(ctx, q, f.Before).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *pgStore) DeleteWhere(ctx context.Context, table string, f Filter) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s < $1`, ident(table), ident(f.Column))
	tag, err := s.pool.Exec(ctx, q, f.Before)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) CopyWhere(ctx context.Context, from, to string, f Filter) (int64, error) {
	q := fmt.Sprintf(`INSERT INTO %s SELECT * FROM %s WHERE %s < $1`,
		ident(to), ident(from), ident(f.Column))
	tag, err := s.pool.Exec(ctx, q, f.Before)
	if err != nil {
		return 0, fmt.Errorf("copy %s into %s: %w", from, to, err)
	}
	return tag.RowsAffected(), nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
