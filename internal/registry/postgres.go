package registry

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/edvin/clientops/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB defines the database operations used by the Postgres backend.
// *pgxpool.Pool satisfies this interface.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresBackend struct {
	db      DB
	closeFn func()
}

// openPostgres migrates the schema and connects. It is the only place
// migrations run.
func openPostgres(ctx context.Context, dsn string) (*postgresBackend, error) {
	if err := migrate(dsn); err != nil {
		return nil, fmt.Errorf("migrate registry: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse registry db config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create registry db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping registry db: %w", err)
	}
	return &postgresBackend{db: pool, closeFn: pool.Close}, nil
}

// NewPostgres builds a Registry over an existing connection.
func NewPostgres(db DB) *Registry {
	return newRegistry(&postgresBackend{db: db})
}

var migrate = runMigrations

// runMigrations applies the embedded schema migrations.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (p *postgresBackend) get(ctx context.Context, name string) (*model.Client, error) {
	var (
		data []byte
		c    model.Client
	)
	err := p.db.QueryRow(ctx,
		`SELECT data, revision, updated_at FROM clients WHERE name = $1`, name,
	).Scan(&data, &c.Revision, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get client %s: %w", name, err)
	}

	rev, updated := c.Revision, c.UpdatedAt
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode client %s: %w", name, err)
	}
	c.Revision, c.UpdatedAt = rev, updated
	return &c, nil
}

func (p *postgresBackend) list(ctx context.Context, f Filter) ([]*model.Client, error) {
	rows, err := p.db.Query(ctx,
		`SELECT data, revision, updated_at FROM clients
		 WHERE ($1 = '' OR status = $1) AND ($2 = '' OR role = $2)
		 ORDER BY name`, string(f.Status), string(f.Role),
	)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []*model.Client
	for rows.Next() {
		var (
			data []byte
			c    model.Client
		)
		if err := rows.Scan(&data, &c.Revision, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan client: %w", err)
		}
		rev, updated := c.Revision, c.UpdatedAt
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("decode client: %w", err)
		}
		c.Revision, c.UpdatedAt = rev, updated
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clients: %w", err)
	}
	return out, nil
}

func (p *postgresBackend) put(ctx context.Context, c *model.Client) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode client %s: %w", c.Name, err)
	}

	var tag pgconn.CommandTag
	if c.Revision == 0 {
		tag, err = p.db.Exec(ctx,
			`INSERT INTO clients (name, status, role, data, revision, updated_at)
			 VALUES ($1, $2, $3, $4, 1, $5)
			 ON CONFLICT (name) DO NOTHING`,
			c.Name, string(c.Status), string(c.Role), data, c.UpdatedAt,
		)
	} else {
		tag, err = p.db.Exec(ctx,
			`UPDATE clients SET status = $2, role = $3, data = $4, revision = revision + 1, updated_at = $5
			 WHERE name = $1 AND revision = $6`,
			c.Name, string(c.Status), string(c.Role), data, c.UpdatedAt, c.Revision,
		)
	}
	if err != nil {
		return fmt.Errorf("write client %s: %w", c.Name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s at revision %d", ErrConflict, c.Name, c.Revision)
	}
	c.Revision++
	return nil
}

func (p *postgresBackend) close() error {
	if p.closeFn != nil {
		p.closeFn()
	}
	return nil
}
