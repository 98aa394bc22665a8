// Package registry stores the client records: lifecycle status, server
// facts, versions and maintenance timestamps. Writes use optimistic
// concurrency on the record revision.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sethvargo/go-retry"

	"github.com/edvin/clientops/internal/model"
)

var (
	ErrNotFound = errors.New("client not found in registry")
	ErrConflict = errors.New("registry record changed concurrently")
)

const (
	upsertAttempts = 5
	conflictDelay  = 25 * time.Millisecond
)

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status model.Status
	Role   model.Role
}

func (f Filter) Match(c *model.Client) bool {
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	if f.Role != "" && c.Role != f.Role {
		return false
	}
	return true
}

// Store is the registry contract used by the lifecycle and the CLI.
type Store interface {
	Get(ctx context.Context, name string) (*model.Client, error)
	List(ctx context.Context, f Filter) ([]*model.Client, error)
	Upsert(ctx context.Context, name string, mutate func(*model.Client) error) (*model.Client, error)
	MarkDestroyed(ctx context.Context, name string, at time.Time) (*model.Client, error)
}

// backend is a storage engine. put must fail with ErrConflict when the
// stored revision differs from c.Revision (0 meaning "absent"), and on
// success sets c.Revision to the new revision.
type backend interface {
	get(ctx context.Context, name string) (*model.Client, error)
	list(ctx context.Context, f Filter) ([]*model.Client, error)
	put(ctx context.Context, c *model.Client) error
	close() error
}

// Registry implements Store over a backend.
type Registry struct {
	b   backend
	now func() time.Time
}

var _ Store = (*Registry)(nil)

// Open connects to the registry named by dsn:
//
//	postgres://user@host/db   shared Postgres database
//	badger:///var/lib/clientops embedded Badger directory
//	memory://                 in-process Badger, for tests
func Open(ctx context.Context, dsn string) (*Registry, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		b, err := openPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return newRegistry(b), nil
	case strings.HasPrefix(dsn, "badger://"):
		b, err := openBadger(strings.TrimPrefix(dsn, "badger://"), false)
		if err != nil {
			return nil, err
		}
		return newRegistry(b), nil
	case dsn == "memory://":
		b, err := openBadger("", true)
		if err != nil {
			return nil, err
		}
		return newRegistry(b), nil
	}
	return nil, fmt.Errorf("unsupported registry DSN %q (want postgres://, badger:// or memory://)", dsn)
}

func newRegistry(b backend) *Registry {
	return &Registry{b: b, now: time.Now}
}

func (r *Registry) Close() error {
	return r.b.close()
}

// Pool returns the Postgres connection pool, or nil for other backends.
func (r *Registry) Pool() *pgxpool.Pool {
	if p, ok := r.b.(*postgresBackend); ok {
		pool, _ := p.db.(*pgxpool.Pool)
		return pool
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, name string) (*model.Client, error) {
	return r.b.get(ctx, name)
}

// List returns matching clients sorted by name.
func (r *Registry) List(ctx context.Context, f Filter) ([]*model.Client, error) {
	return r.b.list(ctx, f)
}

// Upsert applies mutate to the client's record, creating the default
// skeleton when absent. A status change must be an allowed transition and
// the result must validate. Concurrent writers are detected by revision and
// the read-modify-write is retried.
func (r *Registry) Upsert(ctx context.Context, name string, mutate func(*model.Client) error) (*model.Client, error) {
	var out *model.Client

	b := retry.WithMaxRetries(upsertAttempts-1, retry.NewConstant(conflictDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		current, err := r.b.get(ctx, name)
		if errors.Is(err, ErrNotFound) {
			current = model.NewClient(name)
		} else if err != nil {
			return err
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			return err
		}
		next.Name = name
		next.Revision = current.Revision

		if next.Status != current.Status {
			if _, err := current.Status.Transition(next.Status); err != nil {
				return fmt.Errorf("client %s: %w", name, err)
			}
		}

		if err := r.write(ctx, next); err != nil {
			if errors.Is(err, ErrConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkDestroyed flips the client to destroyed and records when. The record
// itself is kept.
func (r *Registry) MarkDestroyed(ctx context.Context, name string, at time.Time) (*model.Client, error) {
	return r.Upsert(ctx, name, func(c *model.Client) error {
		c.Status = model.StatusDestroyed
		t := at.UTC()
		c.DestroyedDate = &t
		return nil
	})
}

// Restore writes c as-is, bypassing transition checks. Used by imports.
func (r *Registry) Restore(ctx context.Context, c *model.Client) error {
	current, err := r.b.get(ctx, c.Name)
	switch {
	case errors.Is(err, ErrNotFound):
		c.Revision = 0
	case err != nil:
		return err
	default:
		c.Revision = current.Revision
	}
	return r.write(ctx, c)
}

func (r *Registry) write(ctx context.Context, c *model.Client) error {
	if c.Versions == nil {
		c.Versions = map[string]string{}
	}
	if c.URLs == nil {
		c.URLs = map[string]string{}
	}
	if err := model.Validate(c); err != nil {
		return fmt.Errorf("client %s: %w", c.Name, err)
	}
	c.UpdatedAt = r.now().UTC()
	return r.b.put(ctx, c)
}
