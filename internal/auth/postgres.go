package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var _ UserStore = (*PGUserStore)(nil)

// PGUserStore implements UserStore using PostgreSQL.
type PGUserStore struct {
	db *sql.DB
}

func NewPGUserStore(db *sql.DB) *PGUserStore {
	return &PGUserStore{db: db}
}

// EnsureSchema creates the credential tables when missing.
func (s *PGUserStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`create table if not exists users (
			id uuid primary key,
			username text not null unique,
			email text not null unique,
			password_hash text not null default '',
			created_at timestamptz not null default now(),
			updated_at timestamptz not null default now()
		)`,
		`create table if not exists user_roles (
			user_id uuid not null references users(id) on delete cascade,
			role text not null,
			primary key (user_id, role)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *PGUserStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, email, password_hash, created_at, updated_at from users where id=$1`, id)
	return s.scanUser(ctx, row)
}

func (s *PGUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, username, email, password_hash, created_at, updated_at from users where lower(username)=lower($1)`,
		strings.TrimSpace(username))
	return s.scanUser(ctx, row)
}

func (s *PGUserStore) scanUser(ctx context.Context, row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	roles, err := s.rolesFor(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	u.Roles = roles
	return &u, nil
}

func (s *PGUserStore) rolesFor(ctx context.Context, id uuid.UUID) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `select role from user_roles where user_id=$1 order by role`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		roles = append(roles, ParseRole(raw))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return NormalizeRoles(roles), nil
}

func (s *PGUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where lower(username)=lower($1))`,
		strings.TrimSpace(username)).Scan(&exists)
	return exists, err
}

func (s *PGUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from users where lower(email)=lower($1))`,
		strings.TrimSpace(email)).Scan(&exists)
	return exists, err
}

// Save upserts the user record and replaces its role set atomically.
func (s *PGUserStore) Save(ctx context.Context, user *User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`insert into users(id, username, email, password_hash) values($1,$2,$3,$4)
		 on conflict (id) do update
		 set username=excluded.username, email=excluded.email,
		     password_hash=excluded.password_hash, updated_at=now()`,
		user.ID, user.Username, user.Email, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `delete from user_roles where user_id=$1`, user.ID); err != nil {
		return fmt.Errorf("clear roles: %w", err)
	}
	for _, role := range NormalizeRoles(user.Roles) {
		if _, err := tx.ExecContext(ctx,
			`insert into user_roles(user_id, role) values($1,$2)`, user.ID, string(role)); err != nil {
			return fmt.Errorf("save role: %w", err)
		}
	}
	return tx.Commit()
}
