package database

import (
	"context"
	"fmt"

	"github.com/TemirB/shop/internal/domain"

	"github.com/jackc/pgx/v5"
)

const userColumns = `u.id, u.username, u.email, u.first_name, u.last_name, u.password_hash, u.is_staff, u.created_at,
	pr.user_id IS NOT NULL, COALESCE(pr.bio, ''), COALESCE(pr.agreement_accepted, FALSE), COALESCE(pr.avatar, '')`

func (r *Repo) userFrom() string {
	return fmt.Sprintf(`%s u LEFT JOIN %s pr ON pr.user_id = u.id`, r.qt("users"), r.qt("profiles"))
}

// CreateUser stores the user and an empty profile in one transaction.
func (r *Repo) CreateUser(ctx context.Context, u *domain.User) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, fmt.Sprintf(`
			INSERT INTO %s (username, email, first_name, last_name, password_hash, is_staff)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at
		`, r.qt("users")), u.Username, u.Email, u.FirstName, u.LastName, u.PasswordHash, u.IsStaff).Scan(&u.ID, &u.CreatedAt)
		if err != nil {
			return translate(err)
		}
		if u.Profile == nil {
			u.Profile = &domain.Profile{}
		}
		u.Profile.UserID = u.ID
		return r.upsertProfile(ctx, tx, u.Profile)
	})
}

func (r *Repo) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return r.getUser(ctx, r.db, "u.id = $1", id)
}

func (r *Repo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getUser(ctx, r.db, "u.username = $1", username)
}

func (r *Repo) ListUsers(ctx context.Context, page domain.Page) ([]domain.User, error) {
	clause, args := limitOffset(page, nil)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY u.id%s`, userColumns, r.userFrom(), clause), args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := []domain.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// EmailTaken reports whether another user already uses email (case-insensitive).
func (r *Repo) EmailTaken(ctx context.Context, email string, exceptUserID int64) (bool, error) {
	if email == "" {
		return false, nil
	}
	var taken bool
	err := r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT EXISTS (SELECT 1 FROM %s WHERE lower(email) = lower($1) AND id <> $2)
	`, r.qt("users")), email, exceptUserID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return taken, nil
}

// UpdateUser writes the user's editable fields and profile in one transaction.
func (r *Repo) UpdateUser(ctx context.Context, u *domain.User) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE %s SET email = $2, first_name = $3, last_name = $4
			WHERE id = $1
		`, r.qt("users")), u.ID, u.Email, u.FirstName, u.LastName)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrNotFound
		}
		if u.Profile == nil {
			return nil
		}
		u.Profile.UserID = u.ID
		return r.upsertProfile(ctx, tx, u.Profile)
	})
}

func (r *Repo) SetAvatar(ctx context.Context, userID int64, path string) error {
	tag, err := r.db.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, avatar) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET avatar = EXCLUDED.avatar
	`, r.qt("profiles")), userID, path)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repo) upsertProfile(ctx context.Context, q querier, p *domain.Profile) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (user_id, bio, agreement_accepted, avatar)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
		  bio = EXCLUDED.bio,
		  agreement_accepted = EXCLUDED.agreement_accepted,
		  avatar = EXCLUDED.avatar
	`, r.qt("profiles")), p.UserID, p.Bio, p.AgreementAccepted, p.Avatar)
	return translate(err)
}

func (r *Repo) getUser(ctx context.Context, q querier, cond string, arg any) (*domain.User, error) {
	u, err := scanUser(q.QueryRow(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE %s`, userColumns, r.userFrom(), cond), arg))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

func (r *Repo) usersByIDs(ctx context.Context, ids []int64) (map[int64]*domain.User, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE u.id = ANY($1)`, userColumns, r.userFrom()), ids)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	users := make(map[int64]*domain.User, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users[u.ID] = u
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		u          domain.User
		p          domain.Profile
		hasProfile bool
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.PasswordHash, &u.IsStaff, &u.CreatedAt,
		&hasProfile, &p.Bio, &p.AgreementAccepted, &p.Avatar); err != nil {
		return nil, err
	}
	if hasProfile {
		p.UserID = u.ID
		u.Profile = &p
	}
	return &u, nil
}
