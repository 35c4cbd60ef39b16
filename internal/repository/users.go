package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"tenantdesk.io/console/internal/domain"
	apperrors "tenantdesk.io/console/internal/pkg/errors"
	"tenantdesk.io/console/internal/settings"
)

const userColumns = `id, username, role, use_social_provider, daily_message_limit, user_lang, created_at, updated_at`

// NewUser is the input of UserRepository.Create.
type NewUser struct {
	Username           string
	Password           string
	Role               domain.Role
	UsesSocialProvider bool
	DailyMessageLimit  *int
	UserLang           string
}

// UserRepository stores accounts in the users table.
type UserRepository struct {
	db         Beginner
	bcryptCost int
}

// NewUserRepository creates a UserRepository. Passwords are hashed with cost.
func NewUserRepository(db Beginner, cost int) *UserRepository {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &UserRepository{db: db, bcryptCost: cost}
}

// FetchUser returns the account with id.
func (r *UserRepository) FetchUser(ctx context.Context, id int64) (*domain.AccountSubject, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch user %d: %w", id, err)
	}
	return u, nil
}

// FetchByUsername returns the account named username.
func (r *UserRepository) FetchByUsername(ctx context.Context, username string) (*domain.AccountSubject, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("fetch user %q: %w", username, err)
	}
	return u, nil
}

// UpdateUser applies patch in one statement. A nil dailyMessageLimit clears
// the quota. Passwords are hashed before they reach the database.
func (r *UserRepository) UpdateUser(ctx context.Context, id int64, patch settings.PendingPatch) error {
	sets, args, err := r.assignments(patch)
	if err != nil {
		return err
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $` + strconv.Itoa(len(args))
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("update user %d: username taken: %w", id, apperrors.ErrConflict)
		}
		return fmt.Errorf("update user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// assignments maps patch keys to SET clauses in key order.
func (r *UserRepository) assignments(patch settings.PendingPatch) ([]string, []any, error) {
	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	for _, key := range patch.Keys() {
		switch key {
		case settings.FieldUsername, settings.FieldUserLang:
			s, ok := patch.String(key)
			if !ok {
				return nil, nil, fmt.Errorf("patch %s: want string, got %T", key, patch[key])
			}
			if key == settings.FieldUsername {
				add("username", s)
			} else {
				add("user_lang", s)
			}
		case settings.FieldPassword:
			s, ok := patch.String(key)
			if !ok {
				return nil, nil, fmt.Errorf("patch %s: want string, got %T", key, patch[key])
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(s), r.bcryptCost)
			if err != nil {
				return nil, nil, fmt.Errorf("hash password: %w", err)
			}
			add("password_hash", string(hash))
		case settings.FieldRole:
			s, _ := patch.String(key)
			role, err := domain.ParseRole(s)
			if err != nil {
				return nil, nil, fmt.Errorf("patch %s: %w", key, err)
			}
			add("role", string(role))
		case settings.FieldUseSocialProvider:
			b, err := patch.Bool(key)
			if err != nil {
				return nil, nil, fmt.Errorf("patch %s: %w", key, err)
			}
			add("use_social_provider", b)
		case settings.FieldDailyMessageLimit:
			n, err := patch.Int(key)
			if err != nil {
				return nil, nil, fmt.Errorf("patch %s: %w", key, err)
			}
			add("daily_message_limit", n)
		default:
			return nil, nil, fmt.Errorf("patch %s: %w", key, settings.ErrUnknownField)
		}
	}
	return sets, args, nil
}

// Create inserts a user. A taken username yields ErrConflict.
func (r *UserRepository) Create(ctx context.Context, in NewUser) (*domain.AccountSubject, error) {
	role := in.Role
	if role == "" {
		role = domain.RoleDefault
	}
	hash := ""
	if in.Password != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(in.Password), r.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = string(b)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, role, use_social_provider, daily_message_limit, user_lang)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+userColumns,
		in.Username, hash, string(role), in.UsesSocialProvider, in.DailyMessageLimit, in.UserLang,
	)
	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("create user %q: %w", in.Username, apperrors.ErrConflict)
		}
		return nil, fmt.Errorf("create user %q: %w", in.Username, err)
	}
	return u, nil
}

// VerifyPassword reports whether password matches the stored hash.
func (r *UserRepository) VerifyPassword(ctx context.Context, id int64, password string) (bool, error) {
	var hash string
	if err := r.db.QueryRow(ctx, `SELECT password_hash FROM users WHERE id = $1`, id).Scan(&hash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("user %d: %w", id, apperrors.ErrNotFound)
		}
		return false, fmt.Errorf("read password hash: %w", err)
	}
	if hash == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

func scanUser(row pgx.Row) (*domain.AccountSubject, error) {
	var (
		u     domain.AccountSubject
		role  string
		limit *int32
	)
	if err := row.Scan(&u.ID, &u.Username, &role, &u.UsesSocialProvider, &limit, &u.UserLang, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	if limit != nil {
		n := int(*limit)
		u.DailyMessageLimit = &n
	}
	return &u, nil
}
