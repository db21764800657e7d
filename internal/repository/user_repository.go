package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tutorlink/session-core/internal/domain"
)

// UserRepository defines persistence access for principals and their links.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	TouchLastActive(ctx context.Context, id string, at time.Time) error
	// ListLinked returns the users the principal may message: a teacher's
	// students or a student's teachers.
	ListLinked(ctx context.Context, principal domain.Principal) ([]domain.User, error)
	Link(ctx context.Context, teacherID, studentID string) error
}

type userRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pool: pool}
}

const userColumns = `id, email, password_hash, role, first_name, last_name, last_active, created_at, updated_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.FirstName,
		&user.LastName,
		&user.LastActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (email, password_hash, role, first_name, last_name)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		user.Email,
		user.PasswordHash,
		user.Role,
		user.FirstName,
		user.LastName,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapUserErr("create user", err)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapUserErr("get user", err)
	}
	return user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		return nil, mapUserErr("get user by email", err)
	}
	return user, nil
}

func (r *userRepository) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE users SET last_active=$1, updated_at=NOW() WHERE id=$2`
	cmd, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return mapUserErr("touch last active", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *userRepository) ListLinked(ctx context.Context, principal domain.Principal) ([]domain.User, error) {
	var query string
	switch principal.Role {
	case domain.RoleTeacher:
		query = `
        SELECT u.id, u.email, u.password_hash, u.role, u.first_name, u.last_name, u.last_active, u.created_at, u.updated_at
        FROM teacher_students ts JOIN users u ON u.id = ts.student_id
        WHERE ts.teacher_id=$1
        ORDER BY u.first_name, u.last_name, u.email`
	case domain.RoleStudent:
		query = `
        SELECT u.id, u.email, u.password_hash, u.role, u.first_name, u.last_name, u.last_active, u.created_at, u.updated_at
        FROM teacher_students ts JOIN users u ON u.id = ts.teacher_id
        WHERE ts.student_id=$1
        ORDER BY u.first_name, u.last_name, u.email`
	default:
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, query, principal.ID)
	if err != nil {
		return nil, mapUserErr("list linked users", err)
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, mapUserErr("scan linked user", err)
		}
		result = append(result, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, mapUserErr("list linked users", err)
	}
	return result, nil
}

func (r *userRepository) Link(ctx context.Context, teacherID, studentID string) error {
	const query = `
        INSERT INTO teacher_students (teacher_id, student_id)
        VALUES ($1, $2)
        ON CONFLICT DO NOTHING`
	_, err := r.pool.Exec(ctx, query, teacherID, studentID)
	return mapUserErr("link users", err)
}
