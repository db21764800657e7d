package repository

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tutorlink/session-core/internal/domain"
)

const (
	pgUniqueViolation  = "23505"
	pgInvalidTextValue = "22P02"
)

// mapUserErr translates driver errors on the users table into domain errors.
func mapUserErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.ErrEmailTaken
		case pgInvalidTextValue:
			return domain.ErrUserNotFound
		}
	}
	return domain.Unavailable(op, err)
}
