package postgresrepo

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/corray333/backend-labs/payment/internal/dal/interfaces/iuserrepo"
	"github.com/corray333/backend-labs/payment/internal/dal/postgres"
	"github.com/corray333/backend-labs/payment/internal/service/models/user"
)

type PostgresUserRepository struct {
	conn postgres.Querier
}

func NewPostgresUserRepository(conn postgres.Querier) *PostgresUserRepository {
	return &PostgresUserRepository{
		conn: conn,
	}
}

// GetByID resolves customer contact info for payment intent creation.
func (r *PostgresUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	query, args, err := sq.Select("id", "email", "name", "phone").
		From("users").
		Where(sq.Eq{"id": id}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var (
		u     user.User
		phone *string
	)
	err = r.conn.QueryRow(ctx, query, args...).Scan(&u.ID, &u.Email, &u.Name, &phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, iuserrepo.ErrNotFound
		}

		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if phone != nil {
		u.Phone = *phone
	}

	return &u, nil
}
