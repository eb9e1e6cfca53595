package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/transaction"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/user"
)

const (
	pqUniqueViolation     = "23505"
	phoneUniqueConstraint = "users_phone_number_key"
)

type userRow struct {
	ID          int64  `db:"id"`
	ExternalID  int64  `db:"external_id"`
	FullName    string `db:"full_name"`
	PhoneNumber string `db:"phone_number"`
}

func (r *userRow) toEntity() *user.User {
	return &user.User{ID: r.ID, ExternalID: r.ExternalID, FullName: r.FullName, PhoneNumber: r.PhoneNumber}
}

type UserRepository struct{ db *sqlx.DB }

func NewUserRepository(db *sqlx.DB) *UserRepository { return &UserRepository{db: db} }

// Upsert は external_id をキーにユーザーを登録し、既存なら氏名と電話番号を更新する
func (r *UserRepository) Upsert(ctx context.Context, tx transaction.Tx, u *user.User) error {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO users (external_id, full_name, phone_number)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE
		SET full_name = EXCLUDED.full_name, phone_number = EXCLUDED.phone_number, updated_at = NOW()
		RETURNING id`
	if err := sqlxTx.QueryRowxContext(ctx, query, u.ExternalID, u.FullName, u.PhoneNumber).Scan(&u.ID); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation && pqErr.Constraint == phoneUniqueConstraint {
			return user.ErrPhoneNumberTaken
		}
		return fmt.Errorf("ユーザー登録に失敗: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByExternalID(ctx context.Context, externalID int64) (*user.User, error) {
	query := `SELECT id, external_id, full_name, phone_number FROM users WHERE external_id = $1`
	var row userRow
	if err := r.db.GetContext(ctx, &row, query, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	return row.toEntity(), nil
}

var _ user.Repository = (*UserRepository)(nil)
