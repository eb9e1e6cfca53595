package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/transaction"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

type sectionRow struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type rowAvailabilityRow struct {
	Number     int `db:"row_number"`
	TotalSeats int `db:"total_seats"`
	FreeSeats  int `db:"free_seats"`
}

type seatRow struct {
	Number   int    `db:"seat_number"`
	BookedBy *int64 `db:"booked_by"`
}

type seatRefRow struct {
	Section string `db:"section"`
	Row     int    `db:"row_number"`
	Seat    int    `db:"seat_number"`
}

// VenueRepository は座席在庫の PostgreSQL 実装
// 予約・解放はいずれも単一の条件付き UPDATE で、更新件数により競合を判定する
type VenueRepository struct{ db *sqlx.DB }

func NewVenueRepository(db *sqlx.DB) *VenueRepository { return &VenueRepository{db: db} }

func (r *VenueRepository) ListSections(ctx context.Context) ([]venue.Section, error) {
	var rows []sectionRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT id, name FROM sections ORDER BY name`); err != nil {
		return nil, fmt.Errorf("区画一覧取得に失敗: %w", err)
	}
	sections := make([]venue.Section, len(rows))
	for i, row := range rows {
		sections[i] = venue.Section{ID: row.ID, Name: row.Name}
	}
	return sections, nil
}

func (r *VenueRepository) ListRows(ctx context.Context, section string) ([]venue.RowAvailability, error) {
	query := `
		SELECT r.row_number,
		       COUNT(s.id) AS total_seats,
		       COUNT(s.id) FILTER (WHERE NOT s.is_booked) AS free_seats
		FROM rows r
		JOIN sections sec ON sec.id = r.section_id
		LEFT JOIN seats s ON s.row_id = r.id
		WHERE sec.name = $1
		GROUP BY r.row_number
		ORDER BY r.row_number`
	var rows []rowAvailabilityRow
	if err := r.db.SelectContext(ctx, &rows, query, section); err != nil {
		return nil, fmt.Errorf("列一覧取得に失敗: %w", err)
	}
	out := make([]venue.RowAvailability, len(rows))
	for i, row := range rows {
		out[i] = venue.RowAvailability{Number: row.Number, TotalSeats: row.TotalSeats, FreeSeats: row.FreeSeats}
	}
	return out, nil
}

func (r *VenueRepository) ListSeats(ctx context.Context, section string, row int) ([]venue.Seat, error) {
	query := `
		SELECT s.seat_number, s.booked_by
		FROM seats s
		JOIN rows r ON r.id = s.row_id
		JOIN sections sec ON sec.id = r.section_id
		WHERE sec.name = $1 AND r.row_number = $2
		ORDER BY s.seat_number`
	var rows []seatRow
	if err := r.db.SelectContext(ctx, &rows, query, section, row); err != nil {
		return nil, fmt.Errorf("座席一覧取得に失敗: %w", err)
	}
	seats := make([]venue.Seat, len(rows))
	for i, se := range rows {
		seats[i] = venue.Seat{Number: se.Number, BookedBy: se.BookedBy}
	}
	return seats, nil
}

func (r *VenueRepository) TryBook(ctx context.Context, tx transaction.Tx, ref venue.SeatRef, userID int64) error {
	sqlxTx, err := UnwrapTx(tx)
	if err != nil {
		return err
	}
	query := `
		UPDATE seats s
		SET is_booked = TRUE, booked_by = $4, booked_at = NOW()
		FROM rows r, sections sec
		WHERE s.row_id = r.id AND r.section_id = sec.id
		  AND sec.name = $1 AND r.row_number = $2 AND s.seat_number = $3
		  AND s.is_booked = FALSE`
	result, err := sqlxTx.ExecContext(ctx, query, ref.Section, ref.Row, ref.Seat, userID)
	if err != nil {
		if lostLockRace(err) {
			// 他の確定と競り負けた。トランザクションは中断済みなので競合として扱う
			return fmt.Errorf("%w: %v", venue.ErrSeatAlreadyBooked, err)
		}
		return fmt.Errorf("座席予約に失敗: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("座席予約の結果取得に失敗: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// 更新0件は「予約済み」か「存在しない座席」のどちらか
	var exists bool
	err = sqlxTx.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1
			FROM seats s
			JOIN rows r ON r.id = s.row_id
			JOIN sections sec ON sec.id = r.section_id
			WHERE sec.name = $1 AND r.row_number = $2 AND s.seat_number = $3
		)`, ref.Section, ref.Row, ref.Seat)
	if err != nil {
		return fmt.Errorf("座席の存在確認に失敗: %w", err)
	}
	if !exists {
		return venue.ErrSeatNotFound
	}
	return venue.ErrSeatAlreadyBooked
}

// lostLockRace は Postgres がロック競合でトランザクションを中断したかを返す
func lostLockRace(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqDeadlockDetected || pqErr.Code == pqSerializationFailure
}

func (r *VenueRepository) TryRelease(ctx context.Context, ref venue.SeatRef, userID int64) error {
	query := `
		UPDATE seats s
		SET is_booked = FALSE, booked_by = NULL, booked_at = NULL
		FROM rows r, sections sec
		WHERE s.row_id = r.id AND r.section_id = sec.id
		  AND sec.name = $1 AND r.row_number = $2 AND s.seat_number = $3
		  AND s.booked_by = $4`
	result, err := r.db.ExecContext(ctx, query, ref.Section, ref.Row, ref.Seat, userID)
	if err != nil {
		return fmt.Errorf("座席解放に失敗: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("座席解放の結果取得に失敗: %w", err)
	}
	if affected != 1 {
		return venue.ErrSeatNotOwned
	}
	return nil
}

func (r *VenueRepository) ListOwnedSeats(ctx context.Context, userID int64) ([]venue.SeatRef, error) {
	query := `
		SELECT sec.name AS section, r.row_number, s.seat_number
		FROM seats s
		JOIN rows r ON r.id = s.row_id
		JOIN sections sec ON sec.id = r.section_id
		WHERE s.booked_by = $1
		ORDER BY sec.name, r.row_number, s.seat_number`
	var rows []seatRefRow
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("予約座席取得に失敗: %w", err)
	}
	refs := make([]venue.SeatRef, len(rows))
	for i, row := range rows {
		refs[i] = venue.SeatRef{Section: row.Section, Row: row.Row, Seat: row.Seat}
	}
	return refs, nil
}

var _ venue.Repository = (*VenueRepository)(nil)

// EnsureRow は区画・列と 1..seats 番の座席を作成する（既存のものはそのまま）
// 会場の初期データ投入やテストで使う
func (r *VenueRepository) EnsureRow(ctx context.Context, section string, row, seats int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback()

	var sectionID int64
	err = tx.GetContext(ctx, &sectionID, `
		INSERT INTO sections (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, section)
	if err != nil {
		return fmt.Errorf("区画作成に失敗: %w", err)
	}

	var rowID int64
	err = tx.GetContext(ctx, &rowID, `
		INSERT INTO rows (section_id, row_number) VALUES ($1, $2)
		ON CONFLICT (section_id, row_number) DO UPDATE SET row_number = EXCLUDED.row_number
		RETURNING id`, sectionID, row)
	if err != nil {
		return fmt.Errorf("列作成に失敗: %w", err)
	}

	numbers := make([]int64, seats)
	for i := range numbers {
		numbers[i] = int64(i + 1)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO seats (row_id, seat_number)
		SELECT $1, unnest($2::int[])
		ON CONFLICT (row_id, seat_number) DO NOTHING`, rowID, pq.Array(numbers))
	if err != nil {
		return fmt.Errorf("座席作成に失敗: %w", err)
	}
	return tx.Commit()
}
