package application

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
)

// キャンセルフロー
// 区画・列の一覧は常にストレージ上の所有状況から導出し、セッションには保持しない

func (s *BookingService) startCancel(ctx context.Context, actor Actor, sess *session.Session) (*Reply, error) {
	owned, err := s.ownedSeats(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		sess.Clear()
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		return &Reply{Kind: ReplyNoBookings}, nil
	}

	sess.StartCancel()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyCancelSections, Sections: ownedSections(owned), Bookings: owned}, nil
}

func (s *BookingService) cancelSelectSection(ctx context.Context, actor Actor, sess *session.Session, section string) (*Reply, error) {
	if err := requireStep(sess, session.StepCancelSelectSection, session.StepCancelSelectRow, session.StepCancelSelectSeat); err != nil {
		return nil, err
	}
	owned, err := s.ownedSeats(ctx, actor)
	if err != nil {
		return nil, err
	}
	rows := ownedRows(owned, section)
	if len(rows) == 0 {
		return nil, venue.ErrSectionNotFound
	}

	sess.Section = section
	sess.Row = 0
	sess.Step = session.StepCancelSelectRow
	sess.Touch()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyCancelRows, Section: section, RowNumbers: rows, Pending: sess.PendingSeats()}, nil
}

func (s *BookingService) cancelSelectRow(ctx context.Context, actor Actor, sess *session.Session, section string, row int) (*Reply, error) {
	if err := requireStep(sess, session.StepCancelSelectRow, session.StepCancelSelectSeat); err != nil {
		return nil, err
	}
	if sess.Section != section {
		return nil, session.ErrUnexpectedStep
	}
	owned, err := s.ownedSeats(ctx, actor)
	if err != nil {
		return nil, err
	}
	options := cancelOptions(owned, sess, section, row)
	if len(options) == 0 {
		return nil, venue.ErrRowNotFound
	}

	sess.Row = row
	sess.Step = session.StepCancelSelectSeat
	sess.Touch()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyCancelSeats, Section: section, Row: row, Seats: options, Pending: sess.PendingSeats()}, nil
}

func (s *BookingService) cancelToggleSeat(ctx context.Context, actor Actor, sess *session.Session, ref venue.SeatRef) (*Reply, error) {
	if err := requireStep(sess, session.StepCancelSelectSeat); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if !ref.InRow(sess.Section, sess.Row) {
		return nil, session.ErrUnexpectedStep
	}
	owned, err := s.ownedSeats(ctx, actor)
	if err != nil {
		return nil, err
	}

	// 自分の予約でない座席は解放対象にできない
	result := sess.Toggle(ref, !containsRef(owned, ref))
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	return &Reply{
		Kind:    ReplyCancelSeats,
		Section: ref.Section,
		Row:     ref.Row,
		Seats:   cancelOptions(owned, sess, ref.Section, ref.Row),
		Pending: sess.PendingSeats(),
		Toggle:  &result,
	}, nil
}

func (s *BookingService) backToCancelRows(ctx context.Context, actor Actor, sess *session.Session, section string) (*Reply, error) {
	if err := requireStep(sess, session.StepCancelSelectSeat); err != nil {
		return nil, err
	}
	if sess.Section != section {
		return nil, session.ErrUnexpectedStep
	}
	owned, err := s.ownedSeats(ctx, actor)
	if err != nil {
		return nil, err
	}

	sess.Row = 0
	sess.Step = session.StepCancelSelectRow
	sess.Touch()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyCancelRows, Section: section, RowNumbers: ownedRows(owned, section), Pending: sess.PendingSeats()}, nil
}

// confirmCancel は選択中の座席を順に解放し、最初に失敗した座席で停止する
// 解放は座席ごとの条件付き更新で、トランザクションにはまとめない
func (s *BookingService) confirmCancel(ctx context.Context, actor Actor, sess *session.Session) (*Reply, error) {
	if err := requireStep(sess, session.StepCancelSelectSection, session.StepCancelSelectRow, session.StepCancelSelectSeat); err != nil {
		return nil, err
	}
	if len(sess.Pending) == 0 {
		return nil, session.ErrEmptySelection
	}

	pending := sess.PendingSeats()
	userID, found, err := s.lookupUserID(ctx, actor.ExternalID)
	if err != nil {
		return nil, err
	}

	released := make([]venue.SeatRef, 0, len(pending))
	var failed *venue.SeatRef
	for _, ref := range pending {
		if !found {
			f := ref
			failed = &f
			break
		}
		err := s.inventory.TryRelease(ctx, ref, userID)
		if err == nil {
			released = append(released, ref)
			continue
		}
		if errors.Is(err, venue.ErrSeatNotOwned) {
			f := ref
			failed = &f
			break
		}

		// ストレージ障害：解放済みの座席だけ選択から外し、残りは再試行できるようにする
		for _, r := range released {
			sess.Remove(r)
		}
		if saveErr := s.save(ctx, sess); saveErr != nil {
			logger.Warn("キャンセル失敗後のセッション保存に失敗", zap.Error(saveErr))
		}
		s.finishCancel(ctx, actor, userID, released, "error")
		return nil, fmt.Errorf("座席解放に失敗 (%s): %w", ref, err)
	}

	sess.Clear()
	if err := s.save(ctx, sess); err != nil {
		logger.ForConversation(actor.ChatID, actor.ExternalID).Warn("キャンセル後のセッション保存に失敗", zap.Error(err))
	}

	if failed != nil {
		s.finishCancel(ctx, actor, userID, released, "partial")
		return &Reply{Kind: ReplyCancelPartial, Affected: released, Failed: failed}, nil
	}
	s.finishCancel(ctx, actor, userID, released, "success")
	return &Reply{Kind: ReplyCancelled, Affected: released}, nil
}

func (s *BookingService) finishCancel(ctx context.Context, actor Actor, userID int64, released []venue.SeatRef, status string) {
	if m := metrics.Get(); m != nil {
		m.CancellationsTotal.WithLabelValues(status).Inc()
		m.SeatsTotal.WithLabelValues("release").Add(float64(len(released)))
	}
	if len(released) == 0 {
		return
	}
	s.publish(ctx, venue.NewBookingEvent(venue.EventBookingCancelled, userID, actor.ExternalID, released))
	logger.ForConversation(actor.ChatID, actor.ExternalID).Info("予約キャンセル",
		zap.String("status", status),
		zap.Int("seats", len(released)),
	)
}

// ownedSections は予約のある区画名を出現順に重複なく返す
func ownedSections(owned []venue.SeatRef) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ref := range owned {
		if !seen[ref.Section] {
			seen[ref.Section] = true
			out = append(out, ref.Section)
		}
	}
	return out
}

func ownedRows(owned []venue.SeatRef, section string) []int {
	seen := make(map[int]bool)
	var out []int
	for _, ref := range owned {
		if ref.Section == section && !seen[ref.Row] {
			seen[ref.Row] = true
			out = append(out, ref.Row)
		}
	}
	sort.Ints(out)
	return out
}

func cancelOptions(owned []venue.SeatRef, sess *session.Session, section string, row int) []SeatOption {
	var out []SeatOption
	for _, ref := range owned {
		if !ref.InRow(section, row) {
			continue
		}
		out = append(out, SeatOption{
			Number:  ref.Seat,
			Pending: sess.Contains(ref),
			Owned:   true,
			Taken:   true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func containsRef(refs []venue.SeatRef, ref venue.SeatRef) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}
