package application

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/transaction"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/user"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
)

// TurnLocker は同一会話のターンを直列化する
// 取得できない場合は session.ErrBusy をラップしたエラーを返す
type TurnLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// BookingService は座席選択・予約・キャンセルの状態機械
// 利用者間の競合は在庫ストアの条件付き更新のみで解決し、ここではロックを持たない
type BookingService struct {
	txManager transaction.Manager
	inventory venue.Repository
	userRepo  user.Repository
	sessions  session.Store
	identity  *user.IdentityValidator
	locker    TurnLocker           // nil 可
	publisher venue.EventPublisher // nil 可
}

func NewBookingService(
	tm transaction.Manager,
	inv venue.Repository,
	ur user.Repository,
	ss session.Store,
	iv *user.IdentityValidator,
	locker TurnLocker,
	publisher venue.EventPublisher,
) *BookingService {
	if iv == nil {
		iv = user.NewIdentityValidator(user.DefaultNameMinWords)
	}
	return &BookingService{
		txManager: tm,
		inventory: inv,
		userRepo:  ur,
		sessions:  ss,
		identity:  iv,
		locker:    locker,
		publisher: publisher,
	}
}

// Handle は1ターン分の入力を処理する
// 入力エラー（IsInputError）の場合、セッションは変更されない。
// ストレージ障害の場合もセッションは保存されないため、直前のステップから再試行できる
func (s *BookingService) Handle(ctx context.Context, actor Actor, action Action) (*Reply, error) {
	start := time.Now()
	key := actor.SessionKey()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, key.String())
		if err != nil {
			s.observe(action, start, err)
			return nil, err
		}
		defer unlock()
	}

	sess, err := s.sessions.Get(ctx, key)
	if err != nil {
		err = fmt.Errorf("セッション取得に失敗: %w", err)
		s.observe(action, start, err)
		return nil, err
	}

	reply, err := s.dispatch(ctx, actor, sess, action)
	s.observe(action, start, err)
	if err != nil && !IsInputError(err) {
		logger.ForConversation(actor.ChatID, actor.ExternalID).Error("アクション処理に失敗",
			zap.String("action", action.Name()),
			zap.String("step", string(sess.Step)),
			zap.Error(err),
		)
	}
	return reply, err
}

// dispatch はアクションの種類で分岐し、各ハンドラが現在のステップを検証する
func (s *BookingService) dispatch(ctx context.Context, actor Actor, sess *session.Session, action Action) (*Reply, error) {
	switch a := action.(type) {
	case StartBooking:
		return s.startBooking(ctx, sess)
	case SelectSection:
		return s.selectSection(ctx, sess, a.Section)
	case SelectRow:
		return s.selectRow(ctx, actor, sess, a.Section, a.Row)
	case ToggleSeat:
		return s.toggleSeat(ctx, actor, sess, a.Seat)
	case BackToSections:
		return s.backToSections(ctx, sess)
	case BackToRows:
		return s.backToRows(ctx, sess, a.Section)
	case ConfirmSelection:
		return s.confirmSelection(ctx, sess)
	case SubmitText:
		return s.submitText(ctx, actor, sess, a.Text)
	case Abort:
		return s.abort(ctx, sess)
	case ShowBookings:
		return s.showBookings(ctx, actor)
	case StartCancel:
		return s.startCancel(ctx, actor, sess)
	case CancelSelectSection:
		return s.cancelSelectSection(ctx, actor, sess, a.Section)
	case CancelSelectRow:
		return s.cancelSelectRow(ctx, actor, sess, a.Section, a.Row)
	case CancelToggleSeat:
		return s.cancelToggleSeat(ctx, actor, sess, a.Seat)
	case BackToCancelRows:
		return s.backToCancelRows(ctx, actor, sess, a.Section)
	case ConfirmCancel:
		return s.confirmCancel(ctx, actor, sess)
	default:
		return nil, fmt.Errorf("未知のアクション: %T", action)
	}
}

func (s *BookingService) startBooking(ctx context.Context, sess *session.Session) (*Reply, error) {
	sections, err := s.sectionNames(ctx)
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		sess.Clear()
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		return &Reply{Kind: ReplyNoSections}, nil
	}

	sess.Start()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplySections, Sections: sections}, nil
}

func (s *BookingService) selectSection(ctx context.Context, sess *session.Session, section string) (*Reply, error) {
	if err := requireStep(sess, session.StepSelectSection); err != nil {
		return nil, err
	}
	rows, err := s.inventory.ListRows(ctx, section)
	if err != nil {
		return nil, fmt.Errorf("列一覧取得に失敗: %w", err)
	}
	if len(rows) == 0 {
		return nil, venue.ErrSectionNotFound
	}

	sess.Section = section
	sess.Row = 0
	sess.Step = session.StepSelectRow
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyRows, Section: section, Rows: rows, Pending: sess.PendingSeats()}, nil
}

func (s *BookingService) selectRow(ctx context.Context, actor Actor, sess *session.Session, section string, row int) (*Reply, error) {
	if err := requireStep(sess, session.StepSelectRow, session.StepSelectSeat); err != nil {
		return nil, err
	}
	if sess.Section == "" || sess.Section != section {
		return nil, session.ErrUnexpectedStep
	}

	options, err := s.seatOptions(ctx, actor, sess, section, row)
	if err != nil {
		return nil, err
	}

	sess.Row = row
	sess.Step = session.StepSelectSeat
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplySeats, Section: section, Row: row, Seats: options, Pending: sess.PendingSeats()}, nil
}

func (s *BookingService) toggleSeat(ctx context.Context, actor Actor, sess *session.Session, ref venue.SeatRef) (*Reply, error) {
	if err := requireStep(sess, session.StepSelectSeat); err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if !ref.InRow(sess.Section, sess.Row) {
		return nil, session.ErrUnexpectedStep
	}

	seats, userID, err := s.loadRow(ctx, actor, ref.Section, ref.Row)
	if err != nil {
		return nil, err
	}
	target, ok := findSeat(seats, ref.Seat)
	if !ok {
		return nil, venue.ErrSeatNotFound
	}

	// 自分の予約済み座席は再予約できない（no-op 通知）
	result := sess.Toggle(ref, target.IsOwnedBy(userID))
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}

	return &Reply{
		Kind:    ReplySeats,
		Section: ref.Section,
		Row:     ref.Row,
		Seats:   buildSeatOptions(seats, sess, ref.Section, ref.Row, userID),
		Pending: sess.PendingSeats(),
		Toggle:  &result,
	}, nil
}

func (s *BookingService) backToSections(ctx context.Context, sess *session.Session) (*Reply, error) {
	if err := requireStep(sess, session.StepSelectRow, session.StepSelectSeat); err != nil {
		return nil, err
	}
	sections, err := s.sectionNames(ctx)
	if err != nil {
		return nil, err
	}

	sess.Section = ""
	sess.Row = 0
	sess.Step = session.StepSelectSection
	sess.Touch()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplySections, Sections: sections, Pending: sess.PendingSeats()}, nil
}

func (s *BookingService) backToRows(ctx context.Context, sess *session.Session, section string) (*Reply, error) {
	if err := requireStep(sess, session.StepSelectSeat); err != nil {
		return nil, err
	}
	if sess.Section != section {
		return nil, session.ErrUnexpectedStep
	}
	rows, err := s.inventory.ListRows(ctx, section)
	if err != nil {
		return nil, fmt.Errorf("列一覧取得に失敗: %w", err)
	}

	sess.Row = 0
	sess.Step = session.StepSelectRow
	sess.Touch()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyRows, Section: section, Rows: rows, Pending: sess.PendingSeats()}, nil
}

func (s *BookingService) confirmSelection(ctx context.Context, sess *session.Session) (*Reply, error) {
	if err := requireStep(sess, session.StepSelectSection, session.StepSelectRow, session.StepSelectSeat); err != nil {
		return nil, err
	}
	if len(sess.Pending) == 0 {
		return nil, session.ErrEmptySelection
	}

	sess.Step = session.StepAwaitingFullName
	sess.Touch()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyPromptFullName, Pending: sess.PendingSeats(), NameMinWords: s.identity.NameMinWords()}, nil
}

func (s *BookingService) submitText(ctx context.Context, actor Actor, sess *session.Session, text string) (*Reply, error) {
	switch sess.Step {
	case session.StepAwaitingFullName:
		if err := s.identity.ValidateFullName(text); err != nil {
			return nil, err
		}
		sess.FullName = user.NormalizeFullName(text)
		sess.Step = session.StepAwaitingPhoneNumber
		sess.Touch()
		if err := s.save(ctx, sess); err != nil {
			return nil, err
		}
		return &Reply{Kind: ReplyPromptPhoneNumber, Pending: sess.PendingSeats()}, nil

	case session.StepAwaitingPhoneNumber:
		if err := s.identity.ValidatePhoneNumber(text); err != nil {
			s.countBooking("invalid_input")
			return nil, err
		}
		return s.commit(ctx, actor, sess, text)

	default:
		if sess.IsIdle() {
			return nil, session.ErrNoActiveSession
		}
		return nil, session.ErrUnexpectedStep
	}
}

// commit は利用者を upsert し、選択中の全座席を1トランザクションで予約する
// 1席でも取られていれば全体をロールバックし、その座席を名指しで返す（部分予約は残さない）
func (s *BookingService) commit(ctx context.Context, actor Actor, sess *session.Session, phone string) (*Reply, error) {
	if len(sess.Pending) == 0 {
		return nil, session.ErrEmptySelection
	}
	u := user.NewUser(actor.ExternalID, sess.FullName, phone)
	pending := sess.PendingSeats()

	// 交差した選択同士がデッドロックしないよう、選択順ではなく座席順に予約する
	lockOrder := slices.Clone(pending)
	slices.SortFunc(lockOrder, venue.CompareSeatRefs)

	err := transaction.Run(ctx, s.txManager, func(tx transaction.Tx) error {
		if err := s.userRepo.Upsert(ctx, tx, u); err != nil {
			return err
		}
		for _, ref := range lockOrder {
			if err := s.inventory.TryBook(ctx, tx, ref, u.ID); err != nil {
				if errors.Is(err, venue.ErrSeatAlreadyBooked) || errors.Is(err, venue.ErrSeatNotFound) {
					return &venue.SeatError{Seat: ref, Err: err}
				}
				return fmt.Errorf("座席予約に失敗 (%s): %w", ref, err)
			}
		}
		return nil
	})

	var seatErr *venue.SeatError
	switch {
	case err == nil:
	case errors.As(err, &seatErr):
		return s.commitConflict(ctx, sess, seatErr.Seat)
	case errors.Is(err, user.ErrPhoneNumberTaken):
		s.countBooking("invalid_input")
		return nil, err
	default:
		s.countBooking("error")
		return nil, fmt.Errorf("予約確定に失敗: %w", err)
	}

	sess.Clear()
	if err := s.save(ctx, sess); err != nil {
		// 予約自体は確定済みなので成功として返す
		logger.ForConversation(actor.ChatID, actor.ExternalID).Warn("予約確定後のセッション保存に失敗", zap.Error(err))
	}

	s.countBooking("success")
	if m := metrics.Get(); m != nil {
		m.SeatsTotal.WithLabelValues("book").Add(float64(len(pending)))
	}
	s.publish(ctx, venue.NewBookingEvent(venue.EventBookingCommitted, u.ID, actor.ExternalID, pending))

	logger.ForConversation(actor.ChatID, actor.ExternalID).Info("予約確定",
		zap.Int64("db_user_id", u.ID),
		zap.Int("seats", len(pending)),
	)
	return &Reply{Kind: ReplyBooked, Affected: pending}, nil
}

// commitConflict は競合した座席を選択から外し、代わりの座席を選べるよう区画選択へ戻す
// 残りの選択と入力済みの氏名は保持する
func (s *BookingService) commitConflict(ctx context.Context, sess *session.Session, lost venue.SeatRef) (*Reply, error) {
	s.countBooking("conflict")

	sess.Remove(lost)
	sess.Section = ""
	sess.Row = 0
	sess.Step = session.StepSelectSection
	sess.Touch()

	// 区画一覧が取れなくても、競合座席を外した選択は保存しておく
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	sections, err := s.sectionNames(ctx)
	if err != nil {
		return nil, err
	}

	failed := lost
	return &Reply{
		Kind:     ReplyBookingConflict,
		Failed:   &failed,
		Sections: sections,
		Pending:  sess.PendingSeats(),
	}, nil
}

func (s *BookingService) abort(ctx context.Context, sess *session.Session) (*Reply, error) {
	sess.Clear()
	if err := s.save(ctx, sess); err != nil {
		return nil, err
	}
	return &Reply{Kind: ReplyAborted}, nil
}

func (s *BookingService) showBookings(ctx context.Context, actor Actor) (*Reply, error) {
	owned, err := s.ownedSeats(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return &Reply{Kind: ReplyNoBookings}, nil
	}
	return &Reply{Kind: ReplyBookings, Bookings: owned}, nil
}

// === helpers ===

func requireStep(sess *session.Session, allowed ...session.Step) error {
	for _, st := range allowed {
		if sess.Step == st {
			return nil
		}
	}
	if sess.IsIdle() {
		return session.ErrNoActiveSession
	}
	return session.ErrUnexpectedStep
}

func (s *BookingService) save(ctx context.Context, sess *session.Session) error {
	if err := s.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("セッション保存に失敗: %w", err)
	}
	return nil
}

func (s *BookingService) sectionNames(ctx context.Context) ([]string, error) {
	sections, err := s.inventory.ListSections(ctx)
	if err != nil {
		return nil, fmt.Errorf("区画一覧取得に失敗: %w", err)
	}
	names := make([]string, len(sections))
	for i, sec := range sections {
		names[i] = sec.Name
	}
	return names, nil
}

// lookupUserID は外部IDに対応する users.id を返す。未登録なら 0, false
func (s *BookingService) lookupUserID(ctx context.Context, externalID int64) (int64, bool, error) {
	u, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}
	return u.ID, true, nil
}

func (s *BookingService) ownedSeats(ctx context.Context, actor Actor) ([]venue.SeatRef, error) {
	userID, ok, err := s.lookupUserID(ctx, actor.ExternalID)
	if err != nil || !ok {
		return nil, err
	}
	owned, err := s.inventory.ListOwnedSeats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("予約一覧取得に失敗: %w", err)
	}
	return owned, nil
}

func (s *BookingService) loadRow(ctx context.Context, actor Actor, section string, row int) ([]venue.Seat, int64, error) {
	seats, err := s.inventory.ListSeats(ctx, section, row)
	if err != nil {
		return nil, 0, fmt.Errorf("座席一覧取得に失敗: %w", err)
	}
	if len(seats) == 0 {
		return nil, 0, venue.ErrRowNotFound
	}
	userID, _, err := s.lookupUserID(ctx, actor.ExternalID)
	if err != nil {
		return nil, 0, err
	}
	return seats, userID, nil
}

func (s *BookingService) seatOptions(ctx context.Context, actor Actor, sess *session.Session, section string, row int) ([]SeatOption, error) {
	seats, userID, err := s.loadRow(ctx, actor, section, row)
	if err != nil {
		return nil, err
	}
	return buildSeatOptions(seats, sess, section, row, userID), nil
}

func buildSeatOptions(seats []venue.Seat, sess *session.Session, section string, row int, userID int64) []SeatOption {
	options := make([]SeatOption, len(seats))
	for i, se := range seats {
		options[i] = SeatOption{
			Number:  se.Number,
			Pending: sess.Contains(venue.SeatRef{Section: section, Row: row, Seat: se.Number}),
			Owned:   userID != 0 && se.IsOwnedBy(userID),
			Taken:   !se.IsFree(),
		}
	}
	return options
}

func findSeat(seats []venue.Seat, number int) (venue.Seat, bool) {
	for _, se := range seats {
		if se.Number == number {
			return se, true
		}
	}
	return venue.Seat{}, false
}

// publish はイベントを発行する。失敗はログに残すだけでターンは失敗させない
func (s *BookingService) publish(ctx context.Context, ev venue.BookingEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("予約イベントの発行に失敗",
			zap.String("type", string(ev.Type)),
			zap.Int64("db_user_id", ev.UserID),
			zap.Error(err),
		)
	}
}

func (s *BookingService) observe(action Action, start time.Time, err error) {
	m := metrics.Get()
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case IsInputError(err):
		outcome = "input_error"
	default:
		outcome = "error"
	}
	m.ActionsTotal.WithLabelValues(action.Name(), outcome).Inc()
	m.ActionDuration.WithLabelValues(action.Name()).Observe(time.Since(start).Seconds())
}

func (s *BookingService) countBooking(status string) {
	if m := metrics.Get(); m != nil {
		m.BookingsTotal.WithLabelValues(status).Inc()
	}
}
