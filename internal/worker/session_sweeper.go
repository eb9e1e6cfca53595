package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
)

// SessionPruner は非アクティブなセッションを破棄し、件数を報告する
type SessionPruner interface {
	Sweep(ctx context.Context, idle time.Duration) (int, error)
	Count(ctx context.Context) (int, error)
}

// SessionSweeper は一定時間操作のない選択セッションを定期的に破棄するワーカー
// 破棄されたセッションの選択は予約されず、在庫にも影響しない
type SessionSweeper struct {
	store    SessionPruner
	interval time.Duration
	idleTTL  time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func NewSessionSweeper(store SessionPruner, interval, idleTTL time.Duration) *SessionSweeper {
	return &SessionSweeper{
		store:    store,
		interval: interval,
		idleTTL:  idleTTL,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start はスイーパーを開始する（ブロックする）
func (s *SessionSweeper) Start(ctx context.Context) {
	logger.Info("セッションスイーパー開始",
		zap.Duration("interval", s.interval),
		zap.Duration("idle_ttl", s.idleTTL),
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.doneCh)

	for {
		select {
		case <-ctx.Done():
			logger.Info("セッションスイーパー停止（コンテキストキャンセル）")
			return
		case <-s.stopCh:
			logger.Info("セッションスイーパー停止（シグナル受信）")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// Stop はスイーパーを停止し、終了を待つ
func (s *SessionSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	log := logger.Get()

	removed, err := s.store.Sweep(ctx, s.idleTTL)
	if err != nil {
		log.Error("セッションの破棄に失敗", zap.Error(err))
		return
	}
	if removed > 0 {
		log.Info("非アクティブなセッションを破棄", zap.Int("count", removed))
	}

	active, err := s.store.Count(ctx)
	if err != nil {
		log.Warn("セッション数の取得に失敗", zap.Error(err))
		return
	}
	if m := metrics.Get(); m != nil {
		m.ActiveSessions.Set(float64(active))
	}
}
