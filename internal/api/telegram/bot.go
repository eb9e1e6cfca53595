package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-seat-booking-bot/internal/application"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/user"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/logger"
	"github.com/sanosuguru/go-seat-booking-bot/internal/pkg/metrics"
)

// API は Bot が使う Telegram Bot API の操作（*tgbotapi.BotAPI が満たす）
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// BookingHandler は1ターン分の入力を処理する
type BookingHandler interface {
	Handle(ctx context.Context, actor application.Actor, action application.Action) (*application.Reply, error)
}

const (
	welcomeText = "座席予約ボットです。\n/book 座席を予約する\n/mybookings 予約を確認する\n/cancel 予約をキャンセルする\n/abort 選択を中止する"
	failureText = "処理に失敗しました。しばらくしてからもう一度お試しください。"
	unknownText = "コマンドが分かりません。/start で使い方を表示します。"
)

// Bot はアップデートを状態機械のアクションに変換し、応答を描画する
type Bot struct {
	api          API
	handler      BookingHandler
	pollTimeout  int
	nameMinWords int
}

func NewBot(api API, handler BookingHandler, pollTimeout, nameMinWords int) *Bot {
	if nameMinWords <= 0 {
		nameMinWords = user.DefaultNameMinWords
	}
	return &Bot{
		api:          api,
		handler:      handler,
		pollTimeout:  pollTimeout,
		nameMinWords: nameMinWords,
	}
}

// Run はロングポーリングでアップデートを受信し、ctx がキャンセルされるまで処理する
// アップデートは受信順に1件ずつ処理する
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(cfg)
	defer b.api.StopReceivingUpdates()

	logger.Info("ボットを開始しました", zap.Int("poll_timeout", b.pollTimeout))
	for {
		select {
		case <-ctx.Done():
			logger.Info("ボットを停止しました")
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("アップデートの受信が終了しました")
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate は1件のアップデートを処理する
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.countUpdate("callback")
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		b.countUpdate("command")
		b.handleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Text != "":
		b.countUpdate("text")
		b.handleText(ctx, update.Message)
	default:
		b.countUpdate("other")
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	var action application.Action
	switch msg.Command() {
	case "start", "help":
		b.sendText(msg.Chat.ID, welcomeText)
		return
	case "book":
		action = application.StartBooking{}
	case "mybookings":
		action = application.ShowBookings{}
	case "cancel":
		action = application.StartCancel{}
	case "abort":
		action = application.Abort{}
	default:
		b.sendText(msg.Chat.ID, unknownText)
		return
	}
	b.dispatch(ctx, actorOf(msg), action, nil)
}

func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	b.dispatch(ctx, actorOf(msg), application.SubmitText{Text: strings.TrimSpace(msg.Text)}, nil)
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.Message == nil || cq.From == nil {
		b.answer(cq.ID, "")
		return
	}
	action, err := DecodeCallback(cq.Data)
	if err != nil {
		logger.Warn("不正なコールバック", zap.String("data", cq.Data), zap.Error(err))
		b.answer(cq.ID, "このボタンは使えません")
		return
	}
	actor := application.Actor{ChatID: cq.Message.Chat.ID, ExternalID: cq.From.ID}
	b.dispatch(ctx, actor, action, cq)
}

// dispatch はアクションを処理して応答を描画する
// cq が nil でなければ、ボタンのあるメッセージを編集する
func (b *Bot) dispatch(ctx context.Context, actor application.Actor, action application.Action, cq *tgbotapi.CallbackQuery) {
	reply, err := b.handler.Handle(ctx, actor, action)
	if err != nil {
		text := b.errorText(err)
		if !application.IsInputError(err) {
			logger.ForConversation(actor.ChatID, actor.ExternalID).Error("アップデート処理に失敗",
				zap.String("action", action.Name()),
				zap.Error(err),
			)
		}
		if cq != nil {
			b.answer(cq.ID, text)
			return
		}
		b.sendText(actor.ChatID, text)
		return
	}

	v, err := render(reply)
	if err != nil {
		logger.Error("応答の描画に失敗", zap.String("kind", string(reply.Kind)), zap.Error(err))
		b.sendText(actor.ChatID, failureText)
		if cq != nil {
			b.answer(cq.ID, "")
		}
		return
	}

	if cq == nil {
		b.send(actor.ChatID, v)
		return
	}

	b.answer(cq.ID, v.Notice)
	messageID := cq.Message.MessageID
	if v.Replace {
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(actor.ChatID, messageID)); err != nil {
			logger.Warn("選択メッセージの削除に失敗", zap.Error(err))
		}
		b.send(actor.ChatID, v)
		return
	}
	b.edit(actor.ChatID, messageID, v)
}

// errorText は入力エラーを利用者向けの文面に変換する
func (b *Bot) errorText(err error) string {
	switch {
	case errors.Is(err, user.ErrInvalidFullName):
		return fmt.Sprintf("氏名は%d語以上で入力してください。", b.nameMinWords)
	case errors.Is(err, user.ErrInvalidPhoneNumber):
		return "電話番号は12桁の数字で入力してください。先頭の + は省略できます（例: +375291234567）。"
	case errors.Is(err, session.ErrNoActiveSession):
		return "進行中の選択がありません。/book で予約を始めてください。"
	case errors.Is(err, session.ErrBusy):
		return "前の操作を処理中です。少し待ってからもう一度お試しください。"
	case application.IsInputError(err):
		return unwrapMessage(err)
	}
	return failureText
}

// unwrapMessage は最も内側のエラーの文面を返す
func unwrapMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func (b *Bot) send(chatID int64, v *view) {
	msg := tgbotapi.NewMessage(chatID, v.Text)
	if v.Markup != nil {
		msg.ReplyMarkup = *v.Markup
	}
	if _, err := b.api.Send(msg); err != nil {
		logger.Error("メッセージ送信に失敗", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(chatID, &view{Text: text})
}

func (b *Bot) edit(chatID int64, messageID int, v *view) {
	var edit tgbotapi.EditMessageTextConfig
	if v.Markup != nil {
		edit = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, v.Text, *v.Markup)
	} else {
		edit = tgbotapi.NewEditMessageText(chatID, messageID, v.Text)
	}
	if _, err := b.api.Request(edit); err != nil && !isNotModified(err) {
		logger.Error("メッセージ編集に失敗", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) answer(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		logger.Warn("コールバック応答に失敗", zap.Error(err))
	}
}

func (b *Bot) countUpdate(kind string) {
	if m := metrics.Get(); m != nil {
		m.UpdatesTotal.WithLabelValues(kind).Inc()
	}
}

// 同じ内容で編集すると Telegram はエラーを返す
func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

func actorOf(msg *tgbotapi.Message) application.Actor {
	actor := application.Actor{ChatID: msg.Chat.ID}
	if msg.From != nil {
		actor.ExternalID = msg.From.ID
	}
	return actor
}
