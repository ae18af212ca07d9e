// Package telegram implements the chat transport over the Telegram Bot API:
// long-polling update intake, outbound keyboards, an inline date picker and
// attachment downloads.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Service is the Telegram implementation of the messaging transport.
type Service struct {
	bot        *tgbotapi.BotAPI
	events     chan models.Event
	httpClient *http.Client

	updateTimeout int
}

// Option configures the Telegram service.
type Option func(*Service)

// WithUpdateTimeout sets the long-poll timeout in seconds.
func WithUpdateTimeout(seconds int) Option {
	return func(s *Service) { s.updateTimeout = seconds }
}

// WithDebug enables Bot API request logging.
func WithDebug() Option {
	return func(s *Service) { s.bot.Debug = true }
}

// NewService authenticates against the Bot API and prepares the transport.
func NewService(token string, opts ...Option) (*Service, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate with Telegram: %w", err)
	}
	s := &Service{
		bot:           bot,
		events:        make(chan models.Event, 128),
		httpClient:    &http.Client{Timeout: 60 * time.Second},
		updateTimeout: 30,
	}
	for _, opt := range opts {
		opt(s)
	}
	slog.Info("telegram.NewService: authenticated", "username", bot.Self.UserName)
	return s, nil
}

// Start begins long-polling for updates and publishing them as events.
func (s *Service) Start(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = s.updateTimeout
	updates := s.bot.GetUpdatesChan(cfg)
	go s.receiveUpdates(ctx, updates)
	return nil
}

// Stop halts update polling; the event channel closes once the update stream
// drains.
func (s *Service) Stop() error {
	s.bot.StopReceivingUpdates()
	return nil
}

// Events returns the inbound event channel.
func (s *Service) Events() <-chan models.Event { return s.events }

func (s *Service) receiveUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) {
	defer close(s.events)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if ev, deliver := s.convertUpdate(update); deliver {
				select {
				case s.events <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// convertUpdate maps one Bot API update to an inbound event. Calendar
// navigation is resolved inside the transport and produces no event.
func (s *Service) convertUpdate(update tgbotapi.Update) (models.Event, bool) {
	if update.CallbackQuery != nil {
		return s.handleCallback(update.CallbackQuery)
	}
	msg := update.Message
	if msg == nil || msg.From == nil {
		return models.Event{}, false
	}

	ev := models.Event{
		ChatID:   msg.Chat.ID,
		SenderID: msg.From.ID,
		Username: msg.From.UserName,
		Time:     int64(msg.Date),
	}

	switch {
	case msg.IsCommand():
		ev.Kind = models.EventCommand
		ev.Text = msg.Text
	case msg.Contact != nil:
		ev.Kind = models.EventContact
		ev.Contact = &models.Contact{
			PhoneNumber: msg.Contact.PhoneNumber,
			OwnerID:     msg.Contact.UserID,
		}
	case msg.Document != nil:
		ev.Kind = models.EventDocument
		ev.File = &models.FileRef{
			ID:       msg.Document.FileID,
			Name:     msg.Document.FileName,
			MimeType: msg.Document.MimeType,
		}
	case len(msg.Photo) > 0:
		// The last entry is the largest rendition.
		photo := msg.Photo[len(msg.Photo)-1]
		ev.Kind = models.EventPhoto
		ev.File = &models.FileRef{ID: photo.FileID, MimeType: "image/jpeg"}
	case msg.Voice != nil || msg.VideoNote != nil || msg.Audio != nil:
		ev.Kind = models.EventVoice
	default:
		ev.Kind = models.EventText
		ev.Text = msg.Text
	}
	return ev, true
}

func (s *Service) handleCallback(cq *tgbotapi.CallbackQuery) (models.Event, bool) {
	// Always answer so the client stops its spinner.
	if _, err := s.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		slog.Warn("Service.handleCallback: answer failed", "error", err)
	}
	cb, ok := parseCalendarCallback(cq.Data)
	if !ok || cq.Message == nil {
		return models.Event{}, false
	}

	ev := models.Event{
		ChatID:   cq.Message.Chat.ID,
		SenderID: cq.From.ID,
		Username: cq.From.UserName,
		Time:     time.Now().Unix(),
	}

	switch cb.Action {
	case calActionDay:
		date := time.Date(cb.Year, cb.Month, cb.Day, 0, 0, 0, 0, time.UTC)
		ev.Kind = models.EventCalendar
		ev.CalendarDate = &date
		return ev, true
	case calActionBack:
		// Surface inline back presses as the reserved back label so the
		// flow treats them like any back button.
		ev.Kind = models.EventText
		ev.Text = "⬅️ Назад"
		return ev, true
	case calActionPrev, calActionNext:
		delta := -1
		if cb.Action == calActionNext {
			delta = 1
		}
		year, month := shiftMonth(cb.Year, cb.Month, delta)
		edit := tgbotapi.NewEditMessageReplyMarkup(
			cq.Message.Chat.ID, cq.Message.MessageID, monthKeyboard(year, month, true))
		if _, err := s.bot.Request(edit); err != nil {
			slog.Warn("Service.handleCallback: month navigation failed", "error", err)
		}
		return models.Event{}, false
	default:
		return models.Event{}, false
	}
}

func (s *Service) SendMessage(ctx context.Context, chatID int64, body string) error {
	msg := tgbotapi.NewMessage(chatID, body)
	return s.send(msg)
}

func (s *Service) SendPrompt(ctx context.Context, chatID int64, body string, rows [][]string) error {
	msg := tgbotapi.NewMessage(chatID, body)
	if len(rows) == 0 {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	} else {
		msg.ReplyMarkup = replyKeyboard(rows)
	}
	return s.send(msg)
}

func (s *Service) RequestContact(ctx context.Context, chatID int64, body string, allowBack bool) error {
	rows := [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButtonContact("📱 Отправить номер")},
	}
	if allowBack {
		rows = append(rows, []tgbotapi.KeyboardButton{tgbotapi.NewKeyboardButton("⬅️ Назад")})
	}
	msg := tgbotapi.NewMessage(chatID, body)
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	msg.ReplyMarkup = keyboard
	return s.send(msg)
}

func (s *Service) RequestCalendar(ctx context.Context, chatID int64, body string, allowBack bool) error {
	now := time.Now()
	msg := tgbotapi.NewMessage(chatID, body)
	msg.ReplyMarkup = monthKeyboard(now.Year(), now.Month(), allowBack)
	return s.send(msg)
}

func (s *Service) send(msg tgbotapi.MessageConfig) error {
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", msg.ChatID, err)
	}
	return nil
}

func replyKeyboard(rows [][]string) tgbotapi.ReplyKeyboardMarkup {
	var buttonRows [][]tgbotapi.KeyboardButton
	for _, row := range rows {
		var buttons []tgbotapi.KeyboardButton
		for _, label := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
		}
		buttonRows = append(buttonRows, buttons)
	}
	keyboard := tgbotapi.NewReplyKeyboard(buttonRows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

// FetchFile downloads the content behind an uploaded file reference.
func (s *Service) FetchFile(ctx context.Context, ref models.FileRef) (io.ReadCloser, error) {
	file, err := s.bot.GetFile(tgbotapi.FileConfig{FileID: ref.ID})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file %s: %w", ref.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(s.bot.Token), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request for %s: %w", ref.ID, err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file %s: %w", ref.ID, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to download file %s: unexpected status %d", ref.ID, resp.StatusCode)
	}
	return resp.Body, nil
}
