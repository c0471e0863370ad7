// Package telegram adapts the Telegram bot API to the source capability.
// The bot-token transport has no interactive login, so the auth sub-protocol
// reports ErrAuthNotSupported; connectivity and channel posts are fully
// supported.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"sigrelay/internal/config"
	"sigrelay/internal/logger"
	"sigrelay/internal/model"
	"sigrelay/internal/source"

	tele "gopkg.in/telebot.v3"
)

type Source struct {
	cfg     config.SourceConfig
	backoff source.Backoff

	mu        sync.Mutex
	bot       *tele.Bot
	events    chan source.Event
	channels  map[string]model.Channel
	connected bool
	stopped   bool
}

func New(cfg config.SourceConfig) *Source {
	return &Source{
		cfg: cfg,
		backoff: source.Backoff{
			Base:        time.Duration(cfg.ReconnectBaseSeconds) * time.Second,
			Max:         time.Duration(cfg.ReconnectMaxSeconds) * time.Second,
			MaxAttempts: cfg.ReconnectMaxAttempts,
		},
		events:   make(chan source.Event, 256),
		channels: make(map[string]model.Channel),
	}
}

func (s *Source) Events() <-chan source.Event {
	return s.events
}

func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.emit(source.Event{Type: source.EventStatus, Status: source.StatusConnecting})

	bot, err := tele.NewBot(tele.Settings{
		Token:  s.cfg.BotToken,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		s.emit(source.Event{Type: source.EventStatus, Status: source.StatusDisconnected})
		return fmt.Errorf("create telegram bot: %w", err)
	}

	bot.Handle(tele.OnChannelPost, func(c tele.Context) error {
		s.handlePost(c.Message())
		return nil
	})
	bot.Handle(tele.OnText, func(c tele.Context) error {
		s.handlePost(c.Message())
		return nil
	})

	s.mu.Lock()
	s.bot = bot
	s.connected = true
	s.stopped = false
	s.mu.Unlock()

	go s.run(bot)
	return nil
}

// run supervises the long-poller, reconnecting with capped backoff. Only
// status transitions are surfaced to the consumer.
func (s *Source) run(bot *tele.Bot) {
	attempt := 0
	for {
		s.emit(source.Event{Type: source.EventStatus, Status: source.StatusConnected})
		bot.Start()

		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			s.emit(source.Event{Type: source.EventStatus, Status: source.StatusDisconnected})
			return
		}

		attempt++
		if s.backoff.Exhausted(attempt) {
			logger.Errorf("telegram source: reconnect attempts exhausted after %d tries", attempt-1)
			s.emit(source.Event{Type: source.EventStatus, Status: source.StatusDisconnected})
			return
		}
		delay := s.backoff.Delay(attempt)
		logger.Warnf("telegram source: poller stopped, reconnecting in %s", delay)
		s.emit(source.Event{Type: source.EventStatus, Status: source.StatusConnecting})
		time.Sleep(delay)
	}
}

func (s *Source) handlePost(msg *tele.Message) {
	if msg == nil || msg.Chat == nil {
		return
	}
	chanID := strconv.FormatInt(msg.Chat.ID, 10)
	s.rememberChannel(msg.Chat)

	sender := ""
	if msg.Sender != nil {
		sender = msg.Sender.Username
	}
	m := &model.Message{
		ChannelID:         chanID,
		ProviderMessageID: strconv.Itoa(msg.ID),
		Text:              msg.Text,
		Sender:            sender,
		Timestamp:         msg.Time(),
		IsRealtime:        true,
	}
	s.emit(source.Event{Type: source.EventMessage, Message: m})
}

func (s *Source) rememberChannel(chat *tele.Chat) {
	id := strconv.FormatInt(chat.ID, 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[id] = model.Channel{
		ID:      id,
		Title:   chat.Title,
		Handle:  chat.Username,
		Private: chat.Type == tele.ChatPrivate,
	}
}

// ListChannels returns the channels observed on this session. The bot API
// offers no directory listing, so the set grows as posts arrive.
func (s *Source) ListChannels(ctx context.Context) ([]model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, source.ErrNotConnected
	}
	out := make([]model.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	return out, nil
}

// SelectChannels acknowledges the selection. The bot API cannot fetch
// history, so the backlog is always empty; filtering by selection happens
// downstream.
func (s *Source) SelectChannels(ctx context.Context, ids []string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, source.ErrNotConnected
	}
	return nil, nil
}

func (s *Source) SubmitPhone(ctx context.Context, value string) error {
	return source.ErrAuthNotSupported
}

func (s *Source) SubmitCode(ctx context.Context, value string) error {
	return source.ErrAuthNotSupported
}

func (s *Source) SubmitPassword(ctx context.Context, value string) error {
	return source.ErrAuthNotSupported
}

func (s *Source) Disconnect() error {
	s.mu.Lock()
	bot := s.bot
	alreadyStopped := s.stopped || !s.connected
	s.stopped = true
	s.connected = false
	s.mu.Unlock()
	if alreadyStopped || bot == nil {
		return nil
	}
	bot.Stop()
	return nil
}

// emit never blocks the poller; when the consumer lags the event is
// dropped and logged.
func (s *Source) emit(evt source.Event) {
	select {
	case s.events <- evt:
	default:
		logger.Warnf("telegram source: event buffer full, dropping %s", evt.Type)
	}
}
