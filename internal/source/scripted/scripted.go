// Package scripted provides an in-memory source driven by a preloaded
// script. It exercises the full capability surface, including the
// interactive auth sub-protocol, and backs development runs and tests.
package scripted

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"sigrelay/internal/model"
	"sigrelay/internal/source"
)

// Credentials are the expected answers of the auth challenge. Empty fields
// skip their step.
type Credentials struct {
	Phone    string
	Code     string
	Password string
}

type Source struct {
	mu           sync.Mutex
	events       chan source.Event
	channels     []model.Channel
	backlog      map[string][]model.Message
	backlogLimit int
	creds        Credentials
	needAuth     bool
	authStep     source.AuthStep
	connected    bool
	selected     []string
}

func New() *Source {
	return &Source{
		events:  make(chan source.Event, 256),
		backlog: make(map[string][]model.Message),
	}
}

// SetChannels seeds the channel directory.
func (s *Source) SetChannels(channels []model.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = channels
}

// SetBacklogLimit caps the per-channel history returned on selection.
// Zero or negative means unlimited.
func (s *Source) SetBacklogLimit(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backlogLimit = n
}

// SetBacklog seeds the history returned on channel selection. Messages are
// marked as backfilled.
func (s *Source) SetBacklog(channelID string, msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range msgs {
		msgs[i].IsRealtime = false
	}
	s.backlog[channelID] = msgs
}

// RequireAuth arms the credential challenge for the next Connect.
func (s *Source) RequireAuth(creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.needAuth = true
}

// Push delivers a live message into the event stream.
func (s *Source) Push(msg model.Message) {
	msg.IsRealtime = true
	s.events <- source.Event{Type: source.EventMessage, Message: &msg}
}

func (s *Source) Events() <-chan source.Event {
	return s.events
}

func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events <- source.Event{Type: source.EventStatus, Status: source.StatusConnecting}
	if s.needAuth {
		s.authStep = s.firstStep()
		s.events <- source.Event{Type: source.EventStatus, Status: source.StatusNeedsAuth}
		s.events <- source.Event{Type: source.EventAuthStep, AuthStep: s.authStep}
		return nil
	}
	s.connected = true
	s.events <- source.Event{Type: source.EventStatus, Status: source.StatusConnected}
	return nil
}

func (s *Source) firstStep() source.AuthStep {
	if s.creds.Phone != "" {
		return source.AuthStepPhone
	}
	if s.creds.Code != "" {
		return source.AuthStepCode
	}
	if s.creds.Password != "" {
		return source.AuthStepPassword
	}
	return source.AuthStepDone
}

func (s *Source) SubmitPhone(ctx context.Context, value string) error {
	return s.answer(source.AuthStepPhone, s.creds.Phone, value, source.AuthStepCode)
}

func (s *Source) SubmitCode(ctx context.Context, value string) error {
	return s.answer(source.AuthStepCode, s.creds.Code, value, source.AuthStepPassword)
}

func (s *Source) SubmitPassword(ctx context.Context, value string) error {
	return s.answer(source.AuthStepPassword, s.creds.Password, value, source.AuthStepDone)
}

// answer checks one challenge step. A wrong value re-emits the same step
// with an auth error; the needs_auth status stays open for retry.
func (s *Source) answer(step source.AuthStep, expected, got string, next source.AuthStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.authStep != step {
		return fmt.Errorf("auth step %s not pending (current %s)", step, s.authStep)
	}
	if strings.TrimSpace(got) != expected {
		s.events <- source.Event{Type: source.EventAuthError, AuthError: fmt.Sprintf("invalid %s", step)}
		s.events <- source.Event{Type: source.EventAuthStep, AuthStep: step}
		return nil
	}
	s.authStep = s.skipEmpty(next)
	s.events <- source.Event{Type: source.EventAuthStep, AuthStep: s.authStep}
	if s.authStep == source.AuthStepDone {
		s.needAuth = false
		s.connected = true
		s.events <- source.Event{Type: source.EventStatus, Status: source.StatusConnected}
	}
	return nil
}

func (s *Source) skipEmpty(step source.AuthStep) source.AuthStep {
	if step == source.AuthStepCode && s.creds.Code == "" {
		step = source.AuthStepPassword
	}
	if step == source.AuthStepPassword && s.creds.Password == "" {
		step = source.AuthStepDone
	}
	return step
}

func (s *Source) ListChannels(ctx context.Context) ([]model.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, source.ErrNotConnected
	}
	out := make([]model.Channel, len(s.channels))
	copy(out, s.channels)
	return out, nil
}

func (s *Source) SelectChannels(ctx context.Context, ids []string) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil, source.ErrNotConnected
	}
	s.selected = append([]string(nil), ids...)
	var out []model.Message
	for _, id := range ids {
		msgs := s.backlog[id]
		if s.backlogLimit > 0 && len(msgs) > s.backlogLimit {
			// Keep the most recent entries.
			msgs = msgs[len(msgs)-s.backlogLimit:]
		}
		out = append(out, msgs...)
	}
	return out, nil
}

func (s *Source) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected && !s.needAuth {
		return nil
	}
	s.connected = false
	s.events <- source.Event{Type: source.EventStatus, Status: source.StatusDisconnected}
	return nil
}
