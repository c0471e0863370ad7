// Package source defines the message-source capability: a restartable stream
// of inbound chat messages and connectivity/auth events from selected
// channels.
package source

import (
	"context"
	"errors"

	"sigrelay/internal/model"
)

// Status is the connectivity state of a source.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusNeedsAuth    Status = "needs_auth"
)

// AuthStep identifies the pending step of the credential-challenge
// sub-protocol.
type AuthStep string

const (
	AuthStepPhone    AuthStep = "phone"
	AuthStepCode     AuthStep = "code"
	AuthStepPassword AuthStep = "password"
	AuthStepDone     AuthStep = "done"
)

// EventType discriminates the variants of Event.
type EventType string

const (
	EventStatus    EventType = "status"
	EventAuthStep  EventType = "auth_step"
	EventAuthError EventType = "auth_error"
	EventMessage   EventType = "message"
)

// Event is one item of the source's event stream. Exactly the fields of the
// active variant are set.
type Event struct {
	Type      EventType
	Status    Status
	AuthStep  AuthStep
	AuthError string
	Message   *model.Message
}

// ErrAuthNotSupported is returned by sources whose transport has no
// interactive login (e.g. bot-token transports).
var ErrAuthNotSupported = errors.New("interactive auth not supported by this source")

// ErrNotConnected is returned by operations that require an active session.
var ErrNotConnected = errors.New("source not connected")

// Source produces messages and state events from one provider session.
// Implementations own their reconnect policy and surface it only as status
// events.
type Source interface {
	// Connect starts the session. Events begin flowing on Events().
	Connect(ctx context.Context) error
	// Events returns the stream consumed by the router. After Disconnect
	// the stream goes quiet following a final disconnected status event.
	Events() <-chan Event
	// ListChannels returns the channels known to the session.
	ListChannels(ctx context.Context) ([]model.Channel, error)
	// SelectChannels restricts intake to the given channels and returns the
	// recent backlog for them. Backlog messages carry IsRealtime=false.
	SelectChannels(ctx context.Context, ids []string) ([]model.Message, error)
	SubmitPhone(ctx context.Context, value string) error
	SubmitCode(ctx context.Context, value string) error
	SubmitPassword(ctx context.Context, value string) error
	// Disconnect stops intake. In-flight downstream work is unaffected.
	Disconnect() error
}
