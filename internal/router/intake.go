package router

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sigrelay/internal/hub"
	"sigrelay/internal/logger"
	"sigrelay/internal/model"
	"sigrelay/internal/pkg/text"
	"sigrelay/internal/source"

	"github.com/google/uuid"
)

func (r *Router) handleSourceEvent(payload []byte) error {
	var evt source.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("unmarshal source event: %w", err)
	}
	switch evt.Type {
	case source.EventStatus:
		return r.applySourceStatus(evt.Status)
	case source.EventAuthStep:
		r.state.authStep = evt.AuthStep
		r.observers.Broadcast(hub.Fact{Type: hub.FactAuthStep, Data: authStepPayload{Step: evt.AuthStep}})
		return nil
	case source.EventAuthError:
		r.observers.Broadcast(hub.Fact{
			Type: hub.FactAuthError,
			Data: hub.ErrorPayload{Scope: "auth", Message: evt.AuthError},
		})
		// Re-emit the pending step so the observer can retry it.
		if r.state.authStep != "" {
			r.observers.Broadcast(hub.Fact{Type: hub.FactAuthStep, Data: authStepPayload{Step: r.state.authStep}})
		}
		return nil
	case source.EventMessage:
		if evt.Message == nil {
			return fmt.Errorf("source message event without message")
		}
		r.intakeMessage(evt.Message)
		return nil
	default:
		return fmt.Errorf("unknown source event type %q", evt.Type)
	}
}

func (r *Router) applySourceStatus(status source.Status) error {
	prev := r.state.sourceStatus
	r.state.sourceStatus = status
	r.observers.Broadcast(hub.Fact{Type: hub.FactSourceStatus, Data: statusPayload{Status: status}})
	switch status {
	case source.StatusNeedsAuth:
		r.observers.Broadcast(hub.Fact{Type: hub.FactAuthRequired, Data: authStepPayload{Step: r.state.authStep}})
	case source.StatusDisconnected:
		if prev != source.StatusDisconnected {
			r.observers.Broadcast(hub.Fact{Type: hub.FactSourceDisconnected})
		}
	}
	return nil
}

// intakeMessage runs the message pipeline: selection filter, dedup,
// broadcast, then classification for realtime traffic. The raw message
// is always announced before any verdict exists for it.
func (r *Router) intakeMessage(msg *model.Message) {
	if !channelSelected(msg.ChannelID, r.state.settings.SelectedChannelIDs) {
		logger.Debugf("ignoring message from unselected channel %s", msg.ChannelID)
		return
	}

	// Historical traffic is exempt from the duplicate filter and never
	// enters the recency set. It still gets the raw announcement first,
	// then the terminal verdict as an update.
	if !msg.IsRealtime {
		r.state.appendMessage(msg)
		r.observers.Broadcast(hub.Fact{Type: hub.FactNewMessage, Data: msg})
		msg.Verdict = model.VerdictSkipped
		msg.VerdictDetail = "historical message"
		r.observers.Broadcast(hub.Fact{Type: hub.FactMessageUpdated, Data: msg})
		return
	}

	if !r.recent.Add(msg.Key()) {
		logger.Debugf("duplicate delivery for %s ignored", msg.Key())
		return
	}
	msg.Verdict = model.VerdictAnalyzing
	r.state.appendMessage(msg)
	r.observers.Broadcast(hub.Fact{Type: hub.FactNewMessage, Data: msg})
	logger.Infof("classifying message %s: %s", msg.Key(), text.Truncate(msg.Text, 120))
	r.dispatchClassification(msg.Key(), msg.Text)
}

// dispatchClassification runs the classifier off-loop and posts the
// outcome back as an event.
func (r *Router) dispatchClassification(messageKey, text string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), classifyCallTimeout)
		defer cancel()

		done := ClassifierDonePayload{MessageKey: messageKey}
		res, err := r.classifier.Classify(ctx, text)
		if err != nil {
			done.Error = err.Error()
		} else {
			done.Result = &classifierBrief{
				IsSignal:   res.IsSignal,
				Confidence: res.Confidence,
				Symbol:     res.Symbol,
				Direction:  res.Direction,
				Entry:      res.Entry,
				Stop:       res.Stop,
				Targets:    res.Targets,
				Rationale:  res.Rationale,
				Model:      res.Model,
			}
		}
		r.post(EvtClassifierDone, done)
	}()
}

func (r *Router) handleClassifierDone(payload []byte) error {
	var p ClassifierDonePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("unmarshal classifier result: %w", err)
	}
	msg, ok := r.state.byKey[p.MessageKey]
	if !ok {
		logger.Warnf("classifier result for unknown message %s", p.MessageKey)
		return nil
	}

	if p.Error != "" {
		msg.Verdict = model.VerdictError
		msg.VerdictDetail = "analysis error"
		r.observers.Broadcast(hub.Fact{Type: hub.FactMessageUpdated, Data: msg})
		r.observers.Broadcast(hub.Fact{
			Type: hub.FactError,
			Data: hub.ErrorPayload{Scope: "classifier", Message: p.Error},
		})
		return nil
	}

	res := p.Result
	if res == nil {
		return fmt.Errorf("classifier result for %s has neither result nor error", p.MessageKey)
	}
	msg.ModelLabel = res.Model

	if !res.IsSignal {
		msg.Verdict = model.VerdictNoSignal
		msg.VerdictDetail = res.Rationale
		r.observers.Broadcast(hub.Fact{Type: hub.FactMessageUpdated, Data: msg})
		return nil
	}

	direction, ok := model.ParseDirection(res.Direction)
	if !ok {
		msg.Verdict = model.VerdictError
		msg.VerdictDetail = fmt.Sprintf("unusable direction %q", res.Direction)
		r.observers.Broadcast(hub.Fact{Type: hub.FactMessageUpdated, Data: msg})
		return nil
	}

	msg.Verdict = model.VerdictValidSignal
	msg.VerdictDetail = res.Rationale
	r.observers.Broadcast(hub.Fact{Type: hub.FactMessageUpdated, Data: msg})

	sig := &model.Signal{
		ID:         uuid.NewString(),
		ChannelID:  msg.ChannelID,
		MessageID:  msg.ProviderMessageID,
		Symbol:     res.Symbol,
		Direction:  direction,
		Entry:      res.Entry,
		Stop:       res.Stop,
		Targets:    res.Targets,
		Confidence: res.Confidence,
		CreatedAt:  time.Now(),
		Status:     model.SignalPending,
		Rationale:  res.Rationale,
		RawText:    msg.Text,
	}
	r.signals.Put(sig)
	r.observers.Broadcast(hub.Fact{Type: hub.FactSignalDetected, Data: sig})

	if r.state.settings.AutoTradeEnabled && sig.Confidence >= autoTradeConfidenceFloor {
		logger.Infof("auto-trading signal %s (%s %s, confidence %.2f)",
			sig.ID, sig.Symbol, sig.Direction, sig.Confidence)
		r.dispatchSignalOrder(sig, "", orderOverrides{})
	}
	return nil
}
