package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/interview-prep-api/internal/dto"
	"github.com/noah-isme/interview-prep-api/internal/observability"
)

const interviewEventBufferSize = 16

// InterviewEventPublisher announces interview lifecycle changes. Publishing is best effort
// and never fails the operation that triggered it.
type InterviewEventPublisher interface {
	Publish(ctx context.Context, event dto.InterviewEvent)
}

// InterviewEventStream fans events out to local subscribers and, when NATS is configured,
// to the other API nodes.
type InterviewEventStream interface {
	InterviewEventPublisher
	Subscribe(userID uint) (<-chan dto.InterviewEvent, func())
	Start(ctx context.Context)
}

type noopEventPublisher struct{}

func (noopEventPublisher) Publish(context.Context, dto.InterviewEvent) {}

type interviewEventEnvelope struct {
	Source string             `json:"source"`
	Event  dto.InterviewEvent `json:"event"`
	SentAt time.Time          `json:"sent_at"`
}

type interviewEventStream struct {
	nats    *nats.Conn
	subject string
	broker  *interviewEventBroker
	nodeID  string
	logger  zerolog.Logger
}

type interviewEventBroker struct {
	mu          sync.RWMutex
	subscribers map[uint]map[chan dto.InterviewEvent]struct{}
}

// NewInterviewEventStream constructs the event stream. natsConn may be nil for a single node.
func NewInterviewEventStream(natsConn *nats.Conn, subjectBase string, logger zerolog.Logger) InterviewEventStream {
	subject := ""
	if subjectBase != "" {
		subject = strings.ReplaceAll(subjectBase, ":", ".") + ".interviews.events"
	}

	return &interviewEventStream{
		nats:    natsConn,
		subject: subject,
		broker: &interviewEventBroker{
			subscribers: make(map[uint]map[chan dto.InterviewEvent]struct{}),
		},
		nodeID: uuid.NewString(),
		logger: logger.With().Str("component", "interview_events").Logger(),
	}
}

func (s *interviewEventStream) Start(ctx context.Context) {
	if s.nats == nil || s.subject == "" {
		return
	}

	// Every node needs every event for its own websocket clients, so no queue group.
	sub, err := s.nats.Subscribe(s.subject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("subject", s.subject).Msg("failed to subscribe to interview events")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain interview event subscription")
		}
	}()
}

func (s *interviewEventStream) Publish(_ context.Context, event dto.InterviewEvent) {
	s.broker.broadcast(event)

	if s.nats == nil || s.subject == "" {
		return
	}

	payload, err := json.Marshal(interviewEventEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode interview event")
		return
	}

	if err := s.nats.Publish(s.subject, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", event.Type).Msg("failed to publish interview event")
	}
}

func (s *interviewEventStream) Subscribe(userID uint) (<-chan dto.InterviewEvent, func()) {
	channel := make(chan dto.InterviewEvent, interviewEventBufferSize)

	s.broker.subscribe(userID, channel)
	observability.EventStreamClients().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			s.broker.unsubscribe(userID, channel)
			observability.EventStreamClients().Dec()
		})
	}

	return channel, cleanup
}

func (s *interviewEventStream) handleEvent(payload []byte) {
	var envelope interviewEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid interview event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	s.broker.broadcast(envelope.Event)
}

func (b *interviewEventBroker) subscribe(userID uint, ch chan dto.InterviewEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[userID]; !exists {
		b.subscribers[userID] = make(map[chan dto.InterviewEvent]struct{})
	}
	b.subscribers[userID][ch] = struct{}{}
}

func (b *interviewEventBroker) unsubscribe(userID uint, ch chan dto.InterviewEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[userID]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, userID)
		}
	}
}

// Slow subscribers drop events rather than block the publisher.
func (b *interviewEventBroker) broadcast(event dto.InterviewEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.UserID] {
		select {
		case ch <- event:
		default:
		}
	}
}
