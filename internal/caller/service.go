// Package caller recognizes returning callers and records callback requests
// and messages left for staff.
package caller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/notify"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// ErrMissingPhone is returned when a callback is requested without a number.
var ErrMissingPhone = errors.New("phone number is required")

// Spoken prompts returned to the voice layer.
const (
	PromptMissingPhone = "I need your phone number so we can call you back. What's the best number to reach you?"
	callbackConfirmed  = "Got it! Someone from our team will call you back at %s. Is there anything else I can help you with?"
	messageConfirmed   = "Thank you! I've recorded your message and someone from %s will call you back soon at %s."
)

// CallbackStore persists callback requests.
type CallbackStore interface {
	Create(ctx context.Context, cb *storage.CallbackRequest) error
	FindByPhone(ctx context.Context, key, raw string, limit int) ([]*storage.CallbackRequest, error)
}

// MessageStore persists customer messages.
type MessageStore interface {
	Create(ctx context.Context, m *storage.CustomerMessage) error
}

// Info is the structured lookup result handed to the voice layer.
type Info struct {
	IsReturning bool    `json:"is_returning"`
	CallerName  *string `json:"caller_name"`
	FullName    string  `json:"full_name,omitempty"`
	Message     string  `json:"message"`
}

// CallbackInput is a callback request as collected on the call.
type CallbackInput struct {
	Name        string
	Phone       string
	Description string
	Notes       string
}

// MessageInput is a message as collected on the call.
type MessageInput struct {
	Name    string
	Phone   string
	Message string
}

// Event is published on the callbacks channel after a successful save.
type Event struct {
	Kind      string    `json:"kind"` // callback or message
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Service implements caller lookup and callback capture.
type Service struct {
	callbacks CallbackStore
	messages  MessageStore
	notifier  notify.Notifier
	publisher cache.Publisher
	business  string
	logger    *observability.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the staff notifier. It should not block; wrap slow
// notifiers in notify.Async.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithPublisher publishes save events.
func WithPublisher(p cache.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithBusinessName sets the name used in spoken confirmations.
func WithBusinessName(name string) Option {
	return func(s *Service) { s.business = name }
}

// NewService creates a caller service.
func NewService(callbacks CallbackStore, messages MessageStore, logger *observability.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = observability.NopLogger()
	}
	s := &Service{
		callbacks: callbacks,
		messages:  messages,
		notifier:  notify.Noop{},
		business:  "Axmen Recycling",
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lookup finds the most recent callback left from phone. Both the normalized
// key and the raw input are tried.
func (s *Service) Lookup(ctx context.Context, phone string) (*Info, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return &Info{Message: "No phone number available"}, nil
	}

	rows, err := s.callbacks.FindByPhone(ctx, NormalizePhone(phone), phone, 1)
	if err != nil {
		return nil, fmt.Errorf("find callbacks: %w", err)
	}

	if len(rows) > 0 {
		if full := strings.TrimSpace(rows[0].CallerName); full != "" {
			first := FirstName(full)
			return &Info{
				IsReturning: true,
				CallerName:  &first,
				FullName:    full,
				Message:     "Returning caller: " + first,
			}, nil
		}
	}
	return &Info{Message: "New caller"}, nil
}

// SaveCallback records a callback request and notifies staff in the background.
// Returns ErrMissingPhone without writing anything when no number is given.
func (s *Service) SaveCallback(ctx context.Context, in CallbackInput) (*storage.CallbackRequest, error) {
	phone := strings.TrimSpace(in.Phone)
	if phone == "" {
		return nil, ErrMissingPhone
	}

	cb := &storage.CallbackRequest{
		CallerName:          strings.TrimSpace(in.Name),
		CallerPhone:         phone,
		PhoneKey:            NormalizePhone(phone),
		MaterialDescription: strings.TrimSpace(in.Description),
		Notes:               strings.TrimSpace(in.Notes),
		Status:              storage.CallbackStatusPending,
	}
	if err := s.callbacks.Create(ctx, cb); err != nil {
		return nil, fmt.Errorf("save callback: %w", err)
	}

	s.logger.Info().
		Str("callback_id", cb.ID.String()).
		Str("phone_key", cb.PhoneKey).
		Msg("Callback saved")

	s.notifyCallback(ctx, cb)
	s.publish(ctx, Event{
		Kind:      "callback",
		ID:        cb.ID,
		Name:      cb.CallerName,
		Phone:     cb.CallerPhone,
		Detail:    cb.MaterialDescription,
		CreatedAt: cb.CreatedAt,
	})
	return cb, nil
}

// SaveMessage records a message for staff. Missing fields get placeholders.
func (s *Service) SaveMessage(ctx context.Context, in MessageInput) (*storage.CustomerMessage, error) {
	m := &storage.CustomerMessage{
		CustomerName:  orDefault(in.Name, "Unknown"),
		CustomerPhone: orDefault(in.Phone, "Not provided"),
		Message:       orDefault(in.Message, "No message provided"),
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}

	s.logger.Info().Str("message_id", m.ID.String()).Msg("Customer message saved")

	if err := s.notifier.NotifyMessage(ctx, m); err != nil {
		s.logger.Warn().Err(err).Msg("Message notification failed")
	}
	s.publish(ctx, Event{
		Kind:      "message",
		ID:        m.ID,
		Name:      m.CustomerName,
		Phone:     m.CustomerPhone,
		Detail:    m.Message,
		CreatedAt: m.CreatedAt,
	})
	return m, nil
}

// CallbackConfirmation is the spoken readback after a saved callback.
func CallbackConfirmation(phone string) string {
	return fmt.Sprintf(callbackConfirmed, PhoneForVoice(phone))
}

// MessageConfirmation is the spoken acknowledgement after a saved message.
func (s *Service) MessageConfirmation(m *storage.CustomerMessage) string {
	return fmt.Sprintf(messageConfirmed, s.business, m.CustomerPhone)
}

func (s *Service) notifyCallback(ctx context.Context, cb *storage.CallbackRequest) {
	if err := s.notifier.NotifyCallback(ctx, cb); err != nil {
		s.logger.Warn().Err(err).Str("callback_id", cb.ID.String()).Msg("Callback notification failed")
	}
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, cache.ChannelCallbacks, ev); err != nil {
		s.logger.Warn().Err(err).Str("kind", ev.Kind).Msg("Failed to publish event")
	}
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
