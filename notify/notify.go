// Package notify fans case events out to users by email and SMS.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voicelegal-backend/logging"
	"voicelegal-backend/models"

	"github.com/google/uuid"
)

// Kind identifies a case event
type Kind string

const (
	KindProcessingUpdate Kind = "processing_update"
	KindDocumentReady    Kind = "document_ready"
	KindError            Kind = "error"
	KindStatusUpdate     Kind = "status_update"
)

// Channel is a delivery medium
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// UserLookup loads a user with their notification preferences
type UserLookup interface {
	GetWithPreferences(ctx context.Context, id uuid.UUID) (*models.User, *models.UserPreferences, error)
}

// Message is a rendered notification for one channel
type Message struct {
	Channel Channel `json:"channel"`
	To      string  `json:"to"`
	From    string  `json:"from,omitempty"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
	Kind    Kind    `json:"kind"`
}

// Sender delivers a single message
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Notifier delivers case events to users
type Notifier interface {
	Notify(ctx context.Context, userRef uuid.UUID, kind Kind, data map[string]any) bool
}

// Service is the default Notifier
type Service struct {
	users   UserLookup
	sender  Sender
	from    string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithSender sets the delivery backend
func WithSender(sender Sender) Option {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithFromAddress sets the sender address for email
func WithFromAddress(from string) Option {
	return func(s *Service) {
		s.from = from
	}
}

// WithTimeout bounds a whole fan-out
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.timeout = d
	}
}

// NewService creates a notification service. Without a sender, messages are logged only.
func NewService(users UserLookup, opts ...Option) *Service {
	s := &Service{
		users:   users,
		timeout: 30 * time.Second,
		logger:  logging.New("notify"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sender == nil {
		s.sender = NewLogSender(s.logger)
	}
	return s
}

// Notify sends an email for every event, plus an SMS for document_ready and
// error events when the user has a phone number. It reports whether the
// email was delivered; failures are logged and never returned.
func (s *Service) Notify(ctx context.Context, userRef uuid.UUID, kind Kind, data map[string]any) bool {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	logger := s.logger.With(slog.String("user_id", userRef.String()), slog.String("kind", string(kind)))

	user, prefs, err := s.users.GetWithPreferences(ctx, userRef)
	if err != nil {
		logger.Error("failed to load notification recipient", slog.Any("error", err))
		return false
	}
	if prefs == nil {
		prefs = models.DefaultPreferences(user.ID)
	}

	delivered := false
	if prefs.WantsEmail(user) {
		msg := Message{
			Channel: ChannelEmail,
			To:      user.Email,
			From:    s.from,
			Subject: Subject(kind, data),
			Body:    emailBody(kind, data, s.from),
			Kind:    kind,
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			logger.Error("email notification failed", slog.Any("error", err))
		} else {
			delivered = true
		}
	}

	if (kind == KindDocumentReady || kind == KindError) && prefs.WantsSMS(user) {
		msg := Message{
			Channel: ChannelSMS,
			To:      user.SMSNumber(),
			Body:    smsBody(kind, data),
			Kind:    kind,
		}
		if err := s.sender.Send(ctx, msg); err != nil {
			logger.Warn("sms notification failed", slog.Any("error", err))
		}
	}

	logger.Info("notification dispatched", slog.Bool("email_delivered", delivered))
	return delivered
}

var subjects = map[Kind]string{
	KindProcessingUpdate: "Processing Update",
	KindDocumentReady:    "Document Ready",
	KindError:            "Processing Error",
	KindStatusUpdate:     "Status Update",
}

// Subject renders the email subject for an event.
func Subject(kind Kind, data map[string]any) string {
	title, ok := subjects[kind]
	if !ok {
		title = subjects[KindStatusUpdate]
	}
	return fmt.Sprintf("Legal Case %s - %s", shortID(data), title)
}

func shortID(data map[string]any) string {
	id := stringValue(data, "case_id")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func stringValue(data map[string]any, key string) string {
	v, ok := data[key]
	if !ok || v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case *string:
		if val == nil {
			return ""
		}
		return *val
	default:
		return fmt.Sprint(val)
	}
}

func emailBody(kind Kind, data map[string]any, support string) string {
	var b strings.Builder
	caseType := stringValue(data, "case_type")
	if caseType == "" {
		caseType = "Unknown"
	}
	fmt.Fprintf(&b, "Case: %s\n", stringValue(data, "case_id"))
	fmt.Fprintf(&b, "Case type: %s\n", caseType)
	fmt.Fprintf(&b, "Status: %s\n", stringValue(data, "status"))
	if p := stringValue(data, "progress"); p != "" {
		fmt.Fprintf(&b, "Progress: %s%%\n", p)
	}

	switch kind {
	case KindDocumentReady:
		b.WriteString("\nYour legal document is ready.\n")
		if url := stringValue(data, "document_url"); url != "" {
			fmt.Fprintf(&b, "Document: %s\n", url)
		}
	case KindError:
		b.WriteString("\nWe could not finish processing your case.\n")
		if details := stringValue(data, "error_details"); details != "" {
			fmt.Fprintf(&b, "Details: %s\n", details)
		}
		b.WriteString("You can start again with a different description of your problem.\n")
	}

	if support != "" {
		fmt.Fprintf(&b, "\nQuestions? Contact %s\n", support)
	}
	return b.String()
}

func smsBody(kind Kind, data map[string]any) string {
	switch kind {
	case KindDocumentReady:
		return fmt.Sprintf("Legal case %s: your document is ready.", shortID(data))
	case KindError:
		return fmt.Sprintf("Legal case %s could not be processed. Please check the app for details.", shortID(data))
	default:
		return fmt.Sprintf("Legal case %s status: %s", shortID(data), stringValue(data, "status"))
	}
}
