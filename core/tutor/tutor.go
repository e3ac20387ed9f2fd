// Package tutor answers free-form student questions through a language model provider.
package tutor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
)

const (
	maxMessageLen = 4000

	systemPrompt = `You are LearnWise Assistant, a helpful and friendly AI tutor for students.
Your role is to:
- Explain complex topics in simple, easy-to-understand language
- Provide study tips and learning strategies
- Answer questions about various subjects (math, science, programming, etc.)
- Motivate and encourage students in their learning journey
- Suggest practical examples and real-world applications
- Break down difficult concepts into smaller, manageable parts

Keep your responses concise, clear, and student-friendly. Use examples when helpful.
If a question is unclear, ask for clarification politely.`
)

var (
	ErrUnavailable = errors.New("tutor unavailable")
	ErrEmptyReply  = errors.New("empty tutor reply")
)

// Provider generates a reply to prompt following the system instructions.
type Provider interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

type Reply struct {
	Reply     string    `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
}

type Status struct {
	Status     string `json:"status"`
	Configured bool   `json:"configured"`
	Message    string `json:"message"`
}

type Service struct {
	provider Provider // nil when not configured
	logger   core.Logger
	now      func() time.Time
}

func NewService(provider Provider, logger core.Logger) *Service {
	return &Service{provider: provider, logger: logger, now: time.Now}
}

func (svc *Service) Status() Status {
	if svc.provider == nil {
		return Status{Status: "unavailable", Message: "Tutor provider not configured"}
	}
	return Status{Status: "available", Configured: true, Message: "Chat service is ready"}
}

// Chat sends message to the provider and returns its reply.
func (svc *Service) Chat(ctx context.Context, userID, message string) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, core.NewFieldValidationError("message", "Message cannot be empty")
	}
	if len([]rune(message)) > maxMessageLen {
		return Reply{}, core.NewFieldValidationError("message", fmt.Sprintf("Message cannot exceed %d characters", maxMessageLen))
	}
	if svc.provider == nil {
		return Reply{}, ErrUnavailable
	}

	svc.logger.Debug(fmt.Sprintf("tutor: user %s asked %d characters", userID, len(message)))

	text, err := svc.provider.Generate(ctx, systemPrompt, "Student Question: "+message)
	if err != nil {
		return Reply{}, errors.Wrap(err, "generating tutor reply")
	}
	if text = strings.TrimSpace(text); text == "" {
		return Reply{}, ErrEmptyReply
	}
	return Reply{Reply: text, Timestamp: svc.now().UTC()}, nil
}
