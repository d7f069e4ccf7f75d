package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"chat-relay/internal/domain"
	"chat-relay/internal/logging"
)

const defaultInferenceTimeout = 25 * time.Second

type InferenceClient interface {
	Generate(ctx context.Context, modelID string, messages domain.Conversation) (string, error)
}

type RelayService struct {
	client  InferenceClient
	modelID string
	timeout time.Duration
}

type RelayInput struct {
	Message string
	History domain.Conversation
}

type RelayOutput struct {
	Response            string
	ConversationHistory domain.Conversation
}

// NewRelayService builds a RelayService. A non-positive timeout selects the
// default.
func NewRelayService(client InferenceClient, modelID string, timeout time.Duration) (*RelayService, error) {
	if client == nil {
		return nil, errors.New("usecase: inference client must not be nil")
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, errors.New("usecase: model id must not be empty")
	}
	if timeout <= 0 {
		timeout = defaultInferenceTimeout
	}
	return &RelayService{
		client:  client,
		modelID: modelID,
		timeout: timeout,
	}, nil
}

// Relay appends the user's message to the history, asks the inference
// endpoint for a reply and appends that too. in.History is not modified.
func (s *RelayService) Relay(ctx context.Context, in RelayInput) (RelayOutput, error) {
	if in.Message == "" {
		return RelayOutput{}, InvalidInput("message is required", nil)
	}
	log := logging.FromContext(ctx)

	messages := in.History.Append(domain.Turn{Role: domain.RoleUser, Content: in.Message})
	log.Info("calling inference endpoint",
		slog.String("model_id", s.modelID),
		slog.Int("history_len", len(in.History)),
	)
	log.Debug("inference payload", slog.Any("messages", messages))

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.client.Generate(callCtx, s.modelID, messages)
	if err != nil {
		if errors.Is(err, domain.ErrNoValidResponse) {
			return RelayOutput{}, newError(ErrorInvalidResponse, domain.ErrNoValidResponse.Error(), err)
		}
		return RelayOutput{}, upstreamError(err)
	}
	log.Debug("inference response", slog.String("response", reply))

	return RelayOutput{
		Response:            reply,
		ConversationHistory: messages.Append(domain.Turn{Role: domain.RoleAssistant, Content: reply}),
	}, nil
}
