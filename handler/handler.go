package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chat-relay/internal/domain"
	"chat-relay/internal/logging"
	"chat-relay/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// Relayer is the use case invoked for every request.
type Relayer interface {
	Relay(ctx context.Context, in usecase.RelayInput) (usecase.RelayOutput, error)
}

type Handler struct {
	relay  Relayer
	logger *slog.Logger
}

// chatRequest is the inbound body.
type chatRequest struct {
	Message             string              `json:"message"`
	ConversationHistory domain.Conversation `json:"conversationHistory"`
}

type chatResponse struct {
	Success             bool                `json:"success"`
	Response            string              `json:"response"`
	ConversationHistory domain.Conversation `json:"conversationHistory"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewHandler(relay Relayer, logger *slog.Logger) (*Handler, error) {
	if relay == nil {
		return nil, errors.New("handler: relay use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{relay: relay, logger: logger}, nil
}

// Handle never returns an error: every failure is reported as a 500 response
// with a JSON error body.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := correlationIDFrom(event.Headers)
	log := h.logger.With(slog.String("correlation_id", correlationID))
	ctx = logging.WithContext(ctx, log)

	ctx, span := otel.Tracer("chat-relay/handler").Start(ctx, "Handle")
	defer span.End()
	span.SetAttributes(attribute.String("correlation_id", correlationID))

	log.Info("received event",
		slog.String("method", event.HTTPMethod),
		slog.String("path", event.Path),
		slog.String("request_id", event.RequestContext.RequestID),
		slog.Int("body_bytes", len(event.Body)),
	)
	log.Debug("event body", slog.String("body", event.Body))

	if user := authenticatedUser(event.RequestContext.Authorizer); user != "" {
		log.Info("authenticated user", slog.String("user", user))
	}

	out, err := h.process(ctx, event.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("request failed", slog.String("code", string(errorCode(err))), slog.Any("err", err))
		return respond(http.StatusInternalServerError, errorResponse{Success: false, Error: publicMessage(err)}, correlationID), nil
	}

	span.SetAttributes(attribute.Int("conversation.turns", len(out.ConversationHistory)))
	return respond(http.StatusOK, chatResponse{
		Success:             true,
		Response:            out.Response,
		ConversationHistory: out.ConversationHistory,
	}, correlationID), nil
}

func (h *Handler) process(ctx context.Context, body string) (usecase.RelayOutput, error) {
	req, err := parseRequest(body)
	if err != nil {
		return usecase.RelayOutput{}, err
	}
	return h.relay.Relay(ctx, usecase.RelayInput{
		Message: req.Message,
		History: req.ConversationHistory,
	})
}

func parseRequest(body string) (chatRequest, error) {
	if strings.TrimSpace(body) == "" {
		return chatRequest{}, usecase.InvalidInput("request body is required", nil)
	}
	var req chatRequest
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return chatRequest{}, usecase.InvalidInput("invalid request body", err)
	}
	return req, nil
}

// authenticatedUser reads the Cognito email or username claim, if any.
func authenticatedUser(authorizer map[string]interface{}) string {
	claims, ok := authorizer["claims"].(map[string]interface{})
	if !ok {
		return ""
	}
	for _, key := range []string{"email", "cognito:username"} {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func correlationIDFrom(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return newCorrelationID()
}

// publicMessage is the error text callers see. The full chain, which may name
// the endpoint or quote its response, only goes to the log.
func publicMessage(err error) string {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		return ue.Public()
	}
	return "internal error"
}

func errorCode(err error) usecase.ErrorCode {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return usecase.ErrorInternal
}

func respond(status int, payload any, correlationID string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"internal error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":                 "application/json",
			"Access-Control-Allow-Origin":  "*",
			"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token",
			"Access-Control-Allow-Methods": "OPTIONS,POST",
			correlationHeader:              correlationID,
		},
		Body: string(body),
	}
}

var newCorrelationID = func() string {
	return uuid.NewString()
}
