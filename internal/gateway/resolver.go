package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"CodeChat/internal/agent"
	"CodeChat/internal/chatbot"
	"CodeChat/internal/session"
)

// timestampLayout matches what browsers produce with toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

const errEmptyContent = "message content must not be empty"

// Chat is the orchestration surface the resolvers call.
// *chatbot.Service implements it.
type Chat interface {
	HasCredential() bool
	ProcessTurn(ctx context.Context, req chatbot.TurnRequest) (*chatbot.TurnResult, error)
	ReviewCode(ctx context.Context, code, language, reviewContext string) (*chatbot.TurnResult, error)
	HealthCheck(ctx context.Context) chatbot.HealthReport
	ValidateAPIKey(ctx context.Context) chatbot.KeyValidation
	AvailableModels(ctx context.Context) []string
	AvailableAgents() []string
	ClearConversation(ctx context.Context, conversationID string) error
	Conversation(ctx context.Context, conversationID string) ([]session.Message, error)
}

// Resolver is the root resolver for both Query and Mutation.
type Resolver struct {
	chat   Chat
	logger *slog.Logger
}

// NewResolver creates the root resolver.
func NewResolver(chat Chat, logger *slog.Logger) *Resolver {
	return &Resolver{chat: chat, logger: logger}
}

// GraphQL object types. Nullable fields are pointers.

type message struct {
	ID        graphql.ID
	Content   string
	Role      string
	Timestamp string
}

type chatResponse struct {
	Success          bool
	Message          *message
	Error            *string
	AgentUsed        *string
	ToolsUsed        *[]string
	ProcessingMethod *string
}

type apiKeyValidation struct {
	Valid bool
	Error *string
}

type codeReviewResponse struct {
	Success          bool
	Content          string
	AgentUsed        string
	Error            *string
	ProcessingMethod *string
}

type agentStatus struct {
	Name      string
	Available bool
}

type healthCheck struct {
	Status    string
	Agents    []agentStatus
	Timestamp string
	Error     *string
}

// Input types.

type messageInput struct {
	ID        graphql.ID
	Content   string
	Role      string
	Timestamp string
}

type sendMessageInput struct {
	Content             string
	ConversationHistory *[]messageInput
	AgentType           *string
	ConversationID      *graphql.ID
}

type codeReviewInput struct {
	Code     string
	Language *string
	Context  *string
}

func (r *Resolver) Health() string {
	return "CodeChat is running!"
}

func (r *Resolver) AvailableModels(ctx context.Context) []string {
	return r.chat.AvailableModels(ctx)
}

func (r *Resolver) AvailableAgents() []string {
	return r.chat.AvailableAgents()
}

func (r *Resolver) ValidateApiKey(ctx context.Context) *apiKeyValidation {
	v := r.chat.ValidateAPIKey(ctx)
	out := &apiKeyValidation{Valid: v.Valid}
	if v.Error != "" {
		out.Error = &v.Error
	}
	return out
}

func (r *Resolver) MastraHealth(ctx context.Context) *healthCheck {
	report := r.chat.HealthCheck(ctx)
	out := &healthCheck{
		Status:    report.Status,
		Agents:    make([]agentStatus, len(report.Agents)),
		Timestamp: report.Timestamp,
	}
	for i, a := range report.Agents {
		out.Agents[i] = agentStatus{Name: a.Name, Available: a.Available}
	}
	if report.Error != "" {
		out.Error = &report.Error
	}
	return out
}

func (r *Resolver) Conversation(ctx context.Context, args struct{ ID graphql.ID }) ([]*message, error) {
	msgs, err := r.chat.Conversation(ctx, string(args.ID))
	if err != nil {
		return nil, err
	}
	out := make([]*message, len(msgs))
	for i, m := range msgs {
		out[i] = toMessage(m)
	}
	return out, nil
}

// SendMessage never returns a GraphQL error: validation and orchestration
// failures become success=false responses.
func (r *Resolver) SendMessage(ctx context.Context, args struct{ Input sendMessageInput }) *chatResponse {
	in := args.Input
	if strings.TrimSpace(in.Content) == "" {
		return chatFailure(errEmptyContent)
	}
	if !r.chat.HasCredential() {
		return chatFailure(chatbot.ErrNoCredential.Error())
	}

	req := chatbot.TurnRequest{Content: in.Content}
	if in.ConversationHistory != nil {
		history, err := fromHistory(*in.ConversationHistory)
		if err != nil {
			return chatFailure(err.Error())
		}
		req.History = history
	}
	if in.AgentType != nil {
		id, err := agentFromEnum(*in.AgentType)
		if err != nil {
			return chatFailure(err.Error())
		}
		req.Agent = id
	}
	if in.ConversationID != nil {
		req.ConversationID = string(*in.ConversationID)
	}

	res, err := r.chat.ProcessTurn(ctx, req)
	if err != nil {
		r.logger.Error("sendMessage failed", "error", err)
		return chatFailure(err.Error())
	}

	tools := res.ToolsUsed
	return &chatResponse{
		Success:          true,
		Message:          toMessage(res.Message),
		AgentUsed:        &res.AgentUsed,
		ToolsUsed:        &tools,
		ProcessingMethod: &res.Method,
	}
}

func (r *Resolver) ReviewCode(ctx context.Context, args struct{ Input codeReviewInput }) *codeReviewResponse {
	in := args.Input
	if strings.TrimSpace(in.Code) == "" {
		return reviewFailure("code must not be empty")
	}
	if !r.chat.HasCredential() {
		return reviewFailure(chatbot.ErrNoCredential.Error())
	}

	res, err := r.chat.ReviewCode(ctx, in.Code, deref(in.Language), deref(in.Context))
	if err != nil {
		r.logger.Error("reviewCode failed", "error", err)
		return reviewFailure(err.Error())
	}
	return &codeReviewResponse{
		Success:          true,
		Content:          res.Message.Content,
		AgentUsed:        res.AgentUsed,
		ProcessingMethod: &res.Method,
	}
}

func (r *Resolver) ClearConversation(ctx context.Context, args struct{ ConversationID *graphql.ID }) (bool, error) {
	var id string
	if args.ConversationID != nil {
		id = string(*args.ConversationID)
	}
	if err := r.chat.ClearConversation(ctx, id); err != nil {
		r.logger.Error("clearConversation failed", "conversation_id", id, "error", err)
		return false, err
	}
	return true, nil
}

func chatFailure(msg string) *chatResponse {
	return &chatResponse{Error: &msg}
}

func reviewFailure(msg string) *codeReviewResponse {
	return &codeReviewResponse{Error: &msg}
}

func toMessage(m session.Message) *message {
	return &message{
		ID:        graphql.ID(m.ID),
		Content:   m.Content,
		Role:      m.Role.Enum(),
		Timestamp: m.Timestamp.UTC().Format(timestampLayout),
	}
}

func fromHistory(in []messageInput) ([]session.Message, error) {
	out := make([]session.Message, len(in))
	for i, m := range in {
		role, err := session.ParseRole(m.Role)
		if err != nil {
			return nil, fmt.Errorf("conversationHistory[%d]: %w", i, err)
		}
		ts, err := time.Parse(time.RFC3339Nano, m.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("conversationHistory[%d]: invalid timestamp %q", i, m.Timestamp)
		}
		out[i] = session.Message{
			ID:        string(m.ID),
			Role:      role,
			Content:   m.Content,
			Timestamp: ts,
		}
	}
	return out, nil
}

func agentFromEnum(s string) (agent.ID, error) {
	switch s {
	case "CODE_REVIEW_AGENT":
		return agent.CodeReviewAgent, nil
	case "GENERAL_CODING_AGENT":
		return agent.GeneralCodingAgent, nil
	case "AUTO_SELECT", "":
		return "", nil
	}
	return "", fmt.Errorf("unknown agent type %q", s)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
