package llm

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"

	"github.com/malonaz/wgpt/internal/thread"
)

// OpenAIClient talks to an OpenAI-compatible chat completion API.
type OpenAIClient struct {
	client *openai.Client
	// System instruction injected at the head of every request.
	systemInstruction string
	// Suffix appended to the model identifier to request search grounding
	// (OpenRouter convention, e.g. ":online").
	searchGroundingSuffix string
}

// NewOpenAIClient instantiates and returns a new client.
func NewOpenAIClient(apiKey, apiHost, systemInstruction, searchGroundingSuffix string) *OpenAIClient {
	openAIConfig := openai.DefaultConfig(apiKey)
	if apiHost != "" {
		openAIConfig.BaseURL = apiHost
	}
	return &OpenAIClient{
		client:                openai.NewClientWithConfig(openAIConfig),
		systemInstruction:     systemInstruction,
		searchGroundingSuffix: searchGroundingSuffix,
	}
}

// StreamChat initiates a streaming chat completion.
func (c *OpenAIClient) StreamChat(ctx context.Context, request *ChatRequest) (Stream, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.History)+2)
	if c.systemInstruction != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.systemInstruction,
		})
	}
	for _, message := range request.History {
		messages = append(messages, toChatCompletionMessage(message))
	}
	messages = append(messages, newUserMessage(request))

	model := request.Model
	if request.UseSearchGrounding && c.searchGroundingSuffix != "" {
		model += c.searchGroundingSuffix
	}

	openAIRequest := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   true,
	}
	stream, err := c.client.CreateChatCompletionStream(ctx, openAIRequest)
	if err != nil {
		return nil, errors.Wrap(err, "creating chat completion stream")
	}
	return &chatCompletionStreamWrapper{stream}, nil
}

type chatCompletionStreamWrapper struct {
	stream *openai.ChatCompletionStream
}

func (s *chatCompletionStreamWrapper) Close() { s.stream.Close() }
func (s *chatCompletionStreamWrapper) Recv() (*Delta, error) {
	response, err := s.stream.Recv()
	if err != nil {
		// io.EOF passes through untouched to mark exhaustion.
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("ChatCompletionResponse returned no choice: %+v", response)
	}
	return &Delta{Text: response.Choices[0].Delta.Content}, nil
}

func toChatCompletionMessage(message *thread.Message) openai.ChatCompletionMessage {
	role := toRole(message.Role)
	if len(message.Parts) == 1 && !message.Parts[0].IsData() {
		return openai.ChatCompletionMessage{Role: role, Content: message.Parts[0].Text}
	}
	parts := make([]openai.ChatMessagePart, 0, len(message.Parts))
	for _, part := range message.Parts {
		parts = append(parts, toChatMessagePart(part))
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
}

func newUserMessage(request *ChatRequest) openai.ChatCompletionMessage {
	if len(request.Attachments) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: request.Text}
	}
	parts := make([]openai.ChatMessagePart, 0, len(request.Attachments)+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: request.Text,
	})
	for _, attached := range request.Attachments {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", attached.MimeType, attached.Data),
			},
		})
	}
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
}

func toChatMessagePart(part thread.Part) openai.ChatMessagePart {
	if part.IsData() {
		return openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: fmt.Sprintf("data:%s;base64,%s", part.InlineData.MimeType, part.InlineData.Data),
			},
		}
	}
	return openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: part.Text}
}

func toRole(role thread.Role) string {
	switch role {
	case thread.RoleModel:
		return openai.ChatMessageRoleAssistant
	case thread.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
