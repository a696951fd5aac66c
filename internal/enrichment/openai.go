package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAnalyzer implements Analyzer against an OpenAI-compatible API:
// Whisper for transcription, chat completions for sentiment and summary.
type OpenAIAnalyzer struct {
	client       *openai.Client
	chatModel    string
	whisperModel string
}

func NewOpenAIAnalyzer(apiKey, baseURL, chatModel, whisperModel string) *OpenAIAnalyzer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	if whisperModel == "" {
		whisperModel = openai.Whisper1
	}
	return &OpenAIAnalyzer{
		client:       openai.NewClientWithConfig(config),
		chatModel:    chatModel,
		whisperModel: whisperModel,
	}
}

func (a *OpenAIAnalyzer) Transcribe(ctx context.Context, recordingPath string) (string, error) {
	resp, err := a.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    a.whisperModel,
		FilePath: recordingPath,
	})
	if err != nil {
		return "", fmt.Errorf("create transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

type sentimentResult struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

func (a *OpenAIAnalyzer) Sentiment(ctx context.Context, text string) (string, float64, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a sentiment classifier for phone call transcripts. " +
					"Reply with a JSON object {\"label\": \"POSITIVE\"|\"NEGATIVE\"|\"NEUTRAL\", \"confidence\": 0..1} and nothing else.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("sentiment completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("sentiment completion: no choices")
	}

	var result sentimentResult
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		return "", 0, fmt.Errorf("parse sentiment response: %w", err)
	}
	label := strings.ToUpper(strings.TrimSpace(result.Label))
	if label == "" {
		return "", 0, fmt.Errorf("empty sentiment label")
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return label, result.Confidence, nil
}

func (a *OpenAIAnalyzer) Summarize(ctx context.Context, text string, minWords, maxWords int) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.chatModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(
					"Summarize the following phone call transcript in %d to %d words. "+
						"Write plain prose, no headings or bullet points.", minWords, maxWords),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: text,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("summary completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summary completion: no choices")
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", fmt.Errorf("empty summary")
	}
	return summary, nil
}
