package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generate_duration_seconds",
		Help:      "Duration of inference requests",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "generate_failures_total",
		Help:      "Number of failed inference requests",
	}, []string{"model", "operation"})

	aiToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "retrieval_tool_calls_total",
		Help:      "Number of retrieval tool invocations requested by the model",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI-compatible engine.
type OpenAIConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	MaxTokens     int
	Temperature   float32
	Timeout       time.Duration
	MaxToolRounds int
	Fetcher       LinkFetcher
	Logger        zerolog.Logger
}

// OpenAIEngine implements Engine against the chat completion API.
type OpenAIEngine struct {
	client  *openai.Client
	cfg     OpenAIConfig
	fetcher LinkFetcher
	tracer  trace.Tracer
	logger  zerolog.Logger
}

// NewOpenAIEngine builds a new engine using the provided configuration.
func NewOpenAIEngine(cfg OpenAIConfig) (*OpenAIEngine, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrAPIKeyRequired
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = 3
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-grading-api/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	fetcher := cfg.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPLinkFetcher(cfg.Timeout)
	}

	return &OpenAIEngine{
		client:  openai.NewClientWithConfig(config),
		cfg:     cfg,
		fetcher: fetcher,
		tracer:  tracer,
		logger:  logger.With().Str("component", "openai_engine").Logger(),
	}, nil
}

// Model reports the configured model name.
func (e *OpenAIEngine) Model() string {
	return e.cfg.Model
}

// Generate sends the compiled parts to the model and returns its raw text.
func (e *OpenAIEngine) Generate(parent context.Context, req GenerateRequest) (string, error) {
	operation := req.Operation
	if operation == "" {
		operation = "generate"
	}

	ctx, span := e.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.String("operation", operation),
		attribute.Bool("retrieval", req.EnableRetrieval),
	))
	defer span.End()

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	start := time.Now()
	content, err := e.complete(ctx, req)
	aiDuration.WithLabelValues(e.cfg.Model, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		aiFailures.WithLabelValues(e.cfg.Model, operation).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai generate: %w", err)
	}

	return content, nil
}

func (e *OpenAIEngine) complete(ctx context.Context, req GenerateRequest) (string, error) {
	request := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: buildMessageParts(req.Parts),
			},
		},
	}

	if req.Schema != nil {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Schema.Name,
				Schema: req.Schema.Schema,
				Strict: false,
			},
		}
	}

	if !req.EnableRetrieval {
		resp, err := e.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}

	request.Tools = []openai.Tool{fetchURLTool()}
	for round := 0; ; round++ {
		if round >= e.cfg.MaxToolRounds {
			request.ToolChoice = "none"
		}

		resp, err := e.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", ErrEmptyResponse
		}

		message := resp.Choices[0].Message
		if len(message.ToolCalls) == 0 || round >= e.cfg.MaxToolRounds {
			return strings.TrimSpace(message.Content), nil
		}

		request.Messages = append(request.Messages, message)
		for _, call := range message.ToolCalls {
			aiToolCalls.WithLabelValues(e.cfg.Model).Inc()
			request.Messages = append(request.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: call.ID,
				Content:    e.runTool(ctx, call),
			})
		}
	}
}

func (e *OpenAIEngine) runTool(ctx context.Context, call openai.ToolCall) string {
	if call.Function.Name != fetchURLToolName {
		return fmt.Sprintf("Unknown tool %q.", call.Function.Name)
	}

	target, err := parseFetchURLArguments(call.Function.Arguments)
	if err != nil {
		return "Invalid arguments: " + err.Error()
	}

	text, err := e.fetcher.Fetch(ctx, target)
	if err != nil {
		e.logger.Warn().Err(err).Str("url", target).Msg("retrieval tool fetch failed")
		return fmt.Sprintf("Could not retrieve %s: %v", target, err)
	}

	return text
}

func buildMessageParts(parts []ContentPart) []openai.ChatMessagePart {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case TextPart:
			out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		case InlineBinaryPart:
			out = append(out, binaryMessagePart(p))
		}
	}
	return out
}

func binaryMessagePart(p InlineBinaryPart) openai.ChatMessagePart {
	mimeType := strings.ToLower(p.MimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + mimeType + ";base64," + p.Data,
				Detail: openai.ImageURLDetailAuto,
			},
		}
	case isTextLike(mimeType):
		decoded, err := base64.StdEncoding.DecodeString(p.Data)
		if err == nil {
			return openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: fmt.Sprintf("[ATTACHMENT: %s]\n%s\n[END OF ATTACHMENT]", p.Name, string(decoded)),
			}
		}
	}

	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: fmt.Sprintf("[ATTACHMENT: %s (%s) was provided but cannot be inlined for this model. Rely on the accompanying text fields.]", p.Name, p.MimeType),
	}
}

func isTextLike(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/x-yaml", "application/yaml", "application/x-ndjson":
		return true
	}
	return false
}
