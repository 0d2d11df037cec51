package ai_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/pkg/ai"
)

type capturedRequest struct {
	Messages       []map[string]interface{} `json:"messages"`
	Tools          []map[string]interface{} `json:"tools"`
	ToolChoice     interface{}              `json:"tool_choice"`
	ResponseFormat map[string]interface{}   `json:"response_format"`
}

type fakeCompletions struct {
	mu        sync.Mutex
	requests  []capturedRequest
	responses []string
}

func (f *fakeCompletions) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var captured capturedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		f.mu.Lock()
		index := len(f.requests)
		f.requests = append(f.requests, captured)
		body := f.responses[len(f.responses)-1]
		if index < len(f.responses) {
			body = f.responses[index]
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func contentResponse(content string) string {
	encoded, _ := json.Marshal(content)
	return fmt.Sprintf(`{"id":"chatcmpl-1","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":%s},"finish_reason":"stop"}]}`, encoded)
}

func toolCallResponse(url string) string {
	return fmt.Sprintf(`{"id":"chatcmpl-2","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"fetch_url","arguments":"{\"url\":\"%s\"}"}}]},"finish_reason":"tool_calls"}]}`, url)
}

type stubFetcher struct {
	targets []string
	text    string
}

func (s *stubFetcher) Fetch(_ context.Context, target string) (string, error) {
	s.targets = append(s.targets, target)
	return s.text, nil
}

func newTestEngine(t *testing.T, fake *fakeCompletions, fetcher ai.LinkFetcher, rounds int) *ai.OpenAIEngine {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	engine, err := ai.NewOpenAIEngine(ai.OpenAIConfig{
		APIKey:        "test-key",
		BaseURL:       server.URL + "/v1",
		Fetcher:       fetcher,
		MaxToolRounds: rounds,
	})
	require.NoError(t, err)
	return engine
}

func TestNewOpenAIEngineRequiresKey(t *testing.T) {
	_, err := ai.NewOpenAIEngine(ai.OpenAIConfig{APIKey: "  "})
	require.ErrorIs(t, err, ai.ErrAPIKeyRequired)
}

func TestGenerateWithSchema(t *testing.T) {
	fake := &fakeCompletions{responses: []string{contentResponse(`{"outcomes":["a"]}`)}}
	engine := newTestEngine(t, fake, nil, 0)

	out, err := engine.Generate(context.Background(), ai.GenerateRequest{
		Operation: "learning_outcomes",
		Parts: []ai.ContentPart{
			ai.InlineBinaryPart{Name: "diagram.png", MimeType: "image/png", Data: "iVBORw0KGgo="},
			ai.InlineBinaryPart{Name: "notes.txt", MimeType: "text/plain", Data: "aGVsbG8="},
			ai.InlineBinaryPart{Name: "report.pdf", MimeType: "application/pdf", Data: "JVBERi0="},
			ai.Text("Generate outcomes."),
		},
		Schema: &ai.ResponseSchema{Name: "learning_outcomes", Schema: json.RawMessage(`{"type":"object"}`)},
	})
	require.NoError(t, err)
	require.Equal(t, `{"outcomes":["a"]}`, out)

	require.Len(t, fake.requests, 1)
	captured := fake.requests[0]
	require.Empty(t, captured.Tools)
	require.Equal(t, "json_schema", captured.ResponseFormat["type"])

	content, ok := captured.Messages[0]["content"].([]interface{})
	require.True(t, ok)
	require.Len(t, content, 4)

	image := content[0].(map[string]interface{})
	require.Equal(t, "image_url", image["type"])
	require.Equal(t, "data:image/png;base64,iVBORw0KGgo=", image["image_url"].(map[string]interface{})["url"])

	notes := content[1].(map[string]interface{})
	require.Contains(t, notes["text"], "hello")

	pdf := content[2].(map[string]interface{})
	require.Contains(t, pdf["text"], "report.pdf (application/pdf)")
}

func TestGenerateRejectsRetrievalWithSchema(t *testing.T) {
	fake := &fakeCompletions{responses: []string{contentResponse("unused")}}
	engine := newTestEngine(t, fake, nil, 0)

	_, err := engine.Generate(context.Background(), ai.GenerateRequest{
		Parts:           []ai.ContentPart{ai.Text("x")},
		EnableRetrieval: true,
		Schema:          &ai.ResponseSchema{Name: "s", Schema: json.RawMessage(`{}`)},
	})

	require.ErrorIs(t, err, ai.ErrRetrievalWithSchema)
	require.Empty(t, fake.requests)
}

func TestGenerateRunsRetrievalTool(t *testing.T) {
	fake := &fakeCompletions{responses: []string{
		toolCallResponse("https://docs.example.com/report"),
		contentResponse("final answer"),
	}}
	fetcher := &stubFetcher{text: "REPORT BODY"}
	engine := newTestEngine(t, fake, fetcher, 3)

	out, err := engine.Generate(context.Background(), ai.GenerateRequest{
		Operation:       "analyze_submission",
		Parts:           []ai.ContentPart{ai.Text("Read the report link.")},
		EnableRetrieval: true,
	})
	require.NoError(t, err)
	require.Equal(t, "final answer", out)
	require.Equal(t, []string{"https://docs.example.com/report"}, fetcher.targets)

	require.Len(t, fake.requests, 2)
	require.Len(t, fake.requests[0].Tools, 1)
	require.Nil(t, fake.requests[0].ResponseFormat)

	followUp := fake.requests[1].Messages
	require.Len(t, followUp, 3)
	require.Equal(t, "tool", followUp[2]["role"])
	require.Equal(t, "call_1", followUp[2]["tool_call_id"])
	require.Equal(t, "REPORT BODY", followUp[2]["content"])
}

func TestGenerateRetrievalToolCannotReachLoopback(t *testing.T) {
	internal := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("INTERNAL-SECRET"))
	}))
	defer internal.Close()

	fake := &fakeCompletions{responses: []string{
		toolCallResponse(internal.URL + "/admin"),
		contentResponse("final answer"),
	}}
	engine := newTestEngine(t, fake, nil, 3)

	out, err := engine.Generate(context.Background(), ai.GenerateRequest{
		Operation:       "analyze_submission",
		Parts:           []ai.ContentPart{ai.Text("Read the report link.")},
		EnableRetrieval: true,
	})
	require.NoError(t, err)
	require.Equal(t, "final answer", out)

	require.Len(t, fake.requests, 2)
	toolReply, ok := fake.requests[1].Messages[2]["content"].(string)
	require.True(t, ok)
	require.Contains(t, toolReply, "non-public address")
	require.NotContains(t, toolReply, "INTERNAL-SECRET")
}

func TestGenerateStopsToolLoopAfterMaxRounds(t *testing.T) {
	fake := &fakeCompletions{responses: []string{
		toolCallResponse("https://a.example.com"),
		toolCallResponse("https://b.example.com"),
	}}
	fetcher := &stubFetcher{text: "page"}
	engine := newTestEngine(t, fake, fetcher, 1)

	_, err := engine.Generate(context.Background(), ai.GenerateRequest{
		Parts:           []ai.ContentPart{ai.Text("x")},
		EnableRetrieval: true,
	})
	require.NoError(t, err)

	require.Len(t, fake.requests, 2)
	require.Equal(t, "none", fake.requests[1].ToolChoice)
	require.Len(t, fetcher.targets, 1)
}

func TestGenerateWrapsUpstreamErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	engine, err := ai.NewOpenAIEngine(ai.OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = engine.Generate(context.Background(), ai.GenerateRequest{Parts: []ai.ContentPart{ai.Text("x")}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "openai generate")
}
