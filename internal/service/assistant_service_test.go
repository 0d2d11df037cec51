package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grading-api/internal/models"
)

func TestAssistantFixedReplies(t *testing.T) {
	results := []models.AnalysisResult{sampleResult("Alice", 80, 90)}

	t.Run("empty message", func(t *testing.T) {
		engine := &stubEngine{response: "hi"}
		reply := NewAssistantService(engine, testLogger()).ChatWithGlobalAssistant(context.Background(), "  <b></b> ", results, models.AssignmentConfig{})
		require.Equal(t, AssistantEmptyMessageReply, reply)
		require.Zero(t, engine.calls())
	})

	t.Run("mock mode", func(t *testing.T) {
		reply := NewAssistantService(nil, testLogger()).ChatWithGlobalAssistant(context.Background(), "Who is at risk?", results, models.AssignmentConfig{})
		require.Equal(t, AssistantMockReply, reply)
	})

	t.Run("engine error", func(t *testing.T) {
		engine := &stubEngine{err: errors.New("boom")}
		reply := NewAssistantService(engine, testLogger()).ChatWithGlobalAssistant(context.Background(), "Who is at risk?", results, models.AssignmentConfig{})
		require.Equal(t, AssistantErrorReply, reply)
	})

	t.Run("blank engine reply", func(t *testing.T) {
		engine := &stubEngine{response: "  \n"}
		reply := NewAssistantService(engine, testLogger()).ChatWithGlobalAssistant(context.Background(), "Who is at risk?", results, models.AssignmentConfig{})
		require.Equal(t, AssistantErrorReply, reply)
	})
}

func TestAssistantPromptCarriesClassContext(t *testing.T) {
	engine := &stubEngine{response: "**Bob** is at risk with 40/100."}
	svc := NewAssistantService(engine, testLogger())

	results := []models.AnalysisResult{sampleResult("Bob", 40, 30), sampleResult("Alice", 90, 85)}
	reply := svc.ChatWithGlobalAssistant(context.Background(), "Who is <script>alert(1)</script>at risk?", results, models.AssignmentConfig{Title: "Queues", ClassContext: "CS201"})

	require.Equal(t, "**Bob** is at risk with 40/100.", reply)

	req := engine.lastRequest()
	require.Equal(t, "assistant_chat", req.Operation)
	require.Nil(t, req.Schema)
	require.False(t, req.EnableRetrieval)

	prompt := strings.Join(textOf(req.Parts), "")
	require.Contains(t, prompt, "ASSIGNMENT: Queues")
	require.Contains(t, prompt, "Class average (overall): 65/100")
	require.Contains(t, prompt, "Top performer: Alice")
	require.Contains(t, prompt, "At risk (overall < 50): Bob")
	require.Contains(t, prompt, "Confidence bands: High 1, Medium 0, Low 1")
	require.Less(t, strings.Index(prompt, "- Alice:"), strings.Index(prompt, "- Bob:"))
	require.NotContains(t, prompt, "<script>")
	require.Contains(t, prompt, "Who is at risk?")
}
