package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func chatResponse(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

// TestSummarize_StrictJSON модель вернула строгий JSON по контракту
func TestSummarize_StrictJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth header = %q", auth)
		}

		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "[A]: hello") {
			t.Error("transcript not present in request body")
		}

		w.Write([]byte(chatResponse(`{"summary":"Short sync.","decisions":["ship v2"],"action_items":[{"task":"write docs","responsible":"A","deadline":"friday"}]}`)))
	}))
	defer server.Close()

	client := NewSummaryClient(server.URL, "test-key", "test-model", 5*time.Second)
	aligned := []AlignedUtterance{{StartMs: 0, EndMs: 1000, Text: "hello", Speaker: "A", Confidence: 1}}

	summary, err := client.Summarize(context.Background(), aligned)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if summary.Summary != "Short sync." {
		t.Errorf("summary = %q", summary.Summary)
	}
	if len(summary.Decisions) != 1 || summary.Decisions[0] != "ship v2" {
		t.Errorf("decisions = %v", summary.Decisions)
	}
	if len(summary.ActionItems) != 1 || summary.ActionItems[0].Task != "write docs" {
		t.Errorf("action items = %v", summary.ActionItems)
	}
}

// TestSummarize_FencedJSON модель обернула JSON в markdown-блок, срезаем
func TestSummarize_FencedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse("```json\n{\"summary\":\"ok\",\"decisions\":[],\"action_items\":[]}\n```")))
	}))
	defer server.Close()

	client := NewSummaryClient(server.URL, "", "m", 5*time.Second)
	summary, err := client.Summarize(context.Background(), []AlignedUtterance{{Text: "x", Speaker: "A"}})
	if err != nil {
		t.Fatalf("fenced JSON not accepted: %v", err)
	}
	if summary.Summary != "ok" {
		t.Errorf("summary = %q", summary.Summary)
	}
}

// TestSummarize_NotJSON проза вместо JSON это ErrSummarizationFailed
func TestSummarize_NotJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse("Sure! Here is your summary: the meeting went well.")))
	}))
	defer server.Close()

	client := NewSummaryClient(server.URL, "", "m", 5*time.Second)
	_, err := client.Summarize(context.Background(), []AlignedUtterance{{Text: "x", Speaker: "A"}})
	if !errors.Is(err, ErrSummarizationFailed) {
		t.Errorf("expected ErrSummarizationFailed, got %v", err)
	}
}

// TestSummarize_MissingSummaryField валидный JSON без обязательного поля
func TestSummarize_MissingSummaryField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse(`{"decisions":[],"action_items":[]}`)))
	}))
	defer server.Close()

	client := NewSummaryClient(server.URL, "", "m", 5*time.Second)
	_, err := client.Summarize(context.Background(), []AlignedUtterance{{Text: "x", Speaker: "A"}})
	if !errors.Is(err, ErrSummarizationFailed) {
		t.Errorf("expected ErrSummarizationFailed, got %v", err)
	}
}

// TestSummarize_ServerError не-200 статус
func TestSummarize_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewSummaryClient(server.URL, "", "m", 5*time.Second)
	_, err := client.Summarize(context.Background(), []AlignedUtterance{{Text: "x", Speaker: "A"}})
	if !errors.Is(err, ErrSummarizationFailed) {
		t.Errorf("expected ErrSummarizationFailed, got %v", err)
	}
}

// TestFormatTranscript построчный формат "[speaker]: text"
func TestFormatTranscript(t *testing.T) {
	aligned := []AlignedUtterance{
		{Text: "hello", Speaker: "A"},
		{Text: "hi there", Speaker: UnknownSpeaker},
	}

	got := FormatTranscript(aligned)
	expected := "[A]: hello\n[unknown]: hi there\n"
	if got != expected {
		t.Errorf("transcript = %q, expected %q", got, expected)
	}
}
