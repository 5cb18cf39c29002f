package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// ErrSummarizationFailed ответ LLM не распарсился в ожидаемую структуру
// Не фатально для транскрипта: реплики сохраняются, резюме остаётся пустым
var ErrSummarizationFailed = errors.New("summarization failed")

// summarySystemPrompt требует строгий JSON без лишнего текста
const summarySystemPrompt = `You are an assistant that summarizes business meeting transcripts.
Respond with STRICT JSON only, no markdown, no prose around it:
{"summary": "...", "decisions": ["..."], "action_items": [{"task": "...", "responsible": "...", "deadline": "..."}]}
Rules: "summary" is a short executive summary; "decisions" lists agreed decisions;
"action_items" lists concrete tasks. Use empty arrays when nothing applies.`

// SummaryClient клиент LLM-сервиса суммаризации (chat-completion API)
type SummaryClient struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewSummaryClient создаёт клиент суммаризации
func NewSummaryClient(baseURL, apiKey, model string, timeout time.Duration) *SummaryClient {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &SummaryClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// FormatTranscript собирает полный транскрипт вида "[speaker]: text" построчно
func FormatTranscript(aligned []AlignedUtterance) string {
	var b strings.Builder
	for _, u := range aligned {
		b.WriteString(fmt.Sprintf("[%s]: %s\n", u.Speaker, u.Text))
	}
	return b.String()
}

// Summarize отправляет выровненный транскрипт и парсит структурированное резюме
func (c *SummaryClient) Summarize(ctx context.Context, aligned []AlignedUtterance) (*MeetingSummary, error) {
	transcript := FormatTranscript(aligned)

	// Ограничиваем размер как в LLM-клиентах для длинных записей
	maxChars := 48000
	if len(transcript) > maxChars {
		transcript = transcript[:maxChars] + "\n...[trimmed]..."
	}

	reqBody := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": summarySystemPrompt},
			{"role": "user", "content": "Meeting transcript:\n\n" + transcript},
		},
		"temperature": 0.3,
	}

	content, err := c.callChat(ctx, reqBody)
	if err != nil {
		return nil, err
	}

	summary, err := parseSummary(content)
	if err != nil {
		return nil, err
	}

	log.Printf("SummaryClient: parsed summary (%d decisions, %d action items)",
		len(summary.Decisions), len(summary.ActionItems))
	return summary, nil
}

// callChat выполняет chat-completion запрос и возвращает текст ответа модели
func (c *SummaryClient) callChat(ctx context.Context, reqBody interface{}) (string, error) {
	jsonBody, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrSummarizationFailed, resp.StatusCode)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", ErrSummarizationFailed, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrSummarizationFailed)
	}

	return strings.TrimSpace(result.Choices[0].Message.Content), nil
}

// parseSummary парсит строгий JSON из ответа модели
// Модели иногда оборачивают JSON в ```-блоки, срезаем их перед парсингом
func parseSummary(content string) (*MeetingSummary, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var summary MeetingSummary
	if err := json.Unmarshal([]byte(content), &summary); err != nil {
		return nil, fmt.Errorf("%w: not parseable JSON: %v", ErrSummarizationFailed, err)
	}
	if summary.Summary == "" {
		return nil, fmt.Errorf("%w: missing summary field", ErrSummarizationFailed)
	}
	return &summary, nil
}
