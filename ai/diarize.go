package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrDiarizationUnavailable сервис диаризации недоступен или вернул мусор
// Фатально для пайплайна: без диаризации выравнивание не выполняется
var ErrDiarizationUnavailable = errors.New("diarization unavailable")

// DiarizationClient клиент внешнего сервиса диаризации
// Endpoint и таймаут передаются явно в конструктор, без глобального состояния
type DiarizationClient struct {
	baseURL string
	client  *http.Client
}

// NewDiarizationClient создаёт клиент диаризации
// Диаризация длинной записи может занимать десятки секунд, отсюда щедрый таймаут
func NewDiarizationClient(baseURL string, timeout time.Duration) *DiarizationClient {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &DiarizationClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// diarizeResponse ответ сервиса: список сегментов в секундах
type diarizeResponse struct {
	Segments []DiarizationSegment `json:"segments"`
}

// Diarize отправляет полное аудио и блокируется до ответа или таймаута
// Пустой список сегментов - валидный ответ (речь не обнаружена)
func (c *DiarizationClient) Diarize(ctx context.Context, audio []byte, filename string) ([]DiarizationSegment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("audio", filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiarizationUnavailable, err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiarizationUnavailable, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiarizationUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/diarize", &body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiarizationUnavailable, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	log.Printf("DiarizationClient: submitting %d bytes to %s", len(audio), c.baseURL)
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiarizationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrDiarizationUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiarizationUnavailable, err)
	}

	var result diarizeResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrDiarizationUnavailable, err)
	}

	log.Printf("DiarizationClient: received %d segments", len(result.Segments))
	return result.Segments, nil
}
