// Package gateway клиент внешнего Persistence Gateway
// Хранение бизнес-записей вынесено за пределы ядра: здесь только
// write-контракт из пяти вызовов поверх gRPC с JSON-кодеком.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"meetscribe/ai"
)

// jsonCodec позволяет использовать gRPC с JSON-пейлоадом вместо protobuf,
// чтобы не генерировать кодеки под простой пятиметодный контракт
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}
func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// RecordStatus статус MeetingRecord
// processing -> completed | failed; терминальные статусы не мутируются
type RecordStatus string

const (
	StatusProcessing RecordStatus = "processing"
	StatusCompleted  RecordStatus = "completed"
	StatusFailed     RecordStatus = "failed"
)

const servicePrefix = "/meetscribe.Gateway/"

// Client gRPC клиент gateway
type Client struct {
	conn *grpc.ClientConn
}

// Dial подключается к gateway
// Поддерживаются tcp-адреса, unix:// сокеты и npipe: на Windows
func Dial(addr string) (*Client, error) {
	target, opts := dialTarget(addr)
	opts = append(opts,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway %s: %w", addr, err)
	}

	log.Printf("gateway: connected to %s", addr)
	return &Client{conn: conn}, nil
}

// Close закрывает соединение
func (c *Client) Close() error {
	return c.conn.Close()
}

type uploadAudioRequest struct {
	Audio    []byte `json:"audio"`
	MimeType string `json:"mimeType"`
}

type uploadAudioResponse struct {
	AudioRef string `json:"audioRef"`
}

// UploadAudio выгружает аудио блоб, возвращает ссылку на него
func (c *Client) UploadAudio(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var resp uploadAudioResponse
	err := c.conn.Invoke(ctx, servicePrefix+"UploadAudio",
		&uploadAudioRequest{Audio: audio, MimeType: mimeType}, &resp)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	return resp.AudioRef, nil
}

type createRecordRequest struct {
	AudioRef        string  `json:"audioRef"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type createRecordResponse struct {
	RecordID string `json:"recordId"`
}

// CreateMeetingRecord создаёт запись встречи в статусе processing
func (c *Client) CreateMeetingRecord(ctx context.Context, audioRef string, durationSeconds float64) (string, error) {
	var resp createRecordResponse
	err := c.conn.Invoke(ctx, servicePrefix+"CreateMeetingRecord",
		&createRecordRequest{AudioRef: audioRef, DurationSeconds: durationSeconds}, &resp)
	if err != nil {
		return "", fmt.Errorf("create meeting record: %w", err)
	}
	return resp.RecordID, nil
}

type appendUtterancesRequest struct {
	RecordID   string                `json:"recordId"`
	Utterances []ai.AlignedUtterance `json:"utterances"`
}

type emptyResponse struct{}

// AppendUtterances сохраняет выровненные реплики (write-once)
func (c *Client) AppendUtterances(ctx context.Context, recordID string, utterances []ai.AlignedUtterance) error {
	err := c.conn.Invoke(ctx, servicePrefix+"AppendUtterances",
		&appendUtterancesRequest{RecordID: recordID, Utterances: utterances}, &emptyResponse{})
	if err != nil {
		return fmt.Errorf("append utterances: %w", err)
	}
	return nil
}

type setSummaryRequest struct {
	RecordID string             `json:"recordId"`
	Summary  *ai.MeetingSummary `json:"summary"`
}

// SetSummary сохраняет резюме встречи
func (c *Client) SetSummary(ctx context.Context, recordID string, summary *ai.MeetingSummary) error {
	err := c.conn.Invoke(ctx, servicePrefix+"SetSummary",
		&setSummaryRequest{RecordID: recordID, Summary: summary}, &emptyResponse{})
	if err != nil {
		return fmt.Errorf("set summary: %w", err)
	}
	return nil
}

type setStatusRequest struct {
	RecordID string       `json:"recordId"`
	Status   RecordStatus `json:"status"`
}

// SetStatus переводит статус записи (единственный путь мутации)
func (c *Client) SetStatus(ctx context.Context, recordID string, status RecordStatus) error {
	err := c.conn.Invoke(ctx, servicePrefix+"SetStatus",
		&setStatusRequest{RecordID: recordID, Status: status}, &emptyResponse{})
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	return nil
}
