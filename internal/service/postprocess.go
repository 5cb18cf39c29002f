package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"meetscribe/ai"
	"meetscribe/asr"
	"meetscribe/gateway"
	"meetscribe/session"
)

// Gateway write-контракт внешнего Persistence Gateway
type Gateway interface {
	UploadAudio(ctx context.Context, audio []byte, mimeType string) (string, error)
	CreateMeetingRecord(ctx context.Context, audioRef string, durationSeconds float64) (string, error)
	AppendUtterances(ctx context.Context, recordID string, utterances []ai.AlignedUtterance) error
	SetSummary(ctx context.Context, recordID string, summary *ai.MeetingSummary) error
	SetStatus(ctx context.Context, recordID string, status gateway.RecordStatus) error
}

// Diarizer клиент сервиса диаризации
type Diarizer interface {
	Diarize(ctx context.Context, audio []byte, filename string) ([]ai.DiarizationSegment, error)
}

// Summarizer клиент сервиса суммаризации
type Summarizer interface {
	Summarize(ctx context.Context, aligned []ai.AlignedUtterance) (*ai.MeetingSummary, error)
}

// PostProcessor финализатор записи и фоновый пайплайн
// diarize -> align -> summarize -> persist
// Ошибки пайплайна не пробрасываются наружу: они переводят статус
// MeetingRecord в failed, результат наблюдается по самой записи
type PostProcessor struct {
	gw         Gateway
	diarizer   Diarizer
	aligner    *ai.Aligner
	summarizer Summarizer

	// OnStatus уведомление UI о смене статуса записи
	OnStatus func(recordID string, status gateway.RecordStatus)
}

// NewPostProcessor создаёт финализатор
func NewPostProcessor(gw Gateway, diarizer Diarizer, aligner *ai.Aligner, summarizer Summarizer) *PostProcessor {
	return &PostProcessor{
		gw:         gw,
		diarizer:   diarizer,
		aligner:    aligner,
		summarizer: summarizer,
	}
}

// convertUtterances конвертирует реплики канала в формат движка выравнивания
func convertUtterances(in []asr.Utterance) []ai.Utterance {
	out := make([]ai.Utterance, len(in))
	for i, u := range in {
		out[i] = ai.Utterance{StartMs: u.StartMs, EndMs: u.EndMs, Text: u.Text}
	}
	return out
}

// Finalize собирает блоб, создаёт MeetingRecord и прогоняет пайплайн
// Ошибки до создания записи (пустая запись, неудачная выгрузка)
// возвращаются вызывающему - частичная запись не сохраняется.
// Ошибки после создания записи отражаются в её статусе
func (p *PostProcessor) Finalize(ctx context.Context, result *StopResult) (string, error) {
	if len(result.Samples) == 0 {
		return "", session.ErrEmptyRecording
	}

	blob := session.EncodeWAV(result.Samples, session.SampleRate)
	durationSeconds := result.Recording.Duration().Seconds()

	audioRef, err := p.gw.UploadAudio(ctx, blob, "audio/wav")
	if err != nil {
		return "", fmt.Errorf("audio upload failed: %w", err)
	}

	recordID, err := p.gw.CreateMeetingRecord(ctx, audioRef, durationSeconds)
	if err != nil {
		return "", fmt.Errorf("record creation failed: %w", err)
	}
	p.notify(recordID, gateway.StatusProcessing)

	log.Printf("PostProcessor: record %s created (%.1fs, %d bytes)", recordID, durationSeconds, len(blob))
	p.run(ctx, recordID, blob, "meeting.wav", result.Utterances)
	return recordID, nil
}

// Reprocess повторно прогоняет пайплайн по архиву сохранённой сессии
// Длительность берётся из самого MP3 - wall-clock таймстемпов уже нет
func (p *PostProcessor) Reprocess(ctx context.Context, sessionDir string) (string, error) {
	mp3Path := filepath.Join(sessionDir, "full.mp3")
	duration, err := session.ProbeMP3Duration(mp3Path)
	if err != nil {
		return "", err
	}

	blob, err := os.ReadFile(mp3Path)
	if err != nil {
		return "", fmt.Errorf("failed to read archive: %w", err)
	}
	if len(blob) == 0 {
		return "", session.ErrEmptyRecording
	}

	utterances, err := loadUtteranceLog(filepath.Join(sessionDir, "utterances.json"))
	if err != nil {
		return "", err
	}

	audioRef, err := p.gw.UploadAudio(ctx, blob, "audio/mpeg")
	if err != nil {
		return "", fmt.Errorf("audio upload failed: %w", err)
	}

	recordID, err := p.gw.CreateMeetingRecord(ctx, audioRef, duration.Seconds())
	if err != nil {
		return "", fmt.Errorf("record creation failed: %w", err)
	}
	p.notify(recordID, gateway.StatusProcessing)

	log.Printf("PostProcessor: reprocessing %s as record %s", sessionDir, recordID)
	p.run(ctx, recordID, blob, "meeting.mp3", utterances)
	return recordID, nil
}

// run фоновый пайплайн после создания записи
// Любой фатальный сбой оставляет запись в failed с уже сохранёнными
// частичными данными - ничего не удаляется молча
func (p *PostProcessor) run(ctx context.Context, recordID string, blob []byte, filename string, utterances []asr.Utterance) {
	// 1. Диаризация - жёсткая зависимость, без неё выравнивание не выполняется
	segments, err := p.diarizer.Diarize(ctx, blob, filename)
	if err != nil {
		log.Printf("PostProcessor: record %s: %v", recordID, err)
		p.fail(ctx, recordID)
		return
	}

	// 2. Выравнивание: реплики ASR против сегментов спикеров
	// Пустой список сегментов валиден - все реплики станут "unknown"
	aligned := p.aligner.Align(convertUtterances(utterances), segments)

	if err := p.gw.AppendUtterances(ctx, recordID, aligned); err != nil {
		log.Printf("PostProcessor: record %s: %v", recordID, err)
		p.fail(ctx, recordID)
		return
	}

	// 3. Суммаризация - допустимый частичный успех:
	// реплики уже сохранены, при сбое остаёмся без резюме
	summary, err := p.summarizer.Summarize(ctx, aligned)
	if err != nil {
		log.Printf("PostProcessor: record %s: %v", recordID, err)
		p.fail(ctx, recordID)
		return
	}

	if err := p.gw.SetSummary(ctx, recordID, summary); err != nil {
		log.Printf("PostProcessor: record %s: %v", recordID, err)
		p.fail(ctx, recordID)
		return
	}

	if err := p.gw.SetStatus(ctx, recordID, gateway.StatusCompleted); err != nil {
		log.Printf("PostProcessor: record %s: failed to set status: %v", recordID, err)
		return
	}
	p.notify(recordID, gateway.StatusCompleted)
	log.Printf("PostProcessor: record %s completed (%d aligned utterances)", recordID, len(aligned))
}

func (p *PostProcessor) fail(ctx context.Context, recordID string) {
	if err := p.gw.SetStatus(ctx, recordID, gateway.StatusFailed); err != nil {
		log.Printf("PostProcessor: record %s: failed to set failed status: %v", recordID, err)
	}
	p.notify(recordID, gateway.StatusFailed)
}

func (p *PostProcessor) notify(recordID string, status gateway.RecordStatus) {
	if p.OnStatus != nil {
		p.OnStatus(recordID, status)
	}
}

func loadUtteranceLog(path string) ([]asr.Utterance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read utterance log: %w", err)
	}
	var utterances []asr.Utterance
	if err := json.Unmarshal(data, &utterances); err != nil {
		return nil, fmt.Errorf("malformed utterance log: %w", err)
	}
	return utterances, nil
}
