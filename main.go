package main

import (
	"context"
	"log"
	"time"

	"meetscribe/ai"
	"meetscribe/asr"
	"meetscribe/audio"
	"meetscribe/gateway"
	"meetscribe/internal/api"
	"meetscribe/internal/config"
	"meetscribe/internal/service"
)

func main() {
	log.Println("meetscribe backend starting...")

	cfg := config.Load()
	log.Printf("Data directory: %s", cfg.DataDir)

	capture, err := audio.NewCapture()
	if err != nil {
		log.Fatalf("Failed to init audio capture: %v", err)
	}
	defer capture.Close()

	gw, err := gateway.Dial(cfg.GatewayAddr)
	if err != nil {
		log.Fatalf("Failed to dial persistence gateway: %v", err)
	}
	defer gw.Close()

	diarizer := ai.NewDiarizationClient(cfg.DiarizeURL, cfg.DiarizeTimeout)
	aligner := ai.NewAligner(cfg.IoUThreshold)
	summarizer := ai.NewSummaryClient(cfg.SummaryURL, cfg.SummaryKey, cfg.SummaryModel, 5*time.Minute)

	// Канал транскрипции открывается заново на каждую сессию
	dial := func(ctx context.Context, onUtterance func(asr.Utterance), onWarning func(error)) (service.TranscriptStream, error) {
		return asr.Dial(ctx, asr.Config{
			URL:         cfg.ASRURL,
			APIKey:      cfg.ASRKey,
			SampleRate:  audio.SampleRate,
			SilenceMs:   cfg.SilenceMs,
			OnUtterance: onUtterance,
			OnWarning:   onWarning,
		})
	}

	recorder := service.NewRecorder(capture, dial, cfg.DataDir)
	post := service.NewPostProcessor(gw, diarizer, aligner, summarizer)

	server := api.NewServer(cfg.Port, recorder, post, capture)
	if err := server.Start(); err != nil {
		log.Fatalf("Control server failed: %v", err)
	}
}
