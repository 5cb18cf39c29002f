package asr

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrChannel ошибка потокового канала транскрипции
// После старта записи не фатальна: деградирует только live-превью
var ErrChannel = errors.New("transcription channel error")

// DefaultSilenceMs порог тишины server-side VAD по умолчанию
// Наблюдаемое значение, настраивается через конфиг
const DefaultSilenceMs = 800

// Config параметры открытия канала
// Коллбеки фиксируются до запуска насосов - после Dial их менять нельзя
type Config struct {
	URL        string
	APIKey     string
	SampleRate int
	SilenceMs  int

	// OnUtterance вызывается на каждую построенную реплику (live-превью)
	OnUtterance func(u Utterance)
	// OnWarning одноразовое предупреждение о потере канала (не фатально)
	OnWarning func(err error)
}

// Channel постоянный duplex-стрим к ASR сервису, открывается раз на сессию
type Channel struct {
	conn  *websocket.Conn
	start time.Time

	events chan TranscriptEvent
	sendQ  chan []byte
	done   chan struct{}

	mu         sync.Mutex
	utterances []Utterance
	closed     bool

	warnOnce    sync.Once
	onWarning   func(err error)
	onUtterance func(u Utterance)
}

// Dial открывает канал и отправляет одноразовую конфигурацию сессии
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.SilenceMs <= 0 {
		cfg.SilenceMs = DefaultSilenceMs
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrChannel, cfg.URL, err)
	}

	update := sessionUpdate{
		Type: typeSessionUpdate,
		Session: sessionConfig{
			InputAudioFormat: "pcm16",
			SampleRateHz:     cfg.SampleRate,
			TurnDetection: turnDetection{
				Type:              "server_vad",
				SilenceDurationMs: cfg.SilenceMs,
			},
			Transcription: transcriptionOpts{Quality: "high"},
		},
	}
	if err := conn.WriteJSON(update); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: session.update: %v", ErrChannel, err)
	}

	ch := &Channel{
		conn:        conn,
		start:       time.Now(),
		events:      make(chan TranscriptEvent, 64),
		sendQ:       make(chan []byte, 64),
		done:        make(chan struct{}),
		onWarning:   cfg.OnWarning,
		onUtterance: cfg.OnUtterance,
	}

	go ch.readPump()
	go ch.sendPump()
	go ch.consumeEvents()

	log.Printf("asr: channel opened (%s, vad silence=%dms)", cfg.URL, cfg.SilenceMs)
	return ch, nil
}

// SendAudio ставит PCM16 чанк в очередь отправки
// Никогда не блокирует вызывающего: при переполненной очереди чанк
// отбрасывается - локальное накопление аудио важнее live-превью
func (c *Channel) SendAudio(pcm []byte) {
	select {
	case <-c.done:
	case c.sendQ <- pcm:
	default:
		c.warn(fmt.Errorf("%w: send queue full, dropping chunk", ErrChannel))
	}
}

// sendPump единственный писатель в websocket после открытия
func (c *Channel) sendPump() {
	for {
		select {
		case <-c.done:
			return
		case pcm := <-c.sendQ:
			msg := audioAppend{
				Type:  typeAudioAppend,
				Audio: base64.StdEncoding.EncodeToString(pcm),
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.warn(fmt.Errorf("%w: write: %v", ErrChannel, err))
				return
			}
		}
	}
}

// readPump читает события сервиса и складывает типизированные события в канал
func (c *Channel) readPump() {
	defer close(c.events)
	for {
		var ev serverEvent
		if err := c.conn.ReadJSON(&ev); err != nil {
			select {
			case <-c.done:
				// Штатное закрытие
			default:
				c.warn(fmt.Errorf("%w: read: %v", ErrChannel, err))
			}
			return
		}

		switch ev.Type {
		case typeTranscriptionCompleted:
			if strings.TrimSpace(ev.Transcript) == "" {
				continue
			}
			c.events <- TranscriptEvent{
				Transcript: ev.Transcript,
				StartSec:   ev.StartTime,
				ElapsedMs:  time.Since(c.start).Milliseconds(),
			}
		case typeError:
			c.warn(fmt.Errorf("%w: server: %s", ErrChannel, ev.Error))
		default:
			// Прочие события сервиса игнорируем
		}
	}
}

// consumeEvents строит Utterance из событий - отдельно от транспорта
func (c *Channel) consumeEvents() {
	for ev := range c.events {
		u := buildUtterance(ev)

		c.mu.Lock()
		c.utterances = append(c.utterances, u)
		c.mu.Unlock()

		if c.onUtterance != nil {
			c.onUtterance(u)
		}
	}
}

// buildUtterance вычисляет оффсеты реплики относительно старта сессии
// С reported offset берём его как есть; без него оцениваем начало как
// момент получения минус примерную длительность произнесения
func buildUtterance(ev TranscriptEvent) Utterance {
	endMs := ev.ElapsedMs

	var startMs int64
	if ev.StartSec != nil {
		startMs = int64(*ev.StartSec * 1000.0)
	} else {
		startMs = endMs - estimateDurationMs(ev.Transcript)
		if startMs < 0 {
			startMs = 0
		}
	}

	// Инвариант end > start обязан выполняться и на вырожденных событиях
	if endMs <= startMs {
		endMs = startMs + 1
	}

	return Utterance{StartMs: startMs, EndMs: endMs, Text: ev.Transcript}
}

// estimateDurationMs грубая оценка длительности реплики по числу слов
// ~330ms на слово, ограничено диапазоном [500ms, 15s]
func estimateDurationMs(text string) int64 {
	words := int64(len(strings.Fields(text)))
	est := words * 330
	if est < 500 {
		est = 500
	}
	if est > 15000 {
		est = 15000
	}
	return est
}

// Utterances возвращает снимок собранных реплик в порядке получения
func (c *Channel) Utterances() []Utterance {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Utterance, len(c.utterances))
	copy(out, c.utterances)
	return out
}

func (c *Channel) warn(err error) {
	c.warnOnce.Do(func() {
		log.Printf("asr: %v", err)
		if c.onWarning != nil {
			c.onWarning(err)
		}
	})
}

// Close закрывает канал; повторные вызовы безопасны
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
