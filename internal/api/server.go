// Package api управляющий WebSocket-слой
// Это "вызывающий слой" ядра: UI-действия start/stop и арбитраж
// единственной активной сессии живут здесь, не в сервисе захвата
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meetscribe/asr"
	"meetscribe/audio"
	"meetscribe/gateway"
	"meetscribe/internal/service"
	"meetscribe/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server управляющий сервер
type Server struct {
	Port     string
	Recorder *service.Recorder
	Post     *service.PostProcessor
	Capture  *audio.Capture

	clients map[*websocket.Conn]bool
	mu      sync.Mutex
}

// NewServer создаёт сервер и подписывает broadcast на события сервисов
func NewServer(port string, recorder *service.Recorder, post *service.PostProcessor, capture *audio.Capture) *Server {
	s := &Server{
		Port:     port,
		Recorder: recorder,
		Post:     post,
		Capture:  capture,
		clients:  make(map[*websocket.Conn]bool),
	}
	s.setupCallbacks()
	return s
}

func (s *Server) setupCallbacks() {
	// Live-превью реплик
	s.Recorder.OnUtterance = func(u asr.Utterance) {
		s.broadcast(Message{Type: "utterance", Utterance: &u})
	}

	// Тикающий счётчик: только side effect для UI
	s.Recorder.OnElapsed = func(elapsed time.Duration, rms float64) {
		s.broadcast(Message{Type: "elapsed", ElapsedMs: elapsed.Milliseconds(), RMS: rms})
	}

	// Одноразовое предупреждение о потере канала транскрипции
	s.Recorder.OnChannelWarning = func(err error) {
		s.broadcast(Message{Type: "channel_warning", Error: err.Error()})
	}

	// Статусы фонового пайплайна
	s.Post.OnStatus = func(recordID string, status gateway.RecordStatus) {
		s.broadcast(Message{Type: "pipeline_status", RecordID: recordID, Status: string(status)})
	}
}

// Start блокирующий запуск HTTP/WebSocket сервера
// Собственный mux - без привязки к http.DefaultServeMux
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)

	log.Printf("api: listening on :%s", s.Port)
	return http.ListenAndServe(":"+s.Port, mux)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: upgrade failed: %v", err)
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		s.handleMessage(conn, msg)
	}
}

func (s *Server) handleMessage(conn *websocket.Conn, msg Message) {
	switch msg.Type {
	case "start_session":
		// Арбитраж единственной сессии: микрофон держит не более
		// одной активной записи
		if s.Recorder.IsActive() {
			s.send(conn, Message{Type: "error", Error: "session already active"})
			return
		}
		if msg.DeviceID != "" {
			if err := s.Capture.SetDevice(msg.DeviceID); err != nil {
				s.send(conn, Message{Type: "error", Error: err.Error()})
				return
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		rec, err := s.Recorder.Start(ctx)
		cancel()
		if err != nil {
			s.send(conn, Message{Type: "error", Error: err.Error()})
			return
		}
		s.broadcast(Message{Type: "session_started", Recording: rec})

	case "stop_session":
		result, err := s.Recorder.Stop(msg.Save)
		if err != nil {
			s.send(conn, Message{Type: "error", Error: err.Error()})
			return
		}

		if !msg.Save {
			s.broadcast(Message{Type: "session_cancelled"})
			return
		}
		s.broadcast(Message{Type: "session_stopped", Recording: result.Recording})

		// Пост-обработка - фоновая задача: её исход наблюдается
		// через статусы записи, а не через ответ на это сообщение
		go s.finalize(result)

	case "status":
		reply := Message{Type: "status", Status: string(session.StateIdle)}
		if rec := s.Recorder.Current(); rec != nil {
			reply.Status = string(rec.State)
			reply.Recording = rec
		}
		s.send(conn, reply)

	case "list_devices":
		devices, err := s.Capture.ListDevices()
		if err != nil {
			s.send(conn, Message{Type: "error", Error: err.Error()})
			return
		}
		s.send(conn, Message{Type: "devices", Devices: devices})

	case "reprocess":
		go func(dir string) {
			if _, err := s.Post.Reprocess(context.Background(), dir); err != nil {
				s.broadcast(Message{Type: "error", Error: err.Error()})
			}
		}(msg.SessionDir)

	default:
		s.send(conn, Message{Type: "error", Error: "unknown message type: " + msg.Type})
	}
}

func (s *Server) finalize(result *service.StopResult) {
	recordID, err := s.Post.Finalize(context.Background(), result)
	if err != nil {
		// Пустая запись или неудачная выгрузка: MeetingRecord не создан
		if errors.Is(err, session.ErrEmptyRecording) {
			log.Printf("api: session %s: empty recording, no record created", result.Recording.ID)
		} else {
			log.Printf("api: session %s: finalize failed: %v", result.Recording.ID, err)
		}
		s.broadcast(Message{Type: "finalize_error", Error: err.Error()})
		return
	}
	s.broadcast(Message{Type: "record_created", RecordID: recordID})
}

func (s *Server) send(conn *websocket.Conn, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("api: write failed: %v", err)
	}
}

// broadcast рассылает сообщение всем клиентам
// Глобальный lock сериализует записи: WriteJSON не потокобезопасен
func (s *Server) broadcast(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) == 0 {
		return
	}
	for conn := range s.clients {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("api: broadcast failed, dropping client: %v", err)
			conn.Close()
			delete(s.clients, conn)
		}
	}
}
