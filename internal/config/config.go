package config

import (
	"flag"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config конфигурация бэкенда
// Эндпоинты и ключи внешних сервисов передаются в конструкторы клиентов
// явно - без модульного изменяемого состояния
type Config struct {
	DataDir string
	Port    string

	// Live ASR канал
	ASRURL string
	ASRKey string

	// Сервис диаризации
	DiarizeURL     string
	DiarizeTimeout time.Duration

	// Сервис суммаризации (chat-completion API)
	SummaryURL   string
	SummaryKey   string
	SummaryModel string

	// Persistence Gateway (tcp-адрес, unix:// или npipe:)
	GatewayAddr string

	// Настраиваемые пороги с наблюдаемыми значениями по умолчанию
	IoUThreshold float64
	SilenceMs    int
}

// Load читает .env, переменные окружения и флаги
func Load() *Config {
	// .env опционален - отсутствие не ошибка
	if err := godotenv.Load(); err == nil {
		log.Println("config: loaded .env")
	}

	dataDir := flag.String("data", envOr("MEETSCRIBE_DATA_DIR", "data/sessions"), "Directory for session archives")
	port := flag.String("port", envOr("MEETSCRIBE_PORT", "8080"), "Control server port")
	flag.Parse()

	return &Config{
		DataDir: *dataDir,
		Port:    *port,

		ASRURL: envOr("MEETSCRIBE_ASR_URL", "wss://localhost:9001/realtime"),
		ASRKey: os.Getenv("MEETSCRIBE_ASR_KEY"),

		DiarizeURL:     envOr("MEETSCRIBE_DIARIZE_URL", "http://localhost:9002"),
		DiarizeTimeout: envDuration("MEETSCRIBE_DIARIZE_TIMEOUT", 120*time.Second),

		SummaryURL:   envOr("MEETSCRIBE_SUMMARY_URL", "http://localhost:9003"),
		SummaryKey:   os.Getenv("MEETSCRIBE_SUMMARY_KEY"),
		SummaryModel: envOr("MEETSCRIBE_SUMMARY_MODEL", "gpt-4o-mini"),

		GatewayAddr: envOr("MEETSCRIBE_GATEWAY_ADDR", "localhost:9004"),

		IoUThreshold: envFloat("MEETSCRIBE_IOU_THRESHOLD", 0.30),
		SilenceMs:    envInt("MEETSCRIBE_SILENCE_MS", 800),
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("config: invalid %s=%q, using default %d", key, v, def)
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("config: invalid %s=%q, using default %g", key, v, def)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("config: invalid %s=%q, using default %v", key, v, def)
	}
	return def
}
