package session

import (
	"fmt"
	"os"
	"time"

	gomp3 "github.com/hajimehoshi/go-mp3"
)

// ProbeMP3Duration возвращает длительность MP3-архива сессии
// Используется при повторной обработке сохранённой записи, когда
// wall-clock таймстемпы оригинальной сессии уже недоступны
func ProbeMP3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open mp3: %w", err)
	}
	defer f.Close()

	decoder, err := gomp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("failed to decode mp3: %w", err)
	}

	// go-mp3 отдаёт 16-bit stereo: 4 байта на фрейм
	frames := decoder.Length() / 4
	if frames <= 0 {
		return 0, fmt.Errorf("mp3 has no audio frames")
	}

	return time.Duration(frames) * time.Second / time.Duration(decoder.SampleRate()), nil
}
