// Package audio захват аудио с микрофона через malgo (miniaudio)
package audio

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrDeviceUnavailable ни одно устройство захвата не дало доступ
var ErrDeviceUnavailable = errors.New("capture device unavailable")

// SampleRate частота захвата: 16kHz mono - целевой формат ASR
const SampleRate = 16000

// AudioDevice аудио устройство для выбора в UI
type AudioDevice struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsInput bool   `json:"isInput"`
}

// Capture управляет захватом с микрофона
// Одновременно устройство держит не более одной активной сессии -
// арбитраж конкуренции лежит на вызывающем слое
type Capture struct {
	ctx *malgo.AllocatedContext

	micDevice   *malgo.Device
	micDeviceID *malgo.DeviceID

	dataChan chan []float32
	mu       sync.Mutex
	running  bool
}

// NewCapture инициализирует аудио контекст
func NewCapture() (*Capture, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	return &Capture{
		ctx:      ctx,
		dataChan: make(chan []float32, 1000), // Большой буфер чтобы не терять данные
	}, nil
}

// ListDevices возвращает доступные устройства захвата
func (c *Capture) ListDevices() ([]AudioDevice, error) {
	captureDevices, err := c.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate capture devices: %w", err)
	}

	var devices []AudioDevice
	for _, dev := range captureDevices {
		devices = append(devices, AudioDevice{
			ID:      deviceIDToString(dev.ID),
			Name:    dev.Name(),
			IsInput: true,
		})
	}
	return devices, nil
}

// SetDevice устанавливает устройство микрофона по ID
// Пустой ID или "default" - системное устройство по умолчанию
func (c *Capture) SetDevice(deviceID string) error {
	if deviceID == "" || deviceID == "default" {
		c.micDeviceID = nil
		return nil
	}

	id, err := stringToDeviceID(deviceID)
	if err != nil {
		return err
	}
	c.micDeviceID = id
	return nil
}

// Start запускает захват: mono, 16kHz, echo/noise suppression на стороне ОС
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("already running")
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = SampleRate
	deviceConfig.Alsa.NoMMap = 1

	if c.micDeviceID != nil {
		deviceConfig.Capture.DeviceID = c.micDeviceID.Pointer()
	}

	onRecvFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		sampleCount := int(framecount)
		if len(pInputSamples) != sampleCount*4 {
			return
		}

		samples := make([]float32, sampleCount)
		for i := 0; i < sampleCount; i++ {
			bits := uint32(pInputSamples[i*4]) | uint32(pInputSamples[i*4+1])<<8 |
				uint32(pInputSamples[i*4+2])<<16 | uint32(pInputSamples[i*4+3])<<24
			samples[i] = math.Float32frombits(bits)
		}

		// Блокируемся если буфер полон - данные важнее задержки
		c.dataChan <- samples
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	c.micDevice = device
	c.running = true
	log.Println("audio: microphone capture started")
	return nil
}

// Stop останавливает захват и освобождает устройство
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}

	if c.micDevice != nil {
		c.micDevice.Uninit()
		c.micDevice = nil
	}

	c.running = false
	log.Println("audio: microphone capture stopped")
	return nil
}

// Data канал с захваченными семплами
func (c *Capture) Data() <-chan []float32 {
	return c.dataChan
}

// ClearBuffers выбрасывает накопленные данные перед новой записью
func (c *Capture) ClearBuffers() {
	for {
		select {
		case <-c.dataChan:
		default:
			return
		}
	}
}

// Close освобождает ресурсы
func (c *Capture) Close() {
	c.Stop()
	if c.ctx != nil {
		c.ctx.Uninit()
		c.ctx.Free()
	}
}

func deviceIDToString(id malgo.DeviceID) string {
	var result strings.Builder
	for _, b := range id[:32] {
		if b == 0 {
			break
		}
		result.WriteByte(b)
	}
	return result.String()
}

func stringToDeviceID(s string) (*malgo.DeviceID, error) {
	if len(s) > 32 {
		return nil, fmt.Errorf("device ID too long")
	}
	var id malgo.DeviceID
	copy(id[:], []byte(s))
	return &id, nil
}
