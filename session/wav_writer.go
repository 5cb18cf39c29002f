package session

import (
	"bytes"
	"encoding/binary"
)

// PCM16Bytes конвертирует float32 семплы в little-endian PCM16
func PCM16Bytes(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		// Clamp
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// EncodeWAV собирает полный WAV блоб (PCM16 mono) из накопленных семплов
// Размеры известны заранее, поэтому header пишется сразу корректным
func EncodeWAV(samples []float32, sampleRate int) []byte {
	const channels = 1
	const bitsPerSample = 16

	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := uint32(len(samples) * bitsPerSample / 8)

	var buf bytes.Buffer
	buf.Grow(44 + int(dataSize))

	// RIFF header
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	// fmt chunk
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))          // chunk size
	binary.Write(&buf, binary.LittleEndian, uint16(1))           // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))    // channels
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))  // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))    // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))  // block align
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	// data chunk
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(PCM16Bytes(samples))

	return buf.Bytes()
}
