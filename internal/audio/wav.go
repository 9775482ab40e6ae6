package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// EncodeWAV wraps mono PCM16 samples in a RIFF/WAVE container.
func EncodeWAV(pcm []int16, sampleRate int) []byte {
	dataSize := uint32(len(pcm) * 2)
	fileSize := 36 + dataSize

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm)*2)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, fileSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(2))            // block align
	binary.Write(&buf, binary.LittleEndian, uint16(16))           // bits per sample

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataSize)
	binary.Write(&buf, binary.LittleEndian, pcm)

	return buf.Bytes()
}

// SniffFormat identifies a container from its magic bytes.
// Returns "wav", "mp3", "ogg", "flac" or "unknown".
func SniffFormat(data []byte) string {
	if len(data) < 4 {
		return "unknown"
	}
	switch {
	case string(data[:4]) == "RIFF" && len(data) >= 12 && string(data[8:12]) == "WAVE":
		return "wav"
	case string(data[:4]) == "OggS":
		return "ogg"
	case string(data[:4]) == "fLaC":
		return "flac"
	case string(data[:3]) == "ID3":
		return "mp3"
	case data[0] == 0xFF && (data[1]&0xE0) == 0xE0:
		return "mp3"
	}
	return "unknown"
}

// DecodeWAV extracts mono PCM16 samples and the sample rate from a RIFF/WAVE
// container produced by EncodeWAV. Used by tests and the playback path.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if SniffFormat(data) != "wav" {
		return nil, 0, fmt.Errorf("not a WAV container")
	}
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("WAV too short: %d bytes", len(data))
	}
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	bits := binary.LittleEndian.Uint16(data[34:36])
	if bits != 16 {
		return nil, 0, fmt.Errorf("unsupported sample width: %d bits", bits)
	}
	// Scan chunks for "data"; EncodeWAV puts it at offset 36 but other
	// writers may insert LIST chunks first.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		if id == "data" {
			end := off + 8 + size
			if end > len(data) {
				end = len(data)
			}
			return DecodePCM(data[off+8 : end]), sampleRate, nil
		}
		off += 8 + size
	}
	return nil, 0, fmt.Errorf("WAV data chunk not found")
}
