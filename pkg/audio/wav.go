package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVContentType is the MIME type of clips produced by EncodeWAV.
const WAVContentType = "audio/wav"

// wavHeader is the canonical 44-byte RIFF/WAVE header for 16-bit PCM.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

const wavHeaderSize = 44

// ErrInvalidWAV is returned by DecodeWAV for data that is not a 16-bit PCM
// RIFF/WAVE file with a canonical header.
var ErrInvalidWAV = errors.New("audio: invalid WAV data")

// EncodeWAV wraps 16-bit little-endian PCM in a RIFF/WAVE container.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if f.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: encode wav: sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return nil, fmt.Errorf("audio: encode wav: channels must be positive, got %d", f.Channels)
	}
	if len(pcm)%(BytesPerSample*f.Channels) != 0 {
		return nil, fmt.Errorf("audio: encode wav: %d bytes is not a whole number of %s frames", len(pcm), f)
	}

	blockAlign := uint16(f.Channels * BytesPerSample)
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + len(pcm)),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate) * uint32(blockAlign),
		BlockAlign:    blockAlign,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(len(pcm)),
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("audio: encode wav: write header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// DecodeWAV returns the PCM payload and format of a canonical 16-bit WAV file.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < wavHeaderSize {
		return nil, Format{}, fmt.Errorf("%w: %d bytes is shorter than the header", ErrInvalidWAV, len(data))
	}
	var h wavHeader
	if err := binary.Read(bytes.NewReader(data[:wavHeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, Format{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" || string(h.Subchunk2ID[:]) != "data" {
		return nil, Format{}, fmt.Errorf("%w: missing RIFF/WAVE/data markers", ErrInvalidWAV)
	}
	if h.AudioFormat != 1 || h.BitsPerSample != 16 {
		return nil, Format{}, fmt.Errorf("%w: want 16-bit PCM, got format %d with %d bits", ErrInvalidWAV, h.AudioFormat, h.BitsPerSample)
	}
	end := wavHeaderSize + int(h.Subchunk2Size)
	if end > len(data) {
		end = len(data)
	}
	return data[wavHeaderSize:end], Format{SampleRate: int(h.SampleRate), Channels: int(h.NumChannels)}, nil
}

// IsWAV reports whether data starts with a RIFF/WAVE container header. Unlike
// DecodeWAV it accepts files with extra chunks or non-PCM payloads.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}
