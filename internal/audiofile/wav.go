// Package audiofile reads and writes the mono WAV buffers the vocoder
// operates on.
package audiofile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const writeBitDepth = 16

// Buffer is a mono audio signal: float64 samples in [-1, 1] plus the sample
// rate in Hz. Buffers are treated as immutable once loaded.
type Buffer struct {
	Samples []float64
	Rate    int
}

// Duration returns the buffer length in seconds.
func (b Buffer) Duration() float64 {
	if b.Rate == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.Rate)
}

// ReadWAV decodes a mono WAV file into a Buffer.
func ReadWAV(path string) (Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return Buffer{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Buffer{}, fmt.Errorf("decode audio %s: not a valid WAV file", path)
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return Buffer{}, fmt.Errorf("decode audio %s: %w", path, err)
	}
	if pcm.Format.NumChannels != 1 {
		return Buffer{}, fmt.Errorf("decode audio %s: %d channels, want mono", path, pcm.Format.NumChannels)
	}

	scale := 1 << (pcm.SourceBitDepth - 1)
	samples := make([]float64, len(pcm.Data))
	for i, v := range pcm.Data {
		samples[i] = float64(v) / float64(scale)
	}
	return Buffer{Samples: samples, Rate: pcm.Format.SampleRate}, nil
}

// WriteWAV encodes a Buffer as 16-bit mono PCM at path. The write is atomic:
// data goes to a temp file in the destination directory and is renamed into
// place only once fully encoded, so a failed item never leaves partial output.
func WriteWAV(path string, b Buffer) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".vocode-*.wav")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()

	if err := encode(tmp, b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Encode returns the Buffer as WAV-container bytes, for sinks that don't
// write to the local filesystem.
func Encode(b Buffer) ([]byte, error) {
	tmp, err := os.CreateTemp("", ".vocode-enc-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := encode(tmp, b); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, err
	}
	return os.ReadFile(tmpPath)
}

// encode writes b through the WAV encoder. The encoder needs a WriteSeeker
// to patch the header, hence *os.File rather than io.Writer.
func encode(f *os.File, b Buffer) error {
	clip := 1<<(writeBitDepth-1) - 1
	data := make([]int, len(b.Samples))
	for i, s := range b.Samples {
		v := int(s * float64(1<<(writeBitDepth-1)))
		if v > clip {
			v = clip
		} else if v < -clip-1 {
			v = -clip - 1
		}
		data[i] = v
	}

	e := wav.NewEncoder(f, b.Rate, writeBitDepth, 1, 1)
	if err := e.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: b.Rate},
		Data:           data,
		SourceBitDepth: writeBitDepth,
	}); err != nil {
		return err
	}
	return e.Close()
}
