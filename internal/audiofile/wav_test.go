package audiofile

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sine(freq float64, rate int, duration float64) Buffer {
	n := int(duration * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return Buffer{Samples: samples, Rate: rate}
}

func TestDuration(t *testing.T) {
	b := sine(220, 16000, 1.5)
	if d := b.Duration(); math.Abs(d-1.5) > 1e-3 {
		t.Errorf("Duration = %v, want 1.5", d)
	}
	if (Buffer{}).Duration() != 0 {
		t.Error("empty buffer duration should be 0")
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	in := sine(220, 16000, 0.25)
	path := filepath.Join(t.TempDir(), "tone.wav")

	if err := WriteWAV(path, in); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	out, err := ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}

	if out.Rate != in.Rate {
		t.Errorf("rate = %d, want %d", out.Rate, in.Rate)
	}
	if len(out.Samples) != len(in.Samples) {
		t.Fatalf("samples = %d, want %d", len(out.Samples), len(in.Samples))
	}
	// 16-bit quantization tolerance
	for i := range in.Samples {
		if math.Abs(out.Samples[i]-in.Samples[i]) > 1.0/32768*2 {
			t.Fatalf("sample %d = %v, want %v", i, out.Samples[i], in.Samples[i])
		}
	}
}

func TestWriteWAV_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "tone.wav")
	if err := WriteWAV(path, sine(220, 8000, 0.1)); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("output missing: %v", err)
	}
}

func TestWriteWAV_NoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	if err := WriteWAV(filepath.Join(dir, "tone.wav"), sine(220, 8000, 0.1)); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".vocode-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadWAV_NotAWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadWAV(path); err == nil {
		t.Error("ReadWAV should reject a non-WAV file")
	}
}

func TestEncode(t *testing.T) {
	data, err := Encode(sine(220, 8000, 0.1))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(data) < 44 {
		t.Fatalf("encoded size = %d, want at least a WAV header", len(data))
	}
	if string(data[:4]) != "RIFF" {
		t.Errorf("header = %q, want RIFF", data[:4])
	}
}
