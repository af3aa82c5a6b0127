package vocode

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sbinet/npyio"

	"github.com/snarg/psola/internal/align"
	"github.com/snarg/psola/internal/audiofile"
	"github.com/snarg/psola/internal/pitch"
	"github.com/snarg/psola/internal/praat/mock"
	"github.com/snarg/psola/internal/storage"
)

func testPipeline(eng *mock.Engine) *Pipeline {
	return &Pipeline{
		Engine: eng,
		Bounds: pitch.Bounds{Min: 40, Max: 500},
		Sink:   storage.NewLocalSink(),
		Log:    zerolog.Nop(),
	}
}

func tone(rate int, duration float64) audiofile.Buffer {
	n := int(duration * float64(rate))
	samples := make([]float64, n)
	for i := range samples {
		samples[i] = 0.4 * math.Sin(2*math.Pi*220*float64(i)/float64(rate))
	}
	return audiofile.Buffer{Samples: samples, Rate: rate}
}

func TestVocode_PitchOnlyPreservesDuration(t *testing.T) {
	eng := &mock.Engine{}
	p := testPipeline(eng)
	in := tone(16000, 1.0)
	contour := pitch.Contour{150, 160, math.NaN(), 170}

	out, err := p.Vocode(context.Background(), in, NoStretch(), contour)
	if err != nil {
		t.Fatalf("Vocode: %v", err)
	}
	if out.Rate != in.Rate {
		t.Errorf("rate = %d, want %d", out.Rate, in.Rate)
	}
	if len(out.Samples) != len(in.Samples) {
		t.Errorf("duration changed: %d samples, want %d", len(out.Samples), len(in.Samples))
	}
	if eng.Calls() != 1 {
		t.Errorf("engine calls = %d, want 1", eng.Calls())
	}
	if eng.Requests[0].TimeWarp != nil {
		t.Error("pitch-only request should carry no time-warp")
	}
}

func TestVocode_ConstantStretchScalesDuration(t *testing.T) {
	eng := &mock.Engine{}
	p := testPipeline(eng)
	in := tone(16000, 1.0)

	out, err := p.Vocode(context.Background(), in, ConstantStretch(2.0), nil)
	if err != nil {
		t.Fatalf("Vocode: %v", err)
	}
	wantDur := in.Duration() / 2.0
	if got := out.Duration(); math.Abs(got-wantDur) > 0.01 {
		t.Errorf("duration = %v, want ~%v", got, wantDur)
	}
}

func TestVocode_NoOpReturnsInputUnchanged(t *testing.T) {
	eng := &mock.Engine{}
	p := testPipeline(eng)
	in := tone(16000, 0.5)

	out, err := p.Vocode(context.Background(), in, NoStretch(), nil)
	if err != nil {
		t.Fatalf("Vocode: %v", err)
	}
	if out.Rate != in.Rate || len(out.Samples) != len(in.Samples) {
		t.Errorf("no-op changed shape: %d @ %d, want %d @ %d",
			len(out.Samples), out.Rate, len(in.Samples), in.Rate)
	}
	for i := range in.Samples {
		if out.Samples[i] != in.Samples[i] {
			t.Fatal("no-op must return input samples unchanged")
		}
	}
}

func TestVocode_InvalidBounds(t *testing.T) {
	p := testPipeline(&mock.Engine{})
	for _, b := range []pitch.Bounds{{Min: 0, Max: 100}, {Min: 200, Max: 100}} {
		p.Bounds = b
		_, err := p.Vocode(context.Background(), tone(16000, 0.5), NoStretch(), pitch.Contour{100})
		if !errors.Is(err, pitch.ErrInvalidFrequencyBounds) {
			t.Errorf("bounds %+v: err = %v, want ErrInvalidFrequencyBounds", b, err)
		}
	}
}

func TestVocode_AlignmentMismatch(t *testing.T) {
	p := testPipeline(&mock.Engine{})
	src := testAlignment(0.2, 0.2, 0.2, 0.2, 0.2)
	tgt := testAlignment(0.2, 0.2, 0.2, 0.2)

	_, err := p.Vocode(context.Background(), tone(16000, 1.0), AlignedStretch(src, tgt), nil)
	if !errors.Is(err, align.ErrAlignmentMismatch) {
		t.Fatalf("err = %v, want ErrAlignmentMismatch", err)
	}
}

func testAlignment(durations ...float64) *align.Alignment {
	var ps []align.Phoneme
	start := 0.0
	for i, d := range durations {
		ps = append(ps, align.Phoneme{Label: string(rune('A' + i)), Start: start, End: start + d})
		start += d
	}
	return &align.Alignment{Words: []align.Word{{Label: "w", Start: 0, End: start, Phonemes: ps}}}
}

func writeTestAlignment(t *testing.T, dir, name string, durations ...float64) string {
	t.Helper()
	a := testAlignment(durations...)
	path := filepath.Join(dir, name)
	data := "{\"words\": [{\"alignedWord\": \"w\", \"start\": 0, \"end\": 1, \"phonemes\": ["
	for i, p := range a.Words[0].Phonemes {
		if i > 0 {
			data += ","
		}
		data += "{\"phoneme\": \"" + p.Label + "\", " +
			"\"start\": " + formatF(p.Start) + ", \"end\": " + formatF(p.End) + "}"
	}
	data += "]}]}"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func formatF(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func TestFileRequest_MutualExclusion(t *testing.T) {
	p := testPipeline(&mock.Engine{})
	req := FileRequest{
		AudioFile:           "does-not-exist.wav", // must not be touched
		SourceAlignmentFile: "src.json",
		TargetAlignmentFile: "tgt.json",
		ConstantStretch:     1.5,
		OutputFile:          "out.wav",
	}
	_, err := p.FromFile(context.Background(), req)
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestFileRequest_UnpairedAlignment(t *testing.T) {
	p := testPipeline(&mock.Engine{})
	_, err := p.FromFile(context.Background(), FileRequest{
		AudioFile:           "in.wav",
		SourceAlignmentFile: "src.json",
		OutputFile:          "out.wav",
	})
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestFromFileToFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	eng := &mock.Engine{}
	p := testPipeline(eng)

	in := tone(16000, 1.0)
	inPath := filepath.Join(dir, "in.wav")
	if err := audiofile.WriteWAV(inPath, in); err != nil {
		t.Fatal(err)
	}
	outPath := filepath.Join(dir, "out.wav")

	err := p.FromFileToFile(context.Background(), FileRequest{
		AudioFile:       inPath,
		ConstantStretch: 2.0,
		OutputFile:      outPath,
	})
	if err != nil {
		t.Fatalf("FromFileToFile: %v", err)
	}

	out, err := audiofile.ReadWAV(outPath)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if out.Rate != in.Rate {
		t.Errorf("rate = %d, want %d", out.Rate, in.Rate)
	}
	wantDur := in.Duration() / 2.0
	if got := out.Duration(); math.Abs(got-wantDur) > 0.01 {
		t.Errorf("duration = %v, want ~%v", got, wantDur)
	}
}

func TestFromFile_AlignedStretch(t *testing.T) {
	dir := t.TempDir()
	eng := &mock.Engine{}
	p := testPipeline(eng)

	in := tone(16000, 1.0)
	inPath := filepath.Join(dir, "in.wav")
	if err := audiofile.WriteWAV(inPath, in); err != nil {
		t.Fatal(err)
	}
	// Target is twice as slow: output should be ~2s.
	srcPath := writeTestAlignment(t, dir, "src.json", 0.5, 0.5)
	tgtPath := writeTestAlignment(t, dir, "tgt.json", 1.0, 1.0)

	out, err := p.FromFile(context.Background(), FileRequest{
		AudioFile:           inPath,
		SourceAlignmentFile: srcPath,
		TargetAlignmentFile: tgtPath,
	})
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if got := out.Duration(); math.Abs(got-2.0) > 0.01 {
		t.Errorf("duration = %v, want ~2.0", got)
	}
}

func TestFromFile_WithPitchFile(t *testing.T) {
	dir := t.TempDir()
	eng := &mock.Engine{}
	p := testPipeline(eng)

	inPath := filepath.Join(dir, "in.wav")
	if err := audiofile.WriteWAV(inPath, tone(16000, 0.5)); err != nil {
		t.Fatal(err)
	}
	pitchPath := filepath.Join(dir, "pitch.npy")
	f, err := os.Create(pitchPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := npyio.Write(f, []float64{120, 130, 140}); err != nil {
		t.Fatal(err)
	}
	f.Close()

	_, err = p.FromFile(context.Background(), FileRequest{
		AudioFile:       inPath,
		TargetPitchFile: pitchPath,
	})
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if eng.Calls() != 1 {
		t.Fatalf("engine calls = %d, want 1", eng.Calls())
	}
	if len(eng.Requests[0].Pitch) != 3 {
		t.Errorf("contour frames = %d, want 3", len(eng.Requests[0].Pitch))
	}
}

func TestVocode_EngineFailurePropagates(t *testing.T) {
	wantErr := errors.New("voicing detection failed")
	p := testPipeline(&mock.Engine{Err: wantErr})

	_, err := p.Vocode(context.Background(), tone(16000, 0.5), ConstantStretch(1.5), nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped engine error", err)
	}
}
