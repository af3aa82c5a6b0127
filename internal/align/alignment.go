package align

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrAlignmentMismatch indicates that a source/target alignment pair does not
// describe the same sequence of phonemes and cannot be used for time-warping.
var ErrAlignmentMismatch = errors.New("alignment mismatch")

// Phoneme is a single aligned phoneme with start/end times in seconds.
type Phoneme struct {
	Label string  `json:"phoneme"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the phoneme duration in seconds.
func (p Phoneme) Duration() float64 { return p.End - p.Start }

// Word groups the phonemes of one aligned word.
type Word struct {
	Label    string    `json:"alignedWord"`
	Start    float64   `json:"start"`
	End      float64   `json:"end"`
	Phonemes []Phoneme `json:"phonemes"`
}

// Alignment is a forced alignment of an utterance, as produced by the
// alignment library's JSON serialization. The vocoder treats it as a
// read-only source of phoneme boundary times.
type Alignment struct {
	Words []Word `json:"words"`
}

// Load reads an alignment from its JSON serialization on disk.
func Load(path string) (*Alignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read alignment: %w", err)
	}
	var a Alignment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse alignment %s: %w", path, err)
	}
	if len(a.Words) == 0 {
		return nil, fmt.Errorf("alignment %s: no words", path)
	}
	return &a, nil
}

// Phonemes returns all phonemes in utterance order.
func (a *Alignment) Phonemes() []Phoneme {
	var ps []Phoneme
	for _, w := range a.Words {
		ps = append(ps, w.Phonemes...)
	}
	return ps
}

// Start returns the start time of the first word.
func (a *Alignment) Start() float64 {
	if len(a.Words) == 0 {
		return 0
	}
	return a.Words[0].Start
}

// End returns the end time of the last word.
func (a *Alignment) End() float64 {
	if len(a.Words) == 0 {
		return 0
	}
	return a.Words[len(a.Words)-1].End
}

// Duration returns the total aligned duration in seconds.
func (a *Alignment) Duration() float64 { return a.End() - a.Start() }
