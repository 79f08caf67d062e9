// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a hosted or local transcription service (e.g., Groq's
// Whisper endpoint, Google Cloud Speech-to-Text, or a local whisper-server)
// behind a single batch operation: hand it a recorded audio file, get the
// transcript back. Recording and segmentation happen upstream in
// pkg/audio/capture, so no streaming surface is needed here.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Result is the outcome of transcribing one audio file.
type Result struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). Zero if the
	// provider does not report confidence.
	Confidence float64

	// Language is the detected or configured language code, when reported.
	Language string

	// Duration is the length of the transcribed audio, when reported.
	Duration time.Duration
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Provider interface {
	// TranscribeFile reads the audio file at path, submits it to the backend,
	// and returns the transcription result.
	//
	// Returns an error if the file cannot be read, the endpoint is
	// unreachable, or the credential is rejected; the caller surfaces these
	// at the orchestration boundary.
	TranscribeFile(ctx context.Context, path string) (*Result, error)
}
