//go:build linux

// Package silero wraps the sherpa-onnx Silero VAD model behind the vad.Model
// interface. It is an optional classifier: callers that want ONNX-backed
// speech detection instead of the dependency-free energy model select it
// explicitly; everything else in the ingestion core is indifferent to which
// one is wired in.
//
// This file carries the Linux build of sherpa-onnx. By default it links the
// pre-built CPU-only sherpa-onnx-go-linux package; CUDA support requires a
// source build of sherpa-onnx with GPU enabled.
package silero

import (
	impl "github.com/k2-fsa/sherpa-onnx-go-linux"
)

// Re-exported VAD-only types. The offline recognizer and TTS surfaces of
// sherpa-onnx are intentionally not aliased here: this core never transcribes
// or synthesizes audio, only gates it.
type VoiceActivityDetector = impl.VoiceActivityDetector
type VadModelConfig = impl.VadModelConfig
type SpeechSegment = impl.SpeechSegment

var NewVoiceActivityDetector = impl.NewVoiceActivityDetector
var DeleteVoiceActivityDetector = impl.DeleteVoiceActivityDetector
