//go:build darwin

// Package silero wraps the sherpa-onnx Silero VAD model behind the vad.Model
// interface. This file carries the macOS build, which links sherpa-onnx with
// CoreML support.
package silero

import impl "github.com/k2-fsa/sherpa-onnx-go-macos"

type VoiceActivityDetector = impl.VoiceActivityDetector
type VadModelConfig = impl.VadModelConfig
type SpeechSegment = impl.SpeechSegment

var NewVoiceActivityDetector = impl.NewVoiceActivityDetector
var DeleteVoiceActivityDetector = impl.DeleteVoiceActivityDetector
