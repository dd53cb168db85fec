package core

// SynthesisOptions are the per-request knobs forwarded to the voice-synthesis
// collaborator. The DSP they control runs inside the collaborator.
type SynthesisOptions struct {
	RemoveSilence     bool    `json:"remove_silence"`
	CrossFadeDuration float64 `json:"cross_fade_duration"` // seconds
	Speed             float64 `json:"speed"`
}

// DefaultSynthesisOptions mirrors the demo defaults: silences trimmed,
// 0.15 s cross-fade between generated batches, natural speed.
func DefaultSynthesisOptions() SynthesisOptions {
	return SynthesisOptions{
		RemoveSilence:     true,
		CrossFadeDuration: 0.15,
		Speed:             1.0,
	}
}
