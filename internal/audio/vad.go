package audio

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	EnergyThreshold float64 // RMS energy threshold on the 16-bit scale
	SilenceFrames   int     // Number of consecutive silence frames to mark as end of speech
	FrameSize       int     // Number of samples per frame (typically 160 for 8kHz = 20ms)
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		EnergyThreshold: 500.0,
		SilenceFrames:   10,  // 200ms of silence (10 frames * 20ms)
		FrameSize:       160, // 20ms at 8kHz
	}
}

// VADDetector performs Voice Activity Detection
type VADDetector struct {
	config         *VADConfig
	silenceCounter int
	isSpeaking     bool
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	return &VADDetector{config: config}
}

// ProcessFrame processes an audio frame and returns whether speech is detected
// Returns: (isSpeaking, speechStarted, speechEnded)
func (v *VADDetector) ProcessFrame(samples []float32) (bool, bool, bool) {
	frameHasSpeech := CalculateRMS(samples) > v.config.EnergyThreshold

	var speechStarted, speechEnded bool

	if frameHasSpeech {
		v.silenceCounter = 0
		if !v.isSpeaking {
			speechStarted = true
			v.isSpeaking = true
		}
	} else {
		v.silenceCounter++
		if v.isSpeaking && v.silenceCounter >= v.config.SilenceFrames {
			speechEnded = true
			v.isSpeaking = false
			v.silenceCounter = 0
		}
	}

	return v.isSpeaking, speechStarted, speechEnded
}

// Reset resets the VAD detector state
func (v *VADDetector) Reset() {
	v.silenceCounter = 0
	v.isSpeaking = false
}

// IsSpeaking returns whether speech is currently detected
func (v *VADDetector) IsSpeaking() bool {
	return v.isSpeaking
}

// SilenceGate decides whether a whole window is worth sending to the pipeline
type SilenceGate struct {
	threshold float64
	frameSize int
}

// NewSilenceGate creates a gate; a threshold of zero lets every window through
func NewSilenceGate(threshold float64, frameSize int) *SilenceGate {
	if frameSize <= 0 {
		frameSize = DefaultVADConfig().FrameSize
	}
	return &SilenceGate{threshold: threshold, frameSize: frameSize}
}

// ContainsSpeech reports whether any frame of the window rises above the threshold
func (g *SilenceGate) ContainsSpeech(samples []float32) bool {
	if g == nil || g.threshold <= 0 {
		return true
	}

	vad := NewVADDetector(&VADConfig{
		EnergyThreshold: g.threshold,
		SilenceFrames:   1,
		FrameSize:       g.frameSize,
	})
	for start := 0; start < len(samples); start += g.frameSize {
		end := start + g.frameSize
		if end > len(samples) {
			end = len(samples)
		}
		if _, started, _ := vad.ProcessFrame(samples[start:end]); started {
			return true
		}
	}
	return false
}
