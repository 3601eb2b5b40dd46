package audio

// ClassifierConfig holds the energy threshold used for voice detection
type ClassifierConfig struct {
	EnergyThreshold float64 // RMS energy above which a frame counts as voice
}

// ClassifierConfigForMode returns the threshold for a VOX mode.
// Quality keeps quiet speech; the aggressive modes reject more background noise.
func ClassifierConfigForMode(mode VoxMode) ClassifierConfig {
	switch mode {
	case VoxModeLowBitrate:
		return ClassifierConfig{EnergyThreshold: 500}
	case VoxModeAggressive:
		return ClassifierConfig{EnergyThreshold: 800}
	case VoxModeVeryAggressive:
		return ClassifierConfig{EnergyThreshold: 1200}
	default:
		return ClassifierConfig{EnergyThreshold: 300}
	}
}

// EnergyClassifier classifies frames by RMS energy
type EnergyClassifier struct {
	config ClassifierConfig
	format Format
}

// NewEnergyClassifier creates a classifier for frames in the given format
func NewEnergyClassifier(format Format, mode VoxMode) *EnergyClassifier {
	return &EnergyClassifier{
		config: ClassifierConfigForMode(mode),
		format: format,
	}
}

// Threshold returns the configured RMS threshold
func (c *EnergyClassifier) Threshold() float64 {
	return c.config.EnergyThreshold
}

// Classify returns true when the frame energy exceeds the threshold.
// Frames that cannot be decoded count as silence.
func (c *EnergyClassifier) Classify(frame Frame) bool {
	samples, err := ToLinear16(c.format, frame.Payload)
	if err != nil {
		return false
	}
	return CalculateRMS(samples) > c.config.EnergyThreshold
}
