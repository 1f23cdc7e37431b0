package live

// AudioLevels approximates the agent's output spectrum for visual
// collaborators: overall volume plus coarse bass/mid/treble bands.
type AudioLevels struct {
	Volume float64 `json:"volume"`
	Bass   float64 `json:"bass"`
	Mid    float64 `json:"mid"`
	Treble float64 `json:"treble"`
}

// levelsFromFrequencies reduces a transport frequency snapshot to
// AudioLevels. The bin layout assumes ascending frequency order; bands
// split the spectrum roughly 0-15%, 15-50%, 50-100%.
func levelsFromFrequencies(volume float64, freqs []float32) AudioLevels {
	levels := AudioLevels{Volume: clamp01(volume)}
	if len(freqs) == 0 {
		return levels
	}

	bassEnd := len(freqs) * 15 / 100
	if bassEnd == 0 {
		bassEnd = 1
	}
	midEnd := len(freqs) / 2
	if midEnd <= bassEnd {
		midEnd = bassEnd + 1
	}
	if midEnd > len(freqs) {
		midEnd = len(freqs)
	}

	levels.Bass = bandAverage(freqs[:bassEnd])
	levels.Mid = bandAverage(freqs[bassEnd:midEnd])
	levels.Treble = bandAverage(freqs[midEnd:])
	return levels
}

func bandAverage(band []float32) float64 {
	if len(band) == 0 {
		return 0
	}
	var sum float64
	for _, v := range band {
		sum += float64(v)
	}
	return clamp01(sum / float64(len(band)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
