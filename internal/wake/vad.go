package wake

import "github.com/triolabs/wakepc/internal/audio"

// energyVAD is an RMS-energy voice activity detector with hysteresis:
// a few loud frames to enter speech, a longer quiet run to leave it.
type energyVAD struct {
	enterLevel float64
	exitLevel  float64
	enterRun   int
	exitRun    int

	inSpeech   bool
	loudCount  int
	quietCount int
}

func newEnergyVAD() *energyVAD {
	return &energyVAD{
		enterLevel: 0.015,
		exitLevel:  0.008,
		enterRun:   3,  // ~60ms at 20ms frames
		exitRun:    15, // ~300ms
	}
}

func (v *energyVAD) isSpeech(pcm []int16) bool {
	level := audio.RMS(pcm)

	if v.inSpeech {
		if level < v.exitLevel {
			v.quietCount++
			v.loudCount = 0
			if v.quietCount >= v.exitRun {
				v.inSpeech = false
				v.quietCount = 0
			}
		} else {
			v.quietCount = 0
		}
	} else {
		if level >= v.enterLevel {
			v.loudCount++
			if v.loudCount >= v.enterRun {
				v.inSpeech = true
				v.loudCount = 0
			}
		} else {
			v.loudCount = 0
		}
	}
	return v.inSpeech
}

func (v *energyVAD) reset() {
	v.inSpeech = false
	v.loudCount = 0
	v.quietCount = 0
}

// noiseGate suppresses frames below a floor calibrated from the first
// frames of the stream (assumed to be ambient silence).
type noiseGate struct {
	floor       float64
	calibrated  bool
	calibFrames int
	calibSum    float64
}

func newNoiseGate() *noiseGate {
	return &noiseGate{}
}

// pass reports whether a frame clears the calibrated floor. Calibration
// frames never pass.
func (g *noiseGate) pass(pcm []int16) bool {
	level := audio.RMS(pcm)

	if !g.calibrated {
		g.calibFrames++
		g.calibSum += level
		if g.calibFrames >= 20 {
			avg := g.calibSum / float64(g.calibFrames)
			g.floor = avg * 2.5
			if g.floor < 0.005 {
				g.floor = 0.005
			}
			g.calibrated = true
		}
		return false
	}
	return level >= g.floor
}
