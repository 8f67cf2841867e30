// Package audio inspects raw microphone buffers and normalizes them to 16-bit PCM.
package audio

import (
	"encoding/binary"
	"math"
)

// float32Ratio is how much louder a buffer must look when read as float32
// than when read as int16 before it is treated as float32 audio.
const float32Ratio = 10

// minFloat32RMS keeps silent buffers from being classified as float32.
const minFloat32RMS = 1e-6

// Level is the loudness of a buffer under one sample interpretation.
type Level struct {
	RMS float64 // normalized to [0,1]
	DB  float64 // 20*log10(RMS), -Inf for silence
}

// Classification holds both interpretations of a buffer and the decision.
type Classification struct {
	Int16          Level
	Float32        Level
	Float32Encoded bool
}

// Int16Level reads buf as signed little-endian 16-bit samples. A trailing odd
// byte is ignored.
func Int16Level(buf []byte) Level {
	n := len(buf) / 2
	if n == 0 {
		return silence()
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(buf[i*2:])))
		sumSq += s * s
	}
	return levelOf(math.Sqrt(sumSq/float64(n)) / math.MaxInt16)
}

// Float32Level reads buf as little-endian IEEE-754 samples, assumed to be in
// [-1,1] already. Trailing bytes that do not form a full sample are ignored.
func Float32Level(buf []byte) Level {
	n := len(buf) / 4
	if n == 0 {
		return silence()
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		s := float64(readFloat32(buf, i))
		sumSq += s * s
	}
	return levelOf(math.Sqrt(sumSq / float64(n)))
}

// Classify measures buf both ways and decides whether it carries float32 samples.
func Classify(buf []byte) Classification {
	c := Classification{
		Int16:   Int16Level(buf),
		Float32: Float32Level(buf),
	}
	c.Float32Encoded = c.Float32.RMS > math.Max(minFloat32RMS, c.Int16.RMS*float32Ratio)
	return c
}

// NormalizeToInt16 returns buf unchanged when it already looks like int16 PCM
// and a converted copy when it looks like float32 PCM.
func NormalizeToInt16(buf []byte) ([]byte, Classification) {
	c := Classify(buf)
	if !c.Float32Encoded {
		return buf, c
	}
	return Float32ToInt16(buf), c
}

// Float32ToInt16 converts little-endian float32 samples to little-endian int16.
// Samples are clamped to [-1,1]; negatives scale by 32768, the rest by 32767,
// rounding half away from zero.
func Float32ToInt16(buf []byte) []byte {
	n := len(buf) / 4
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		f := float64(readFloat32(buf, i))
		f = math.Max(-1, math.Min(1, f))
		var v float64
		if f < 0 {
			v = math.Round(f * 32768)
		} else {
			v = math.Round(f * 32767)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

func readFloat32(buf []byte, i int) float32 {
	f := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	if math.IsNaN(float64(f)) {
		return 0
	}
	return f
}

func levelOf(rms float64) Level {
	if rms <= 0 || math.IsNaN(rms) {
		return silence()
	}
	return Level{RMS: rms, DB: 20 * math.Log10(rms)}
}

func silence() Level {
	return Level{RMS: 0, DB: math.Inf(-1)}
}
