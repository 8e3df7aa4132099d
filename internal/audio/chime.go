package audio

import (
	"bytes"
	"encoding/binary"
	"math"
)

const chimeSampleRate = 22050

// Chime renders a short two-tone WAV (C5 then E5) used as a wake cue.
func Chime() []byte {
	tones := []float64{523.25, 659.25}
	perTone := chimeSampleRate / 4

	samples := make([]int16, 0, perTone*len(tones))
	for _, freq := range tones {
		for i := 0; i < perTone; i++ {
			// linear fade out keeps each tone from clicking
			envelope := 1 - float64(i)/float64(perTone)
			v := math.Sin(2*math.Pi*freq*float64(i)/chimeSampleRate) * envelope * 0.3
			samples = append(samples, int16(v*math.MaxInt16))
		}
	}
	return encodeWAV(samples, chimeSampleRate)
}

func encodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * 2
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
