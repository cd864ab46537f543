package voice

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// BuildWAV wraps 16-bit PCM samples in a canonical 44-byte RIFF/WAVE header.
// sampleRate in Hz. Deterministic; no state.
func BuildWAV(samples []int16, channels uint16, sampleRate uint32) []byte {
	const bitsPerSample = uint16(16)
	bytesPerSample := uint32(bitsPerSample / 8)
	dataSize := uint32(len(samples)) * bytesPerSample
	byteRate := sampleRate * uint32(channels) * bytesPerSample
	blockAlign := channels * (bitsPerSample / 8)
	riffSize := 36 + dataSize

	buf := bytes.NewBuffer(make([]byte, 0, 44+int(dataSize)))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, riffSize)
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, channels)
	binary.Write(buf, binary.LittleEndian, sampleRate)
	binary.Write(buf, binary.LittleEndian, byteRate)
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, bitsPerSample)
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, dataSize)
	binary.Write(buf, binary.LittleEndian, samples)
	return buf.Bytes()
}

// ParseWAV reads a 16-bit PCM RIFF/WAVE payload and returns its samples,
// channel count and sample rate. Chunks other than fmt/data are skipped.
func ParseWAV(wav []byte) (samples []int16, channels uint16, sampleRate uint32, err error) {
	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("not a RIFF/WAVE payload")
	}

	var haveFmt, haveData bool
	var data []byte
	pos := 12
	for pos+8 <= len(wav) {
		id := string(wav[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(wav) {
			size = len(wav) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, errors.New("fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(wav[body : body+2])
			channels = binary.LittleEndian.Uint16(wav[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(wav[body+4 : body+8])
			bits := binary.LittleEndian.Uint16(wav[body+14 : body+16])
			if format != 1 || bits != 16 {
				return nil, 0, 0, fmt.Errorf("unsupported wav format=%d bits=%d", format, bits)
			}
			haveFmt = true
		case "data":
			data = wav[body : body+size]
			haveData = true
		}
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}
	if !haveFmt || !haveData {
		return nil, 0, 0, errors.New("wav payload missing fmt or data chunk")
	}

	samples = make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[2*i : 2*i+2]))
	}
	return samples, channels, sampleRate, nil
}
