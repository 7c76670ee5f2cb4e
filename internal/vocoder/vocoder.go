// Package vocoder implements the codec bridge between DMR's AMBE+2
// half-rate vocoder and P25's IMBE full-rate vocoder.
//
// The actual MBE analysis/synthesis math (mbelib/imbe) is treated as an
// external collaborator per the transcoder's scope: no third-party Go
// vocoder library exists to import, and reimplementing mbelib's DSP is out
// of scope for this core. Decode/Encode here model the black-box contract
// mbelib exposes (codeword in, PCM out; PCM in, codeword out; a running
// EDAC error count) with a self-consistent parametric placeholder in place
// of perceptual speech synthesis.
package vocoder

import "math"

const (
	// PcmSamples is the number of 8 kHz samples produced/consumed per voice frame.
	PcmSamples = 160
	pcmClamp   = 32760
)

// PcmFrame is 20 ms of 8 kHz signed PCM audio.
type PcmFrame [PcmSamples]int16

// AmbeCodeword is a DMR AMBE+2 half-rate frame as carried on the wire.
type AmbeCodeword [9]byte

// ImbeCodeword is a P25 IMBE full-rate frame as carried on the wire.
type ImbeCodeword [11]byte

// gainLinear converts a dB gain to a linear multiplier.
func gainLinear(db float64) float64 {
	return math.Pow(10, db/20)
}

func clampToPCM(v float64) int16 {
	if v > pcmClamp {
		v = pcmClamp
	} else if v < -pcmClamp {
		v = -pcmClamp
	}
	return int16(v)
}

// synthesize maps a codeword's bytes onto a small set of pitch/amplitude
// parameters and renders them as additive sinusoids. It is deterministic
// and stateless, and it never fails: every codeword yields a PCM frame, and
// only the all-zero codeword yields silence. It has no notion of an
// unrecoverable codeword; the error count Decode reports does not change
// the PCM produced.
func synthesize(cw []byte, gainDB float64) PcmFrame {
	var out PcmFrame

	if len(cw) == 0 {
		return out
	}

	var sum, pitch int
	for i, b := range cw {
		sum += int(b)
		pitch += int(b) * (i + 1)
	}
	if sum == 0 {
		return out // pure silence codeword
	}

	freq := 80.0 + float64(pitch%200) // rough pitch estimate, 80-280 Hz
	amp := float64(sum%256) / 256.0 * 12000.0
	gain := gainLinear(gainDB)

	for i := 0; i < PcmSamples; i++ {
		t := float64(i) / 8000.0
		sample := amp * gain * math.Sin(2*math.Pi*freq*t)
		out[i] = clampToPCM(sample)
	}
	return out
}

// analyze is the encode-side inverse of synthesize: it derives a codeword
// from PCM energy and zero-crossing rate. Like synthesize, it is a
// placeholder for the real MBE analysis stage.
func analyze(pcm PcmFrame, gainDB float64, cw []byte) {
	gain := gainLinear(gainDB)

	var energy float64
	var crossings int
	for i, s := range pcm {
		v := float64(s) * gain
		energy += v * v
		if i > 0 {
			prev := float64(pcm[i-1]) * gain
			if (prev < 0) != (v < 0) {
				crossings++
			}
		}
	}

	rms := math.Sqrt(energy / PcmSamples)
	level := byte(math.Min(255, rms/128))
	pitchByte := byte(crossings % 256)

	for i := range cw {
		cw[i] = level ^ byte(i)*pitchByte
	}
}

// AmbeCodec decodes/encodes DMR AMBE+2 half-rate codewords.
type AmbeCodec struct {
	// GainDB is applied during both Encode's analysis step and Decode's
	// synthesis step, matching the vocoder's single loudness-compensation
	// knob; VoiceBridge sets it only on its encoders.
	GainDB float64
}

// Decode dequantizes an AMBE+2 codeword and runs vocoder synthesis,
// returning 160 PCM samples. errCount reports EDAC corrections; it is
// always informational and never causes a failure.
func (c *AmbeCodec) Decode(cw AmbeCodeword) (PcmFrame, int) {
	errCount := edacErrorCount(cw[:])
	return synthesize(cw[:], c.GainDB), errCount
}

// Encode runs vocoder analysis on 160 PCM samples, producing an AMBE+2
// codeword.
func (c *AmbeCodec) Encode(pcm PcmFrame) AmbeCodeword {
	var cw AmbeCodeword
	analyze(pcm, c.GainDB, cw[:])
	return cw
}

// ImbeCodec decodes/encodes P25 IMBE full-rate codewords.
type ImbeCodec struct {
	GainDB float64
}

// Decode dequantizes an 88-bit IMBE codeword and returns 160 PCM samples.
func (c *ImbeCodec) Decode(cw ImbeCodeword) (PcmFrame, int) {
	errCount := edacErrorCount(cw[:])
	return synthesize(cw[:], c.GainDB), errCount
}

// Encode runs vocoder analysis on 160 PCM samples, producing an IMBE
// codeword.
func (c *ImbeCodec) Encode(pcm PcmFrame) ImbeCodeword {
	var cw ImbeCodeword
	analyze(pcm, c.GainDB, cw[:])
	return cw
}

// edacErrorCount estimates a codeword's bit-error count from byte parity,
// standing in for the real vocoder's per-parameter Golay/Hamming checks.
// It is deliberately cheap: the core only needs a nonzero, informational
// count to drive call statistics, not the corrected bits themselves.
func edacErrorCount(cw []byte) int {
	var parity byte
	for _, b := range cw {
		parity ^= b
	}
	count := 0
	for parity != 0 {
		count++
		parity &= parity - 1
	}
	return count
}

// VoiceBridge pairs an AMBE decoder + IMBE encoder with the inverse pair to
// transcode between the two vocoder families. Each machine owns its own
// VoiceBridge instance; codecs are never shared across slots or calls.
type VoiceBridge struct {
	ambeDecoder AmbeCodec
	imbeEncoder ImbeCodec
	imbeDecoder ImbeCodec
	ambeEncoder AmbeCodec
}

// NewVoiceBridge constructs a bridge with the given encoder gains in dB.
func NewVoiceBridge(ambeEncodeGainDB, imbeEncodeGainDB float64) *VoiceBridge {
	return &VoiceBridge{
		imbeEncoder: ImbeCodec{GainDB: imbeEncodeGainDB},
		ambeEncoder: AmbeCodec{GainDB: ambeEncodeGainDB},
	}
}

// DecodeAmbe decodes one AMBE+2 codeword to PCM.
func (v *VoiceBridge) DecodeAmbe(cw AmbeCodeword) (PcmFrame, int) {
	return v.ambeDecoder.Decode(cw)
}

// EncodeImbe encodes PCM to one IMBE codeword.
func (v *VoiceBridge) EncodeImbe(pcm PcmFrame) ImbeCodeword {
	return v.imbeEncoder.Encode(pcm)
}

// DecodeImbe decodes one IMBE codeword to PCM.
func (v *VoiceBridge) DecodeImbe(cw ImbeCodeword) (PcmFrame, int) {
	return v.imbeDecoder.Decode(cw)
}

// EncodeAmbe encodes PCM to one AMBE+2 codeword.
func (v *VoiceBridge) EncodeAmbe(pcm PcmFrame) AmbeCodeword {
	return v.ambeEncoder.Encode(pcm)
}
