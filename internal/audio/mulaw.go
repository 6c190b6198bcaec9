package audio

// G.711 mu-law, used for the PCMU track of the peer-to-peer media path.

const (
	muBias = 0x84
	muClip = 32635
)

func LinearToMuLaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > muClip {
		s = muClip
	}
	s += muBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

func MuLawToLinear(u byte) int16 {
	u = ^u
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F
	s := ((int(mantissa) << 3) + muBias) << exponent
	s -= muBias
	if sign != 0 {
		return int16(-s)
	}
	return int16(s)
}

func EncodeMuLaw(samples []float32) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = LinearToMuLaw(toInt16(s))
	}
	return out
}

func DecodeMuLaw(b []byte) []float32 {
	out := make([]float32, len(b))
	for i, u := range b {
		out[i] = float32(MuLawToLinear(u)) / FullScale
	}
	return out
}
