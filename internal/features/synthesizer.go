// Package features derives reproducible pseudo traffic features from capture identifiers.
//
// Every field is drawn from its own salted SHA-256 of the identifier, so the same name
// yields bit-identical vectors on any machine and fields do not correlate with each other.
package features

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"traffic-anomaly-detector/internal/model"
)

// Per-field salts. Each field must keep its own salt.
const (
	SaltPacketCount = "pc"
	SaltAvgLen      = "len"
	SaltTCP         = "tcp"
	SaltUDP         = "udp"
	SaltEntropy     = "ent"
)

const (
	minPacketCount = 80
	maxPacketCount = 1200
	minAvgLen      = 64
	maxAvgLen      = 1400
	maxUDPShare    = 0.9
	minEntropy     = 0.2
	entropySpan    = 1.6
)

// Unit maps sha256(id ++ salt) to [0,1] using the first 32 bits of the digest
func Unit(id, salt string) float64 {
	h := sha256.New()
	h.Write([]byte(id))
	h.Write([]byte(salt))
	sum := h.Sum(nil)
	return float64(binary.BigEndian.Uint32(sum[:4])) / float64(math.MaxUint32)
}

// Synthesize builds the feature vector for id.
// Rounded values are held one step below their upper bound, so every field stays in its
// half-open range and tcp_ratio+udp_ratio stays below one.
func Synthesize(id string) model.FeatureVector {
	tcp := below(roundTo(Unit(id, SaltTCP), 3), 1, 0.001)
	// udp < 0.9*(1-tcp) before rounding
	udp := roundTo(maxUDPShare*(1-tcp)*Unit(id, SaltUDP), 3)
	if tcp+udp >= 1 {
		udp = math.Max(0, roundTo(1-tcp-0.001, 3))
	}

	return model.FeatureVector{
		PacketCount: int(below(math.Floor(minPacketCount+Unit(id, SaltPacketCount)*(maxPacketCount-minPacketCount)), maxPacketCount, 1)),
		AvgLen:      below(roundTo(minAvgLen+Unit(id, SaltAvgLen)*(maxAvgLen-minAvgLen), 1), maxAvgLen, 0.1),
		TCPRatio:    tcp,
		UDPRatio:    udp,
		FlowEntropy: below(roundTo(minEntropy+Unit(id, SaltEntropy)*entropySpan, 3), minEntropy+entropySpan, 0.001),
	}
}

// SynthesizeAll applies Synthesize to every id, preserving order
func SynthesizeAll(ids []string) []model.FeatureVector {
	out := make([]model.FeatureVector, len(ids))
	for i, id := range ids {
		out[i] = Synthesize(id)
	}
	return out
}

// below caps v at limit-step
func below(v, limit, step float64) float64 {
	if v >= limit {
		return roundTo(limit-step, 3)
	}
	return v
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}
