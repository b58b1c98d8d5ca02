package model

// FeatureNames lists the feature columns in table order.
var FeatureNames = []string{"packet_count", "avg_len", "tcp_ratio", "udp_ratio", "flow_entropy"}

// FeatureVector holds the synthetic traffic features derived from one capture identifier
type FeatureVector struct {
	PacketCount int     `json:"packet_count"`
	AvgLen      float64 `json:"avg_len"`
	TCPRatio    float64 `json:"tcp_ratio"`
	UDPRatio    float64 `json:"udp_ratio"`
	FlowEntropy float64 `json:"flow_entropy"`
}

// Values returns the vector as a row of the feature matrix, ordered like FeatureNames
func (f FeatureVector) Values() []float64 {
	return []float64{
		float64(f.PacketCount),
		f.AvgLen,
		f.TCPRatio,
		f.UDPRatio,
		f.FlowEntropy,
	}
}

// Matrix converts feature vectors into matrix rows, preserving order
func Matrix(vectors []FeatureVector) [][]float64 {
	rows := make([][]float64, len(vectors))
	for i, v := range vectors {
		rows[i] = v.Values()
	}
	return rows
}
