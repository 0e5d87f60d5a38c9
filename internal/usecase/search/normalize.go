package search

// normalizeScores min-max scales scores into [0,1]. When all scores are
// equal there is no signal to rank on, so every score becomes 0.5 rather
// than an arbitrary 0 or 1.
func normalizeScores(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}

	minS, maxS := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minS {
			minS = s
		}
		if s > maxS {
			maxS = s
		}
	}

	out := make([]float64, len(scores))
	spread := maxS - minS
	if spread < 1e-12 {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}

	for i, s := range scores {
		out[i] = (s - minS) / spread
	}
	return out
}
