package route

// postedLimits are the typical signed limits a speed hint is snapped to, km/h.
var postedLimits = []float64{20, 30, 50, 60, 80, 100, 120}

// ClassifyLimit quantizes a raw speed hint to the nearest posted limit.
// Non-positive hints mean "no limit known" and map to 0.
func ClassifyLimit(kmh float64) float64 {
	if kmh <= 0 {
		return 0
	}
	best := postedLimits[0]
	for _, l := range postedLimits[1:] {
		if abs(kmh-l) < abs(kmh-best) {
			best = l
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
