package metrics

import (
	"math"
	"sort"
)

// WelfordState holds running statistics using Welford's online algorithm.
// Mean and standard deviation are updated in O(1) without storing observations.
type WelfordState struct {
	Count int     // n - number of observations
	Mean  float64 // running mean
	M2    float64 // sum of squared differences from mean
	Min   float64
	Max   float64
}

// Update adds a new observation.
func (w *WelfordState) Update(newValue float64) {
	w.Count++
	if w.Count == 1 || newValue < w.Min {
		w.Min = newValue
	}
	if w.Count == 1 || newValue > w.Max {
		w.Max = newValue
	}
	delta := newValue - w.Mean
	w.Mean += delta / float64(w.Count)
	delta2 := newValue - w.Mean
	w.M2 += delta * delta2
}

// StdDev returns the population standard deviation, 0 with fewer than 2 observations.
func (w *WelfordState) StdDev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.M2 / float64(w.Count))
}

// Route identifies a source/destination pair.
type Route struct {
	Source      int
	Destination int
}

// RouteSummary is the travel time summary of one route.
type RouteSummary struct {
	Route
	Samples int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
}

// TravelTimeStats accumulates positive travel times per route over a day.
// It is owned by the ingestion loop and not safe for concurrent use.
type TravelTimeStats struct {
	routes map[Route]*WelfordState
}

// NewTravelTimeStats returns empty stats.
func NewTravelTimeStats() *TravelTimeStats {
	return &TravelTimeStats{routes: make(map[Route]*WelfordState)}
}

// Observe records one travel time. Non-positive values carry no trip
// information and are ignored.
func (s *TravelTimeStats) Observe(source, destination int, seconds int64) {
	if seconds <= 0 {
		return
	}
	rt := Route{Source: source, Destination: destination}
	w, ok := s.routes[rt]
	if !ok {
		w = &WelfordState{}
		s.routes[rt] = w
	}
	w.Update(float64(seconds))
}

// Summaries returns one summary per observed route, ordered by route.
func (s *TravelTimeStats) Summaries() []RouteSummary {
	out := make([]RouteSummary, 0, len(s.routes))
	for rt, w := range s.routes {
		out = append(out, RouteSummary{
			Route:   rt,
			Samples: w.Count,
			Mean:    w.Mean,
			StdDev:  w.StdDev(),
			Min:     w.Min,
			Max:     w.Max,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].Destination < out[j].Destination
	})
	return out
}
