// Package contents builds the per-container contents summary shown to
// observers: one row per display name, capped, plus a stored/capacity line.
package contents

import (
	"fmt"
	"math"
)

const DefaultMaxRows = 10

type Entry struct {
	Name string
	Mass float64
}

type Row struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Mass  float64 `json:"mass"`
}

type Summary struct {
	Rows     []Row   `json:"rows"`
	More     int     `json:"more,omitempty"`
	Stored   float64 `json:"stored"`
	Capacity float64 `json:"capacity"`
}

// Summarize groups entries by display name in first-seen order. Masses are
// whatever the caller reports, so virtualized items show their reported
// amount. Rows past maxRows are folded into More.
func Summarize(entries []Entry, capacity float64, maxRows int) Summary {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	s := Summary{Capacity: capacity}
	index := map[string]int{}
	var rows []Row
	for _, e := range entries {
		s.Stored += e.Mass
		i, ok := index[e.Name]
		if !ok {
			index[e.Name] = len(rows)
			rows = append(rows, Row{Name: e.Name, Count: 1, Mass: e.Mass})
			continue
		}
		rows[i].Count++
		rows[i].Mass += e.Mass
	}
	if len(rows) > maxRows {
		s.More = len(rows) - maxRows
		rows = rows[:maxRows]
	}
	s.Rows = rows
	return s
}

// Lines renders s as display text.
func (s Summary) Lines() []string {
	out := make([]string, 0, len(s.Rows)+2)
	for _, r := range s.Rows {
		if r.Count > 1 {
			out = append(out, fmt.Sprintf("%s x%d: %s", r.Name, r.Count, FormatMass(r.Mass)))
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", r.Name, FormatMass(r.Mass)))
	}
	if s.More > 0 {
		out = append(out, fmt.Sprintf("...and %d more", s.More))
	}
	out = append(out, fmt.Sprintf("Stored: %s / %s", FormatMass(s.Stored), formatCapacity(s.Capacity)))
	return out
}

// FormatMass picks g, kg or t by magnitude.
func FormatMass(kg float64) string {
	switch a := math.Abs(kg); {
	case a >= 1000:
		return trim(kg/1000) + " t"
	case a > 0 && a < 1:
		return trim(kg*1000) + " g"
	default:
		return trim(kg) + " kg"
	}
}

func formatCapacity(kg float64) string {
	if kg >= math.MaxFloat32 || math.IsInf(kg, 1) {
		return "unlimited"
	}
	return FormatMass(kg)
}

func trim(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
