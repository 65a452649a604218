package behaviours

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/boristopalov/colony/pkg/agent"
)

// Standing is a donor's position on the leaderboard.
type Standing struct {
	Name      string
	Resources float64
	Strategy  string
}

// Rank returns the donors among agents ordered by resources, richest first.
// Ties are broken by name.
func Rank(agents []agent.Agent) []Standing {
	var out []Standing
	for _, a := range agents {
		d, ok := a.(*Donor)
		if !ok {
			continue
		}
		out = append(out, Standing{Name: d.Name(), Resources: d.Resources(), Strategy: d.Strategy()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Resources != out[j].Resources {
			return out[i].Resources > out[j].Resources
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Summary describes the distribution of resources over a population.
type Summary struct {
	Count  int
	Total  float64
	Mean   float64
	StdDev float64
	// Inequality is the spread between the richest and poorest.
	Inequality float64
}

func Summarize(standings []Standing) Summary {
	s := Summary{Count: len(standings)}
	if s.Count == 0 {
		return s
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, st := range standings {
		s.Total += st.Resources
		lo = math.Min(lo, st.Resources)
		hi = math.Max(hi, st.Resources)
	}
	s.Mean = s.Total / float64(s.Count)

	var sumSquares float64
	for _, st := range standings {
		diff := st.Resources - s.Mean
		sumSquares += diff * diff
	}
	s.StdDev = math.Sqrt(sumSquares / float64(s.Count))
	s.Inequality = hi - lo
	return s
}

// Advice renders the strategies of the top n standings as advice for a
// following generation of donors.
func Advice(standings []Standing, n int) string {
	n = max(0, min(n, len(standings)))
	var sb strings.Builder
	sb.WriteString("Successful strategies from previous generation:")
	for _, st := range standings[:n] {
		fmt.Fprintf(&sb, "\nAgent %s (%.2f resources): %s", st.Name, st.Resources, st.Strategy)
	}
	return sb.String()
}
