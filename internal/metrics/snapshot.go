package metrics

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// Sample is one labelled value of a metric family. For histograms Value is
// the observation count and Sum their total.
type Sample struct {
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Value  float64           `json:"value" yaml:"value"`
	Sum    float64           `json:"sum,omitempty" yaml:"sum,omitempty"`
}

// Family is a gathered metric family.
type Family struct {
	Name    string   `json:"name" yaml:"name"`
	Help    string   `json:"help,omitempty" yaml:"help,omitempty"`
	Type    string   `json:"type" yaml:"type"`
	Samples []Sample `json:"samples" yaml:"samples"`
}

// Snapshot gathers the recall_* families from g, sorted by name. A nil g
// reads the default registry, where every metric of this package lives.
func Snapshot(g prometheus.Gatherer) ([]Family, error) {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	mfs, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	prefix := namespace + "_"
	out := make([]Family, 0, len(mfs))
	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), prefix) {
			continue
		}
		f := Family{
			Name: mf.GetName(),
			Help: mf.GetHelp(),
			Type: strings.ToLower(mf.GetType().String()),
		}
		for _, m := range mf.GetMetric() {
			var s Sample
			if pairs := m.GetLabel(); len(pairs) > 0 {
				s.Labels = make(map[string]string, len(pairs))
				for _, lp := range pairs {
					s.Labels[lp.GetName()] = lp.GetValue()
				}
			}
			switch {
			case m.GetCounter() != nil:
				s.Value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				s.Value = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				s.Value = float64(m.GetHistogram().GetSampleCount())
				s.Sum = m.GetHistogram().GetSampleSum()
			case m.GetUntyped() != nil:
				s.Value = m.GetUntyped().GetValue()
			}
			f.Samples = append(f.Samples, s)
		}
		out = append(out, f)
	}
	return out, nil
}
