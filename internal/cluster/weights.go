package cluster

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/painminer/internal/model"
)

// Weights maps willingness-to-pay and frequency labels to the numeric
// factors used in opportunity scoring. A configuration surface, not a magic
// constant: operators tune these per vertical.
type Weights struct {
	WTP       map[model.WTP]float64       `yaml:"wtp"`
	Frequency map[model.Frequency]float64 `yaml:"frequency"`
}

// DefaultWeights returns the stock weight tables.
func DefaultWeights() Weights {
	return Weights{
		WTP: map[model.WTP]float64{
			model.WTPNone:   0,
			model.WTPLow:    1,
			model.WTPMedium: 2,
			model.WTPHigh:   3,
		},
		Frequency: map[model.Frequency]float64{
			model.FrequencyRare:    1,
			model.FrequencyMonthly: 1.5,
			model.FrequencyWeekly:  2,
			model.FrequencyDaily:   3,
		},
	}
}

// LoadWeights reads a weight table file, filling unset entries from the
// defaults. An empty path returns the defaults unchanged.
func LoadWeights(path string) (Weights, error) {
	w := DefaultWeights()
	if path == "" {
		return w, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return w, eris.Wrapf(err, "cluster: read weights %s", path)
	}

	var file Weights
	if err := yaml.Unmarshal(data, &file); err != nil {
		return w, eris.Wrapf(err, "cluster: parse weights %s", path)
	}

	for k, v := range file.WTP {
		w.WTP[k] = v
	}
	for k, v := range file.Frequency {
		w.Frequency[k] = v
	}
	return w, nil
}
