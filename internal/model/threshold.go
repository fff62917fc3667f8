package model

import "fmt"

// TuneThreshold sweeps decision thresholds from 0.05 to 0.49 in steps of 0.01 and
// returns the one with the best F1 score on labelled probabilities. It returns
// DefaultThreshold with F1 0 when no threshold yields a positive F1.
func TuneThreshold(probabilities []float64, labels []bool) (threshold, f1 float64, err error) {
	if len(probabilities) == 0 {
		return 0, 0, fmt.Errorf("no probabilities to tune on")
	}
	if len(probabilities) != len(labels) {
		return 0, 0, fmt.Errorf("%d probabilities for %d labels", len(probabilities), len(labels))
	}

	threshold = DefaultThreshold
	for step := 5; step < 50; step++ {
		th := float64(step) / 100
		score := f1Score(probabilities, labels, th)
		if score > f1 {
			f1 = score
			threshold = th
		}
	}
	return threshold, f1, nil
}

func f1Score(probabilities []float64, labels []bool, threshold float64) float64 {
	var tp, fp, fn float64
	for i, p := range probabilities {
		predicted := p >= threshold
		switch {
		case predicted && labels[i]:
			tp++
		case predicted && !labels[i]:
			fp++
		case !predicted && labels[i]:
			fn++
		}
	}
	if tp == 0 {
		return 0
	}
	precision := tp / (tp + fp)
	recall := tp / (tp + fn)
	return 2 * precision * recall / (precision + recall)
}

