package report

import (
	"io"

	"github.com/aybabtme/uniplot/histogram"
)

const histogramWidth = 10

// Histogram prints the distribution of values as a text histogram
func Histogram(w io.Writer, values []float64, bins int) error {
	if len(values) == 0 {
		return nil
	}

	hist := histogram.Hist(bins, values)
	return histogram.Fprint(w, hist, histogram.Linear(histogramWidth))
}
