package hdr

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// exact lattice counting is used below this sample-size product.
const exactKSLimit = 10000

// KolmogorovSmirnovTest returns the two-sample Kolmogorov-Smirnov p-value,
// the probability of observing a statistic at least as large as the one
// computed from x and y if both came from the same distribution.
// Empty samples give 1.
func KolmogorovSmirnovTest(x, y []float64) float64 {
	n, m := len(x), len(y)
	if n == 0 || m == 0 {
		return 1
	}

	d := KolmogorovSmirnovStatistic(x, y)
	if d == 0 {
		return 1
	}

	if n*m < exactKSLimit {
		return exactKSPValue(d, n, m)
	}

	lambda := d * math.Sqrt(float64(n*m)/float64(n+m))

	return kolmogorovQ(lambda)
}

// KolmogorovSmirnovStatistic is the largest distance between the empirical
// distribution functions of x and y.
func KolmogorovSmirnovStatistic(x, y []float64) float64 {
	xs := slices.Clone(x)
	ys := slices.Clone(y)
	slices.Sort(xs)
	slices.Sort(ys)

	return stat.KolmogorovSmirnov(xs, nil, ys, nil)
}

// exactKSPValue counts the monotone lattice paths from (0,0) to (n,m) that
// stay strictly inside the band |i/n - j/m| < d; the p-value is the share of
// paths that leave it.
func exactKSPValue(d float64, n, m int) float64 {
	// compare in integer-scaled units with a tolerance for the rounding of d
	limit := d*float64(n)*float64(m) - 1e-7

	inside := func(i, j int) bool {
		return math.Abs(float64(i*m-j*n)) < limit
	}

	paths := make([]float64, m+1)

	for i := 0; i <= n; i++ {
		for j := 0; j <= m; j++ {
			switch {
			case i == 0 && j == 0:
				paths[j] = 1
			case !inside(i, j):
				paths[j] = 0
			default:
				var fromLeft float64
				if j > 0 {
					fromLeft = paths[j-1]
				}

				if i == 0 {
					paths[j] = fromLeft
				} else {
					paths[j] += fromLeft
				}
			}
		}
	}

	total := binomial(n+m, n)
	p := 1 - paths[m]/total

	return math.Min(1, math.Max(0, p))
}

func binomial(n, k int) float64 {
	k = min(k, n-k)
	out := 1.0

	for i := 1; i <= k; i++ {
		out = out * float64(n-k+i) / float64(i)
	}

	return out
}

// kolmogorovQ is the asymptotic tail 2 * sum((-1)^(k-1) * exp(-2 k^2 lambda^2)).
func kolmogorovQ(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}

	var sum float64

	sign := 1.0

	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term

		if math.Abs(term) < 1e-12 {
			break
		}

		sign = -sign
	}

	return math.Min(1, math.Max(0, 2*sum))
}
