package mixture

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
)

const smallDiff = 1e-9

// informative is a matrix where reads strongly favor the haplogroup
// of the same index.
func informative(nReads, nHaps int) *mat.Dense {
	lnMat := mat.NewDense(nReads, nHaps, nil)
	for j := 0; j < nReads; j++ {
		for g := 0; g < nHaps; g++ {
			if j%nHaps == g {
				lnMat.Set(j, g, 0)
			} else {
				lnMat.Set(j, g, -10)
			}
		}
	}
	return lnMat
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func TestEMStepNormalization(tst *testing.T) {
	lnMat := mat.NewDense(3, 3, []float64{
		-0.1, -2.0, -5.0,
		-4.0, -0.5, -1.0,
		-3.0, -3.0, -0.2,
	})
	lnWeights := []float64{math.Log(2), 0, 0}
	lnProps := []float64{math.Log(0.2), math.Log(0.3), math.Log(0.5)}
	post := mat.NewDense(3, 3, nil)
	newProps := make([]float64, 3)
	emStep(lnMat, lnWeights, lnProps, post, newProps, make([]float64, 3), make([]float64, 3))

	// posterior rows sum to one after exponentiation
	for j := 0; j < 3; j++ {
		sum := 0.0
		for g := 0; g < 3; g++ {
			sum += math.Exp(post.At(j, g))
		}
		if math.Abs(sum-1) > 1e-12 {
			tst.Error("Posterior row does not sum to 1:", j, sum)
		}
	}

	// new proportions sum to one after exponentiation
	sum := 0.0
	for g := 0; g < 3; g++ {
		sum += math.Exp(newProps[g])
	}
	if math.Abs(sum-1) > 1e-12 {
		tst.Error("Proportions do not sum to 1:", sum)
	}
}

func TestDominantHaplogroup(tst *testing.T) {
	// one column uniformly much larger than the others
	lnMat := mat.NewDense(4, 3, []float64{
		0, -20, -20,
		0, -20, -20,
		0, -20, -20,
		0, -20, -20,
	})
	e := NewEstimator(NewSettings())
	e.SetSource(rand.NewSource(1))
	res, err := e.Run(lnMat, ones(4))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if res.Proportions[0] <= 0.99 {
		tst.Error("Estimate not concentrated on the dominant haplogroup:", res.Proportions)
	}
	if !res.Summary.Restarts[0].Converged {
		tst.Error("No convergence on a trivial input")
	}
}

func TestSymmetricMixture(tst *testing.T) {
	lnMat := mat.NewDense(2, 2, []float64{
		0, -10,
		-10, 0,
	})
	e := NewEstimator(NewSettings())
	e.SetSource(rand.NewSource(1))
	res, err := e.Run(lnMat, []float64{1, 1})
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if math.Abs(res.Proportions[0]-0.5) > 0.02 || math.Abs(res.Proportions[1]-0.5) > 0.02 {
		tst.Error("Expected an even mixture, got", res.Proportions)
	}
}

func TestMaxIterStable(tst *testing.T) {
	lnMat := informative(6, 3)
	weights := ones(6)

	run := func(maxIter int) []float64 {
		settings := NewSettings()
		settings.MaxIter = maxIter
		e := NewEstimator(settings)
		e.SetSource(rand.NewSource(42))
		res, err := e.Run(lnMat, weights)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		return res.Proportions
	}

	// once converged, a larger iteration limit changes nothing
	first := run(1000)
	second := run(5000)
	for g := range first {
		if first[g] != second[g] {
			tst.Error("Result changed with a larger iteration limit:", first, second)
		}
	}
}

func TestImpossibleHaplogroup(tst *testing.T) {
	negInf := math.Inf(-1)
	lnMat := mat.NewDense(3, 2, []float64{
		0, negInf,
		0, negInf,
		0, negInf,
	})
	e := NewEstimator(NewSettings())
	e.SetSource(rand.NewSource(1))
	res, err := e.Run(lnMat, ones(3))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if res.Proportions[1] != 0 {
		tst.Error("Impossible haplogroup got non-zero proportion:", res.Proportions)
	}
	for g, p := range res.Proportions {
		if math.IsNaN(p) {
			tst.Error("NaN proportion for haplogroup", g)
		}
	}
	for j := 0; j < 3; j++ {
		for g := 0; g < 2; g++ {
			if math.IsNaN(res.Posterior.At(j, g)) {
				tst.Error("NaN posterior at", j, g)
			}
		}
	}
}

func TestZeroWeights(tst *testing.T) {
	lnMat := informative(4, 2)
	e := NewEstimator(NewSettings())
	e.SetSource(rand.NewSource(1))
	res, err := e.Run(lnMat, make([]float64, 4))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for g, p := range res.Proportions {
		if math.IsNaN(p) {
			tst.Error("NaN proportion for haplogroup", g)
		}
	}
}

func TestMultiRestartRowSums(tst *testing.T) {
	lnMat := informative(6, 3)
	settings := NewSettings()
	settings.NMulti = 4
	e := NewEstimator(settings)
	e.SetSource(rand.NewSource(7))
	res, err := e.Run(lnMat, ones(6))
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	// The restart aggregation is a componentwise geometric mean
	// without renormalization, so row sums may fall below one but
	// never exceed it. On this strongly informative input all
	// restarts agree and the sums stay close to one.
	for j := 0; j < 6; j++ {
		sum := 0.0
		for g := 0; g < 3; g++ {
			sum += res.Posterior.At(j, g)
		}
		if sum > 1+smallDiff {
			tst.Error("Posterior row sum above 1:", j, sum)
		}
		if sum < 0.9 {
			tst.Error("Posterior row sum unexpectedly low:", j, sum)
		}
	}
	propSum := 0.0
	for _, p := range res.Proportions {
		propSum += p
	}
	if propSum > 1+smallDiff || propSum < 0.9 {
		tst.Error("Proportion sum out of range:", propSum)
	}
	if len(res.Summary.Restarts) != 4 {
		tst.Error("Wrong number of restart summaries:", len(res.Summary.Restarts))
	}
}

func TestShapeMismatch(tst *testing.T) {
	e := NewEstimator(NewSettings())
	if _, err := e.Run(mat.NewDense(2, 2, nil), ones(3)); err == nil {
		tst.Error("Expected an error for mismatched weights")
	}
	e.SetHapNames([]string{"A"})
	if _, err := e.Run(mat.NewDense(2, 2, nil), ones(2)); err == nil {
		tst.Error("Expected an error for mismatched haplogroup names")
	}
}
