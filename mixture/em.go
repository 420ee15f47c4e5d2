package mixture

import (
	"fmt"
	"io"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	"github.com/alexhbnr/mixemt/checkpoint"
)

// Estimator runs the EM algorithm on a log-likelihood matrix.
type Estimator struct {
	*Settings
	out       io.Writer
	repPeriod int
	ckp       *checkpoint.CheckpointIO
	src       rand.Source
	hapNames  []string
}

// Result holds the outputs of an estimation call in natural space.
// With NMulti>1 the values are geometric means over the restarts and
// are not renormalized, so rows of the posterior (and the proportion
// vector) may sum to less than one.
type Result struct {
	// Proportions is the estimated contribution of every
	// haplogroup to the mixture.
	Proportions []float64
	// Posterior is the read × haplogroup matrix of posterior
	// origin probabilities.
	Posterior *mat.Dense
	// Summary describes the restarts that produced the result.
	Summary Summary
}

// NewEstimator creates an estimator with the given settings.
func NewEstimator(settings *Settings) *Estimator {
	return &Estimator{
		Settings:  settings,
		repPeriod: 10,
	}
}

// SetOutput makes the estimator write a proportion trajectory to w.
func (e *Estimator) SetOutput(w io.Writer) {
	e.out = w
}

// SetReportPeriod sets how often trajectory lines are written.
func (e *Estimator) SetReportPeriod(period int) {
	e.repPeriod = period
}

// SetCheckpoint makes the estimator save its state periodically.
func (e *Estimator) SetCheckpoint(ckp *checkpoint.CheckpointIO) {
	e.ckp = ckp
}

// SetSource sets the random number source used for the initial
// Dirichlet draws. The global source is used otherwise.
func (e *Estimator) SetSource(src rand.Source) {
	e.src = src
}

// SetHapNames attaches haplogroup names to the matrix columns for
// trajectory and checkpoint output.
func (e *Estimator) SetHapNames(names []string) {
	e.hapNames = names
}

// Run estimates mixture proportions from lnMat, the matrix of
// log P(read|haplogroup), and per-read multiplicity weights. It
// returns the proportion vector and the posterior read × haplogroup
// matrix, both in natural space.
func (e *Estimator) Run(lnMat *mat.Dense, weights []float64) (*Result, error) {
	nReads, nHaps := lnMat.Dims()
	if nReads == 0 || nHaps == 0 {
		return nil, fmt.Errorf("empty likelihood matrix (%d×%d)", nReads, nHaps)
	}
	if len(weights) != nReads {
		return nil, fmt.Errorf("%d weights for %d reads", len(weights), nReads)
	}
	if e.hapNames != nil && len(e.hapNames) != nHaps {
		return nil, fmt.Errorf("%d haplogroup names for %d columns", len(e.hapNames), nHaps)
	}
	if e.InitAlpha <= 0 {
		return nil, fmt.Errorf("non-positive Dirichlet concentration %v", e.InitAlpha)
	}
	if e.NMulti < 1 {
		return nil, fmt.Errorf("number of restarts %d < 1", e.NMulti)
	}

	lnWeights := make([]float64, nReads)
	for j, w := range weights {
		lnWeights[j] = math.Log(w)
	}

	alpha := make([]float64, nHaps)
	for g := range alpha {
		alpha[g] = e.InitAlpha
	}
	dirichlet := distmv.NewDirichlet(alpha, e.src)

	resProps := make([]float64, nHaps)
	resPost := mat.NewDense(nReads, nHaps, nil)
	summary := Summary{}

	for run := 0; run < e.NMulti; run++ {
		if e.Verbose {
			log.Infof("Starting EM run %d...", run+1)
		}
		startTime := time.Now()

		lnProps := logDirichlet(dirichlet)
		newProps := make([]float64, nHaps)
		post := mat.NewDense(nReads, nHaps, nil)
		joint := make([]float64, nHaps)
		col := make([]float64, nReads)

		rs := RestartSummary{}
		for iter := 0; iter < e.MaxIter; iter++ {
			emStep(lnMat, lnWeights, lnProps, post, newProps, joint, col)
			diff := propDiff(lnProps, newProps)
			lnProps, newProps = newProps, lnProps
			rs.Iterations = iter + 1

			e.reportLine(run, iter, diff, lnProps)
			if e.ckp != nil && e.ckp.Old() {
				e.saveCheckpoint(run, iter, lnProps, false)
			}

			if diff < e.Tolerance {
				rs.Converged = true
				break
			}
		}
		rs.Time = time.Since(startTime).Seconds()
		if e.Verbose {
			if rs.Converged {
				log.Infof("Converged! (%d)", rs.Iterations)
			} else {
				log.Infof("No convergence after %d iterations, keeping last estimate", rs.Iterations)
			}
		}
		summary.Restarts = append(summary.Restarts, rs)
		if e.ckp != nil {
			e.saveCheckpoint(run, rs.Iterations, lnProps, run == e.NMulti-1)
		}

		// accumulate restart results in log space
		floats.Add(resProps, lnProps)
		resPost.Add(resPost, post)
	}

	// Geometric mean over the restarts: divide the accumulated log
	// values before a single exponentiation, no renormalization.
	if e.NMulti > 1 {
		floats.Scale(1/float64(e.NMulti), resProps)
		resPost.Scale(1/float64(e.NMulti), resPost)
	}
	for g := range resProps {
		resProps[g] = math.Exp(resProps[g])
	}
	raw := resPost.RawMatrix().Data
	for i := range raw {
		raw[i] = math.Exp(raw[i])
	}

	return &Result{Proportions: resProps, Posterior: resPost, Summary: summary}, nil
}

// emStep performs one E and one M step. lnProps is read, post and
// newProps are overwritten; joint and col are scratch vectors owned
// by the calling restart.
func emStep(lnMat *mat.Dense, lnWeights, lnProps []float64, post *mat.Dense, newProps, joint, col []float64) {
	nReads, nHaps := lnMat.Dims()

	// E-step: posterior log-probability that read j originates
	// from haplogroup g under the current proportions.
	for j := 0; j < nReads; j++ {
		floats.AddTo(joint, lnProps, lnMat.RawRowView(j))
		norm := floats.LogSumExp(joint)
		row := post.RawRowView(j)
		if math.IsInf(norm, -1) {
			// read impossible under every haplogroup; keep
			// the row at -Inf instead of producing NaN
			copy(row, joint)
			continue
		}
		for g, v := range joint {
			row[g] = v - norm
		}
	}

	// M-step: weighted contribution of every haplogroup.
	for g := 0; g < nHaps; g++ {
		for j := 0; j < nReads; j++ {
			col[j] = post.At(j, g) + lnWeights[j]
		}
		newProps[g] = floats.LogSumExp(col)
	}
	norm := floats.LogSumExp(newProps)
	if !math.IsInf(norm, -1) {
		floats.AddConst(-norm, newProps)
	}
}

// propDiff returns the sum of absolute differences between two
// log-proportion vectors in natural space.
func propDiff(lnProps, newProps []float64) (sum float64) {
	for g := range lnProps {
		sum += math.Abs(math.Exp(lnProps[g]) - math.Exp(newProps[g]))
	}
	return
}

// logDirichlet draws initial proportions and stores their logs.
func logDirichlet(d *distmv.Dirichlet) []float64 {
	props := d.Rand(make([]float64, d.Dim()))
	for g, p := range props {
		props[g] = math.Log(p)
	}
	return props
}

func (e *Estimator) hapName(g int) string {
	if e.hapNames != nil {
		return e.hapNames[g]
	}
	return fmt.Sprintf("hap%d", g)
}

// reportLine writes one trajectory record: restart, iteration,
// proportion change and the natural-space proportions.
func (e *Estimator) reportLine(run, iter int, diff float64, lnProps []float64) {
	if e.out == nil || iter%e.repPeriod != 0 {
		return
	}
	fmt.Fprintf(e.out, "%d\t%d\t%g", run, iter, diff)
	for _, lnP := range lnProps {
		fmt.Fprintf(e.out, "\t%f", math.Exp(lnP))
	}
	fmt.Fprintln(e.out)
}

func (e *Estimator) saveCheckpoint(run, iter int, lnProps []float64, final bool) {
	props := make(map[string]float64, len(lnProps))
	for g, lnP := range lnProps {
		props[e.hapName(g)] = math.Exp(lnP)
	}
	e.ckp.Save(&checkpoint.CheckpointData{
		Proportions: props,
		Restart:     run,
		Iter:        iter,
		Final:       final,
	})
}
