/*

Mixemt estimates which haplogroups of a phylogenetic tree contributed
to a sequencing sample and in what proportions, using a mixture model
fit by expectation-maximization.

The basic usage of mixemt looks like this:

	mixemt phylotree.csv reads.txt reference.fa

, this will run a single EM estimation with default settings and print
the contributing haplogroups with their proportions.

Unreliable tree positions can be excluded and the estimate can be
averaged over multiple random restarts:

	mixemt -rm-unstable -rm-backmut -multi 10 phylotree.csv reads.txt reference.fa

To see all the options run:

	mixemt -h

*/
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime/pprof"
	"sort"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/op/go-logging"

	"golang.org/x/exp/rand"

	bolt "go.etcd.io/bbolt"

	"github.com/alexhbnr/mixemt/bio"
	"github.com/alexhbnr/mixemt/checkpoint"
	"github.com/alexhbnr/mixemt/mixture"
	"github.com/alexhbnr/mixemt/phylotree"
	"github.com/alexhbnr/mixemt/preprocess"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("mixemt")
var formatter = logging.MustStringFormatter(`%{message}`)

// command-line options
var (
	// application
	app = kingpin.New("mixemt", "haplogroup mixture estimator").Version(version)

	// input tree, reads and reference
	treeFileName  = app.Arg("tree", "haplogroup tree description (leveled CSV)").Required().ExistingFile()
	readsFileName = app.Arg("reads", "observed reads, one observation string per line").Required().ExistingFile()
	refFileName   = app.Arg("reference", "reference sequence (FASTA)").Required().ExistingFile()

	// tree filtering
	rmUnstable = app.Flag("rm-unstable", "exclude variant positions annotated as unstable").Bool()
	rmBackmut  = app.Flag("rm-backmut", "exclude variant positions with a back-mutation annotation").Bool()
	leavesOnly = app.Flag("leaves", "estimate contributions for leaf haplogroups only").Bool()

	// likelihood model
	miscall = app.Flag("miscall", "per-base miscall rate").Default("0.01").Float64()

	// EM parameters
	initAlpha = app.Flag("alpha", "Dirichlet concentration for the initial proportions").Default("1.0").Float64()
	tolerance = app.Flag("tolerance", "convergence tolerance on the proportion change").Default("1e-4").Float64()
	maxIter   = app.Flag("iter", "maximum number of EM iterations per restart").Default("1000").Int()
	nMulti    = app.Flag("multi", "number of independent EM restarts").Default("1").Int()
	report    = app.Flag("report", "write a trajectory line every N iterations").Default("10").Int()

	// reporting
	minProp = app.Flag("minprop", "minimum proportion for a haplogroup to be reported").Default("0.01").Float64()

	// technical
	seed       = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	cpuProfile = app.Flag("cpuprofile", "write cpu profile to file").String()

	// input/output
	outLogF     = app.Flag("log", "write log to a file").String()
	outF        = app.Flag("out", "write EM trajectory to a file").String()
	checkpointF = app.Flag("checkpoint", "checkpoint database file").String()
	ckpPeriod   = app.Flag("ckpperiod", "minimum number of seconds between checkpoint saves").Default("30").Float64()
	logLevel    = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
	jsonF = app.Flag("json", "write json output to a file").String()
)

func run(src rand.Source, db *bolt.DB) (summary *RunSummary) {
	startTime := time.Now()
	summary = &RunSummary{}

	treeFile, err := os.Open(*treeFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer treeFile.Close()

	tree, err := phylotree.Parse(treeFile)
	if err != nil {
		log.Fatal(err)
	}
	tree.ProcessVariants(*rmUnstable, *rmBackmut)
	log.Infof("Read tree with %d haplogroups, %d variant sites retained",
		tree.NNodes(), len(tree.VariantPos()))
	log.Debug(tree.FullString())

	var haps []*phylotree.Node
	if *leavesOnly {
		for node := range tree.Terminals() {
			haps = append(haps, node)
		}
		log.Infof("Using %d leaf haplogroups", len(haps))
	} else {
		haps = tree.Nodes()
	}
	hapNames := make([]string, len(haps))
	for g, hap := range haps {
		hapNames[g] = hap.HapID
	}

	refFile, err := os.Open(*refFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer refFile.Close()

	ref, err := bio.ReadReference(refFile)
	if err != nil {
		log.Fatal(err)
	}
	log.Infof("Read reference of %d bases", len(ref))

	readsFile, err := os.Open(*readsFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer readsFile.Close()

	lines, err := bio.ReadLines(readsFile)
	if err != nil {
		log.Fatal(err)
	}
	reads, err := preprocess.ParseReads(lines)
	if err != nil {
		log.Fatal(err)
	}
	unique, weights := preprocess.Collapse(reads, tree.VariantPos())
	log.Infof("Read %d reads, %d unique on the retained sites", len(reads), len(unique))

	lnMat, err := preprocess.BuildMatrix(ref, tree, haps, unique, *miscall)
	if err != nil {
		log.Fatal(err)
	}

	settings := mixture.NewSettings()
	settings.InitAlpha = *initAlpha
	settings.Tolerance = *tolerance
	settings.MaxIter = *maxIter
	settings.NMulti = *nMulti
	settings.Verbose = true

	est := mixture.NewEstimator(settings)
	est.SetHapNames(hapNames)
	est.SetReportPeriod(*report)
	if src != nil {
		est.SetSource(src)
	}

	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			log.Fatal("Error creating trajectory file:", err)
		}
		defer f.Close()
		est.SetOutput(f)
	}

	if db != nil {
		ckp := checkpoint.NewCheckpointIO(db, []byte("em"), *ckpPeriod)
		// report a state left behind by a previous run
		if _, err := ckp.Load(); err != nil {
			log.Error("Error reading checkpoint:", err)
		}
		est.SetCheckpoint(ckp)
	}

	res, err := est.Run(lnMat, weights)
	if err != nil {
		log.Fatal(err)
	}

	printContributors(hapNames, res.Proportions)
	logAssignments(hapNames, res)

	summary.NReads = len(reads)
	summary.NUniqueReads = len(unique)
	summary.NHaplogroups = len(haps)
	summary.NVariantSites = len(tree.VariantPos())
	summary.Proportions = make(map[string]float64)
	for g, p := range res.Proportions {
		if p >= *minProp {
			summary.Proportions[hapNames[g]] = p
		}
	}
	summary.EM = res.Summary

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)
	summary.Time = deltaT.Seconds()

	return
}

// printContributors prints the estimated mixture, largest
// contribution first, omitting haplogroups below the reporting
// threshold.
func printContributors(hapNames []string, props []float64) {
	order := make([]int, len(props))
	for g := range order {
		order[g] = g
	}
	sort.Slice(order, func(i, j int) bool {
		return props[order[i]] > props[order[j]]
	})
	fmt.Printf("haplogroup\tproportion\n")
	for _, g := range order {
		if props[g] < *minProp {
			break
		}
		fmt.Printf("%s\t%.4f\n", hapNames[g], props[g])
	}
}

// logAssignments reports the most likely origin of every unique read.
func logAssignments(hapNames []string, res *mixture.Result) {
	nReads, nHaps := res.Posterior.Dims()
	for j := 0; j < nReads; j++ {
		best := 0
		for g := 1; g < nHaps; g++ {
			if res.Posterior.At(j, g) > res.Posterior.At(j, best) {
				best = g
			}
		}
		log.Debugf("read %d: %s (%.3f)", j, hapNames[best], res.Posterior.At(j, best))
	}
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	// logging
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatal("Error creating log file:", err)
		}
		defer f.Close()
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	level, err := logging.LogLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	logging.SetLevel(level, "mixemt")
	logging.SetLevel(level, "mixture")
	logging.SetLevel(level, "checkpoint")

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)
	src := rand.NewSource(uint64(*seed))

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	var db *bolt.DB
	if *checkpointF != "" {
		db, err = bolt.Open(*checkpointF, 0666, nil)
		if err != nil {
			log.Fatal("Error opening checkpoint database:", err)
		}
		defer db.Close()
	}

	summary := run(src, db)
	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed

	// output summary in json format
	if *jsonF != "" {
		j, err := json.Marshal(summary)
		if err != nil {
			log.Error(err)
		} else {
			log.Debug(string(j))
			f, err := os.Create(*jsonF)
			if err != nil {
				log.Error("Error creating json output file:", err)
			} else {
				f.Write(j)
				f.Close()
			}
		}
	}
}
