package main

import "github.com/alexhbnr/mixemt/mixture"

// RunSummary is storing mixemt run summary information.
type RunSummary struct {
	// Version stores mixemt version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// NReads is the number of reads in the input.
	NReads int `json:"nReads"`
	// NUniqueReads is the number of unique reads on the retained sites.
	NUniqueReads int `json:"nUniqueReads"`
	// NHaplogroups is the number of haplogroups in the mixture model.
	NHaplogroups int `json:"nHaplogroups"`
	// NVariantSites is the number of variant positions retained after filtering.
	NVariantSites int `json:"nVariantSites"`
	// Proportions holds the estimated contributions at or above the reporting threshold.
	Proportions map[string]float64 `json:"proportions"`
	// EM is the estimation summary with per-restart convergence information.
	EM mixture.Summary `json:"em"`
	// Time is the computations time in seconds.
	Time float64 `json:"time"`
}
