// plotprops creates a plot of the haplogroup proportion trajectory
// written by mixemt -out.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

func main() {
	inF := flag.String("in", "", "trajectory file (mixemt -out)")
	restart := flag.Int("restart", 0, "restart to plot")
	outF := flag.String("o", "props.png", "output image")
	flag.Parse()

	if *inF == "" {
		flag.Usage()
		os.Exit(1)
	}

	f, err := os.Open(*inF)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	var iters []float64
	var props [][]float64

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) < 4 {
			continue
		}
		run, err := strconv.Atoi(fields[0])
		if err != nil || run != *restart {
			continue
		}
		iter, err := strconv.Atoi(fields[1])
		if err != nil {
			panic(err)
		}
		// fields[2] is the convergence delta
		row := make([]float64, len(fields)-3)
		for i, field := range fields[3:] {
			row[i], err = strconv.ParseFloat(field, 64)
			if err != nil {
				panic(err)
			}
		}
		iters = append(iters, float64(iter))
		props = append(props, row)
	}
	if err := scanner.Err(); err != nil {
		panic(err)
	}
	if len(props) == 0 {
		panic("no trajectory lines for the requested restart")
	}

	p := plot.New()
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "proportion"

	vs := make([]interface{}, 0, 2*len(props[0]))
	for g := range props[0] {
		pts := make(plotter.XYs, len(iters))
		for i := range iters {
			pts[i].X = iters[i]
			pts[i].Y = props[i][g]
		}
		vs = append(vs, fmt.Sprintf("hap%d", g), pts)
	}

	if err := plotutil.AddLinePoints(p, vs...); err != nil {
		panic(err)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, *outF); err != nil {
		panic(err)
	}
}
