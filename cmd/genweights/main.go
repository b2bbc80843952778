//Writes a random pretrained-weights file, handy for trying the cluster
//without exporting a real model.
package main

import (
	"flag"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/oblivml/mpcserve/model"
)

func main() {
	out := flag.String("o", "weights.json", "output weights file")
	arch := flag.String("arch", "784,128,10", "comma-separated layer widths")
	seed := flag.Int64("seed", 42, "rng seed")
	flag.Parse()

	var dims []int
	for _, f := range strings.Split(*arch, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil || d < 1 {
			log.Fatalf("[!] genweights -- bad arch %q", *arch)
		}
		dims = append(dims, d)
	}
	if len(dims) < 2 {
		log.Fatalf("[!] genweights -- arch needs at least two widths")
	}

	n := model.RandomNetwork(dims, 4, *seed)
	if err := model.Save(n, *out); err != nil {
		log.Fatalf("[!] genweights -- %v", err)
	}
	log.Infof("[*] genweights -- wrote %s (%d layers)", *out, n.NumLayers())
}
