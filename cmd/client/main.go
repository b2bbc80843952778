//Demo querier. Pulls samples from an MNIST directory or a JSON data
//file, requests one slot per batch from the owner's queue and prints
//the predicted classes. Stops cleanly when the owner's request bound
//is spent.
package main

import (
	"errors"
	"flag"

	log "github.com/sirupsen/logrus"

	"github.com/oblivml/mpcserve/cluster"
	"github.com/oblivml/mpcserve/data"
	"github.com/oblivml/mpcserve/model"
	"github.com/oblivml/mpcserve/serving"
)

func main() {
	configPath := flag.String("config", "config.json", "path to cluster config")
	mnistDir := flag.String("mnist", "", "directory with the MNIST test set")
	dataPath := flag.String("data", "", "JSON data file with samples and labels")
	samples := flag.Int("n", 8, "number of samples to classify")
	flag.Parse()

	cfg, err := cluster.ReadConfig(*configPath)
	if err != nil {
		log.Fatalf("[!] client -- %v", err)
	}

	var ds *data.Data
	switch {
	case *mnistDir != "":
		ds, err = data.LoadMNIST(*mnistDir, *samples)
	case *dataPath != "":
		ds, err = data.LoadJSON(*dataPath)
	default:
		log.Fatal("[!] client -- need -mnist or -data")
	}
	if err != nil {
		log.Fatalf("[!] client -- %v", err)
	}
	ds.Init(cfg.BatchSize)

	client := serving.NewClient(cfg.QueueAddr)
	stats := model.NewStats(cfg.BatchSize)
	for {
		X, Y, err := ds.Batch()
		if errors.Is(err, data.ErrNoMoreBatches) {
			break
		}
		if err != nil {
			log.Fatalf("[!] client -- %v", err)
		}

		scores, err := client.PredictBatch(X)
		if errors.Is(err, serving.ErrExhausted) {
			log.Info("[*] client -- request limit reached, stopping")
			break
		}
		if err != nil {
			log.Fatalf("[!] client -- %v", err)
		}

		corrects, accuracy, predictions := model.Predict(Y, scores)
		log.Infof("[*] client -- batch: predicted %v, labels %v", predictions, Y)
		stats.Accumulate(model.Stats{Corrects: corrects, Accuracy: accuracy})
	}
	if stats.Iters > 0 {
		log.Infof("[*] client -- %d batches, %d correct, accuracy %.3f",
			stats.Iters, stats.Corrects, stats.Accuracy/float64(stats.Iters))
	}
}
