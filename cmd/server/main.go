//Serving daemon for the model owner. Loads the pretrained weights,
//secret-shares them across the two compute workers, provisions the
//configured number of requests with the crypto provider and hands out
//slots until the bound is spent, then shuts the cluster down.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/oblivml/mpcserve/cluster"
	"github.com/oblivml/mpcserve/model"
	"github.com/oblivml/mpcserve/serving"
)

func main() {
	configPath := flag.String("config", "config.json", "path to cluster config")
	requests := flag.Int("requests", 0, "override the config's num_requests")
	flag.Parse()

	cfg, err := cluster.ReadConfig(*configPath)
	if err != nil {
		log.Fatalf("[!] server -- %v", err)
	}
	if *requests > 0 {
		cfg.NumRequests = *requests
	}

	n, err := model.Load(cfg.WeightsPath)
	if err != nil {
		log.Fatalf("[!] server -- %v", err)
	}
	log.Infof("[*] server -- model %s: %d layers, %d -> %d", cfg.WeightsPath, n.NumLayers(), n.InputDim(), n.OutputDim())

	qs, err := serving.NewQueueServer(cfg, n)
	if err != nil {
		log.Fatalf("[!] server -- %v", err)
	}
	if err := qs.Start(); err != nil {
		log.Fatalf("[!] server -- %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info("[*] server -- interrupted")
		cancel()
	}()

	err = qs.Serve(ctx, cfg.NumRequests)
	if stopErr := qs.Stop(); stopErr != nil {
		log.Warnf("[*] server -- stopping cluster: %v", stopErr)
	}
	if err != nil && err != context.Canceled {
		log.Fatalf("[!] server -- %v", err)
	}
	log.Infof("[*] server -- served %d requests, cluster down", cfg.NumRequests)
}
