//Worker daemon. Run one instance per endpoint of the config's workers
//list: ids 0 and 1 are the compute parties, id 2 the crypto provider.
//The process exits when the serving daemon sends the shutdown command.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/oblivml/mpcserve/cluster"
	"github.com/oblivml/mpcserve/distributed"
)

func main() {
	id := flag.Int("id", 0, "worker id, 0..2")
	configPath := flag.String("config", "config.json", "path to cluster config")
	flag.Parse()

	cfg, err := cluster.ReadConfig(*configPath)
	if err != nil {
		log.Fatalf("[!] worker -- %v", err)
	}
	if *id < 0 || *id > 2 {
		log.Fatalf("[!] worker -- id %d outside 0..2", *id)
	}

	w := distributed.NewWorker(*id, cfg.Workers[*id])
	if err := w.Start(); err != nil {
		log.Fatalf("[!] worker %d -- %v", *id, err)
	}
	log.Infof("[+] worker %d -- listening at %s", *id, w.ListenAddr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Infof("[+] worker %d -- interrupted", *id)
		w.Stop()
	}()

	w.Listen()
	log.Infof("[+] worker %d -- bye", *id)
}
