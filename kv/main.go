package main

import (
	"flag"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/ngaut/log"

	"github.com/cplane-io/tinyxs/kv/config"
	"github.com/cplane-io/tinyxs/kv/persist"
	"github.com/cplane-io/tinyxs/kv/server"
	"github.com/cplane-io/tinyxs/kv/store"
	"github.com/cplane-io/tinyxs/kv/transaction"
	"github.com/cplane-io/tinyxs/kv/watch"
)

var (
	configPath = flag.String("config", "", "config file path")
	statusAddr = flag.String("status-addr", "", "status API address")
)

func main() {
	flag.Parse()
	conf := loadConfig()
	if *statusAddr != "" {
		conf.StatusAddr = *statusAddr
	}
	log.SetLevelByString(conf.LogLevel)
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	log.Infof("conf %v", conf)

	quota := store.NewQuota(conf.MaxNodesPerDomain, conf.MaxEntrySize)
	live := store.New(quota)

	var policy transaction.ConflictPolicy
	if conf.TestConflict {
		log.Warn("test conflict injection is enabled; one in three commits will be rejected")
		policy = transaction.NewRatioPolicy(3)
	}
	committer := transaction.NewCommitter(live, nil, policy)

	dispatcher := watch.NewDispatcher()
	dispatcher.Start()

	plog, err := persist.Open(conf.DBPath)
	if err != nil {
		log.Fatal(err)
	}

	svr := server.NewServer(conf, committer, dispatcher, plog, nil)

	handleSignal(dispatcher, plog)

	log.Infof("status API listening on %v", conf.StatusAddr)
	if err := http.ListenAndServe(conf.StatusAddr, svr.StatusHandler()); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() *config.Config {
	if *configPath == "" {
		return config.NewDefaultConfig()
	}
	conf, err := config.LoadFromFile(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	return conf
}

func handleSignal(dispatcher *watch.Dispatcher, plog *persist.Log) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		log.Infof("got signal [%s], exiting", sig)
		dispatcher.Stop()
		if err := plog.Close(); err != nil {
			log.Error(err)
		}
		os.Exit(0)
	}()
}
