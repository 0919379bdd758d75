package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"gococo/EVMRPC"
	"gococo/balances"
	"gococo/bridge"
	"gococo/config"
	"gococo/executor"
	"gococo/reconciler"
	"gococo/redis"
	"gococo/smartaccount"
	"gococo/vault"
	"gococo/wallet"
	"gococo/workers"
	"gococo/workers/handlers"
)

func main() {
	log.Print("Starting coco account service")

	f, err := os.OpenFile(fmt.Sprintf("logs/log_%s.txt", time.Now().Format("2006-01-02")), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file for writing: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(os.Stdout, f))

	config.Init()
	if level, err := log.ParseLevel(config.Config.Server.LogLevel); err == nil {
		log.SetLevel(level)
	}

	signer, err := wallet.NewKeySigner(config.Config.Account.PrivateKey, nil)
	if err != nil {
		log.Fatalf("error loading account key: %s", err)
	}
	account := common.HexToAddress(config.Config.Account.Address)
	if signer.Address() != account {
		log.Fatalf("private key belongs to %s, not the configured account %s", signer.Address().Hex(), account.Hex())
	}

	// connect to Redis, without persistence do not continue
	redis.Init()
	if err := redis.Ping(); err != nil {
		log.Fatalf("error connecting to Redis: %s", err)
	}

	chains := config.EVMChains
	clients := EVMRPC.NewRegistry(chains)
	defer clients.Close()

	polling := config.Config.Polling
	wait := executor.WaitOpts{
		Interval: time.Duration(polling.ConfirmIntervalMs) * time.Millisecond,
		MaxWait:  time.Duration(polling.ConfirmMaxWaitSec) * time.Second,
	}

	endpoints := make(map[int]string)
	for id, chain := range chains {
		if chain.BundlerURL != "" {
			endpoints[id] = chain.BundlerURL
		}
	}
	capability := smartaccount.RawMessageOnly(signer)
	if config.Config.Account.NativeUserOps {
		capability = smartaccount.Native(signer)
	}
	adapter, err := smartaccount.New(capability, chains, smartaccount.NewJSONRPCBundler(endpoints, 30*time.Second))
	if err != nil {
		log.Fatalf("error creating smart account: %s", err)
	}

	exec := executor.New(clients, signer)
	rec := reconciler.New(clients, chains, polling.ScanWindow)
	refresher := reconciler.NewRefresher(rec, account, polling.ActivityLimit)
	aggregator := balances.New(clients, chains, account)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	api := handlers.New(handlers.Deps{
		Account:       account,
		DefaultChain:  config.Config.DefaultChain,
		Chains:        chains,
		FeeBps:        config.DEFAULT_FEE_BPS,
		ActivityLimit: polling.ActivityLimit,
		Balances:      aggregator,
		Positions:     refresher,
		Flows:         vault.New(exec, chains, rec, wait),
		Bridge:        bridge.New(adapter, chains, wait, redis.Journal{}),
		Store:         redis.Store{},
		Ctx:           ctx,
	})

	// worker threads:
	// * token balance on every chain
	// * strategy positions and loan activity
	// * API serving HTTP(S) server (serves as main worker thread)
	go workers.Worker_refreshBalances(ctx, aggregator, time.Duration(polling.BalanceIntervalSec)*time.Second)
	go workers.Worker_refreshPositions(ctx, refresher, time.Duration(polling.PositionIntervalSec)*time.Second)

	workers.Worker_HTTP(api, stop)
}
