package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/openfast-rag/openfast-rag-backend/config"
	"github.com/openfast-rag/openfast-rag-backend/internal/bootstrap"
	"github.com/openfast-rag/openfast-rag-backend/internal/logging"
)

const usage = "usage: worker show | reconcile | forget"

func main() {
	if len(os.Args) < 2 {
		log.Fatal(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[error] config: %v", err)
	}
	logging.SetLevel(cfg.App.LogLevel)

	ctx, cancel := context.WithTimeout(logging.WithRequestID(context.Background(), "worker-"+os.Args[1]), 2*time.Minute)
	defer cancel()

	svcs, err := bootstrap.NewServices(ctx, cfg)
	if err != nil {
		log.Fatalf("[error] init: %v", err)
	}
	defer svcs.Close()

	switch os.Args[1] {
	case "show":
		err = RunShow(ctx, svcs.Store, os.Stdout)
	case "reconcile":
		err = RunReconcile(ctx, svcs.Lifecycle, os.Stdout)
	case "forget":
		err = RunForget(ctx, svcs.Lifecycle, os.Stdout)
	default:
		log.Printf("unknown command: %s", os.Args[1])
		log.Print(usage)
		svcs.Close()
		os.Exit(2)
	}
	if err != nil {
		svcs.Close()
		log.Fatalf("[error] %s: %v", os.Args[1], err)
	}
}
