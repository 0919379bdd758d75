package workers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"gococo/config"
	"gococo/workers/handlers"
)

func Router(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Options("/*", handlers.CORSHeaders)

	r.Get("/health", handlers.HealthCheck)
	r.Get("/state", api.State)
	r.Get("/balances", api.Balances)
	r.Get("/positions", api.Positions)
	r.Get("/activity", api.Activity)

	r.Post("/strategy", api.CreateStrategy)
	r.Post("/deposit", api.Deposit)
	r.Post("/withdraw", api.Withdraw)
	r.Post("/send", api.Send)

	r.Post("/bridge", api.Bridge)
	r.Get("/bridge/{id}", api.BridgeOperation)
	r.Get("/stats/failed", api.FailedBridges)

	r.Get("/addressbook", api.AddressBook)
	r.Post("/addressbook", api.SaveAddressBook)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Worker_HTTP serves the API until SIGINT/SIGTERM, then calls stop so the
// other workers exit too
func Worker_HTTP(api *handlers.API, stop context.CancelFunc) {
	log.Printf("Starting HTTP service")

	var server *http.Server

	if config.Config.Server.UseSSL {
		cert, err := tls.LoadX509KeyPair("certchain.pem", "privatekey.pem")
		if err != nil {
			log.Fatalf("error loading TLS key pair: %s", err)
		}
		server = &http.Server{
			Addr:    ":443",
			Handler: Router(api),
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			},
		}
	} else {
		server = &http.Server{
			Addr:    fmt.Sprintf(":%d", config.Config.Server.Port),
			Handler: Router(api),
		}
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if config.Config.Server.UseSSL {
			if err := server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
				log.Fatalf("error listening to: %s", err)
			}
		} else {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("error listening to: %s", err)
			}
		}
	}()
	log.Printf("HTTP service started on %s", server.Addr)

	<-done
	log.Print("HTTP service stopped")

	// send signal to other threads/workers to exit
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP service shutdown error: %+v", err)
	}
	log.Print("HTTP service shutdown normal")
}
