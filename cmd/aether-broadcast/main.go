// Command aether-broadcast captures the local screen and multicasts it over
// WebRTC to remote viewers, brokered by an upstream landlord coordinator.
package main

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/exec"
	ossignal "os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"

	"aether-broadcast/internal/config"
	"aether-broadcast/internal/conn"
	"aether-broadcast/internal/control"
	wssignal "aether-broadcast/internal/signal"
)

//go:embed public/*
var publicFS embed.FS

func main() {
	exec.Command("pkill", "-f", "ffmpeg").Run()

	cfg := config.Load("aether.conf")
	log.Printf("[main] %s", cfg)

	if err := config.CheckFFmpegAvailable(); err != nil {
		log.Printf("[main] warning: %v", err)
	}

	api, err := conn.NewAPI()
	if err != nil {
		log.Fatalf("[main] webrtc api: %v", err)
	}

	var injector control.Injector = control.XdotoolInjector{}
	mgr := conn.NewManager(cfg, api, injector)

	mux := http.NewServeMux()
	registerRoutes(mux, mgr)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Printf("[main] http listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[main] http server: %v", err)
		}
	}()

	var adapter *wssignal.Adapter
	if cfg.LandlordURL != "" {
		adapter = wssignal.New(cfg, mgr)
		if err := adapter.Dial(ctx); err != nil {
			log.Printf("[main] landlord dial failed, running in standalone mode: %v", err)
			adapter = nil
		} else {
			go func() {
				if err := adapter.Run(ctx); err != nil {
					log.Printf("[main] landlord session ended: %v", err)
					mgr.Shutdown()
				}
			}()
		}
	} else {
		log.Println("[main] no landlord URL configured, running in standalone dev mode")
	}

	select {
	case <-ctx.Done():
	case <-mgr.ShutdownRequested():
	}

	log.Println("[main] shutting down")
	mgr.Shutdown()
	if adapter != nil {
		_ = adapter.Close()
	}
	_ = srv.Shutdown(context.Background())
}

func registerRoutes(mux *http.ServeMux, mgr *conn.Manager) {
	sub, err := fs.Sub(publicFS, "public")
	if err != nil {
		log.Fatalf("[main] embedded assets: %v", err)
	}
	mux.Handle("/", http.FileServer(http.FS(sub)))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
		})
	})

	mux.HandleFunc("/offer", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			UUID string `json:"uuid"`
			SDP  string `json:"sdp"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid offer", http.StatusBadRequest)
			return
		}
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: body.SDP}
		answer, err := mgr.Connect(r.Context(), body.UUID, offer)
		if err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(answer)
	})
}
