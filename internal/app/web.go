package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/gamepad_polling/internal/config"
	"github.com/relabs-tech/gamepad_polling/internal/gamepad"
	"github.com/relabs-tech/gamepad_polling/internal/metrics"
	"github.com/relabs-tech/gamepad_polling/internal/polling"
	"github.com/relabs-tech/gamepad_polling/internal/scheduler"
)

type startRequest struct {
	ID     *gamepad.ID `json:"id"`
	FPS    int         `json:"fps"`
	Record *bool       `json:"record"`
}

type logSizeRequest struct {
	LogSize int `json:"log_size"`
}

type idsResponse struct {
	IDs []gamepad.ID `json:"ids"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// decodeBody reads an optional JSON body into v. An empty body is not an error.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// NewServer builds the HTTP handler of the web host.
func NewServer(ctl *Control, hub *Hub, defaults StartDefaults, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/ids", func(w http.ResponseWriter, r *http.Request) {
		ids, err := ctl.PresentIDs()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if ids == nil {
			ids = []gamepad.ID{}
		}
		writeJSON(w, http.StatusOK, idsResponse{IDs: ids})
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctl.Status())
	})

	mux.HandleFunc("POST /api/start", func(w http.ResponseWriter, r *http.Request) {
		var req startRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}
		id, fps, record := defaults.ID, defaults.FPS, defaults.Record
		if req.ID != nil {
			id = *req.ID
		}
		if req.FPS != 0 {
			fps = req.FPS
		}
		if req.Record != nil {
			record = *req.Record
		}
		st, err := ctl.Start(id, fps, record)
		if errors.Is(err, scheduler.ErrInvalidFrameRate) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, st)
	})

	mux.HandleFunc("POST /api/stop", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, ctl.Stop())
	})

	mux.HandleFunc("POST /api/reset", func(w http.ResponseWriter, r *http.Request) {
		ctl.Reset()
		writeJSON(w, http.StatusOK, ctl.Status())
	})

	mux.HandleFunc("POST /api/log_size", func(w http.ResponseWriter, r *http.Request) {
		var req logSizeRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
			return
		}
		if err := ctl.SetLogSize(req.LogSize); err != nil {
			if errors.Is(err, polling.ErrInvalidLogSize) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, ctl.Status())
	})

	mux.HandleFunc("GET /api/result", func(w http.ResponseWriter, r *http.Request) {
		id := defaults.ID
		if v := r.URL.Query().Get("id"); v != "" {
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				http.Error(w, fmt.Sprintf("invalid id %q", v), http.StatusBadRequest)
				return
			}
			id = gamepad.ID(n)
		}
		rep, ok := ctl.Report(id)
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})

	mux.HandleFunc("/ws", hub.HandleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

// RunWeb serves the admin API, the frame stream and the metrics until
// interrupted.
func RunWeb() error {
	cfg := config.Get()

	src, closer, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defaults := StartDefaults{ID: gamepad.ID(cfg.DeviceID), FPS: cfg.FrameRate, Record: cfg.Record}

	eng := newEngine(cfg, src)
	var hub *Hub
	sched := newScheduler(cfg, eng, scheduler.ConsumerFunc(func(f scheduler.Frame) { hub.OnSnapshot(f) }))
	ctl := NewControl(ctx, eng, sched)
	hub = NewHub(ctl, defaults)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           NewServer(ctl, hub, defaults, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("web server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("web: shutting down")
		ctl.Stop()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
