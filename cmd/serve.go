package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extract-cli/internal/extract"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the extraction HTTP daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initExtractor("serve")
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newServeMux(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// extractRequest is the POST /extract body.
type extractRequest struct {
	URL            string `json:"url"`
	Method         string `json:"method,omitempty"`
	Cookies        string `json:"cookies,omitempty"`
	TargetSelector string `json:"target_selector,omitempty"`
	TimeoutSecs    int    `json:"timeout_secs,omitempty"`
}

// newServeMux builds the daemon's router.
func newServeMux(env *extractEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/breaker", func(w http.ResponseWriter, _ *http.Request) {
		failures, state := env.Breaker.Counters()
		writeJSON(w, http.StatusOK, map[string]any{
			"state":                state.String(),
			"consecutive_failures": failures,
		})
	})

	r.Post("/breaker/reset", func(w http.ResponseWriter, _ *http.Request) {
		env.Breaker.Reset()
		zap.L().Info("circuit breaker reset via api")
		writeJSON(w, http.StatusOK, map[string]string{"state": env.Breaker.State().String()})
	})

	r.Post("/extract", func(w http.ResponseWriter, req *http.Request) {
		var body extractRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.URL == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
			return
		}
		switch extract.Method(body.Method) {
		case "", extract.MethodBridge, extract.MethodReader, extract.MethodDirect:
		default:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown method " + body.Method})
			return
		}

		res, err := env.Orchestrator.Extract(req.Context(), body.URL, extract.Options{
			Method:         extract.Method(body.Method),
			Cookies:        body.Cookies,
			TargetSelector: body.TargetSelector,
			Timeout:        time.Duration(body.TimeoutSecs) * time.Second,
		})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, res)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
