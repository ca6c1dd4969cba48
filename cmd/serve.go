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
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/journal"
	"github.com/sells-group/enrich-cli/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the run status API",
	Long:  "Serves read-only run history from the journal: /healthz, /api/runs, /api/runs/{id}, /api/summary.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newServeMux(j),
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

// newServeMux builds the status API router over the journal.
func newServeMux(j journal.Journal) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		filter := journal.Filter{
			Status:   model.RunStatus(req.URL.Query().Get("status")),
			Workbook: req.URL.Query().Get("workbook"),
			Limit:    50,
		}
		runs, err := j.ListRuns(req.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/api/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		run, err := j.GetRun(req.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
			return
		}
		skips, err := j.ListSkips(req.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list skips failed"})
			return
		}
		writeJSON(w, http.StatusOK, struct {
			*model.Run
			SkipDetails []model.SkipRecord `json:"skip_details,omitempty"`
		}{Run: run, SkipDetails: skips})
	})

	r.Get("/api/summary", func(w http.ResponseWriter, req *http.Request) {
		runs, err := j.ListRuns(req.Context(), journal.Filter{Limit: 1000})
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
			return
		}
		writeJSON(w, http.StatusOK, computeAPISummary(runs))
	})

	return r
}

// apiSummary aggregates run history for the /api/summary endpoint.
type apiSummary struct {
	Runs          int            `json:"runs"`
	ByStatus      map[string]int `json:"by_status"`
	Merged        int            `json:"merged"`
	Skipped       int            `json:"skipped"`
	FieldChanges  int            `json:"field_changes"`
	Disagreements int            `json:"disagreements"`
}

func computeAPISummary(runs []model.Run) apiSummary {
	s := apiSummary{Runs: len(runs), ByStatus: map[string]int{}}
	for _, r := range runs {
		s.ByStatus[string(r.Status)]++
		if r.Summary == nil {
			continue
		}
		s.Merged += r.Summary.Merged
		s.Skipped += r.Summary.Skipped
		s.FieldChanges += r.Summary.FieldChanges
		s.Disagreements += r.Summary.Disagreements
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
