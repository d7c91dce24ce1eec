package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/savino/classeviva-HA-custom-integration/internal/export"
	"github.com/savino/classeviva-HA-custom-integration/internal/metrics"
	"github.com/savino/classeviva-HA-custom-integration/internal/poll"
)

type HTTPServer struct {
	srv *http.Server
}

// StartHTTP serves health and metrics, the cached attachment files under
// the /local/ prefix, and the read-only snapshot API for dashboards.
func StartHTTP(ctx context.Context, addr, staticRoot string, engine *poll.Engine, log *zap.SugaredLogger) *HTTPServer {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if engine.Last() == nil {
			http.Error(w, "no successful poll yet", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", metrics.Handler())

	// Mirrors the cache layout: /local/classeviva_didactics/<id>/<file>
	mux.Handle("/local/", http.StripPrefix("/local/", http.FileServer(http.Dir(staticRoot))))

	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snap := engine.Last()
		if snap == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			log.Warnw("snapshot encode failed", "err", err)
		}
	})

	mux.HandleFunc("/api/grades.xlsx", func(w http.ResponseWriter, r *http.Request) {
		snap := engine.Last()
		if snap == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		wb, err := export.NewGradesWorkbook(snap.Grades)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=grades_%s.xlsx", time.Now().Format("2006-01-02")))
		if err := wb.File.Write(w); err != nil {
			log.Warnw("grades export failed", "err", err)
		}
	})

	mux.HandleFunc("/api/cleanup", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		maxAge := poll.DefaultRetention
		if v := r.URL.Query().Get("max_age_days"); v != "" {
			days, err := strconv.Atoi(v)
			if err != nil || days <= 0 {
				http.Error(w, "bad max_age_days", http.StatusBadRequest)
				return
			}
			maxAge = time.Duration(days) * 24 * time.Hour
		}
		removed := engine.Cleanup(maxAge)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]int{"removed": removed})
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		_ = srv.ListenAndServe() // closed via Shutdown below
	}()

	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()

	return &HTTPServer{srv: srv}
}
