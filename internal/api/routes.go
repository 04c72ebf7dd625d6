package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clipforge/clipgen/internal/clip"
	"github.com/clipforge/clipgen/internal/history"
	"github.com/clipforge/clipgen/internal/logging"
	"github.com/clipforge/clipgen/internal/transcode"
)

// NewRouter wires the liveness probe, the history routes and, for every
// other method and path, clip generation.
func NewRouter(cfg ServerConfig) *chi.Mux {
	cfg.Logger = logging.OrDiscard(cfg.Logger)
	if cfg.Runner == nil {
		cfg.Runner = transcode.NewExecRunner(cfg.Logger)
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(LivenessMiddleware(cfg))

	r.Get("/clips", listClipsHandler(cfg))
	r.Get("/clips/{id}", getClipHandler(cfg))

	generate := generateHandler(cfg)
	r.NotFound(generate)
	r.MethodNotAllowed(generate)

	return r
}

func isLivenessProbe(r *http.Request) bool {
	return r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/health")
}

// healthHandler always answers 200; the binary's availability is reported
// in the body.
func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version, err := transcode.Version(r.Context(), cfg.Runner, cfg.FFmpegPath, cfg.ProbeTimeout)
		if err != nil {
			requestLogger(cfg.Logger, r).Warn("ffmpeg probe failed", "error", err)
		} else {
			requestLogger(cfg.Logger, r).Debug("ffmpeg probe succeeded", "version", version)
		}

		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:          "healthy",
			FFmpegAvailable: err == nil,
		})
	}
}

func generateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := requestLogger(cfg.Logger, r)

		raw, err := decodeClipRequest(w, r)
		if err != nil {
			writeFailure(w, &clip.Failure{
				Kind:   clip.KindValidation,
				Stage:  clip.StageValidation,
				Reason: err.Error(),
			})
			return
		}

		var res clip.Result
		run := func() { res = cfg.Generator.Generate(r.Context(), raw) }
		if cfg.Pool == nil {
			err = protect(run, logger)
		} else {
			err = cfg.Pool.Do(run)
		}
		if err != nil {
			logger.Warn("clip generation did not complete", "error", err)
			reason := err.Error()
			if errors.Is(err, ErrSaturated) {
				reason = fmt.Sprintf("%s, retry later", err)
			}
			writeFailure(w, &clip.Failure{
				Kind:   clip.KindInfrastructure,
				Stage:  clip.StageInternal,
				Reason: reason,
				Err:    err,
			})
			return
		}

		if !res.OK() {
			writeFailure(w, res.Failure)
			return
		}
		if res.PublicURL == "" {
			logger.Error("clip generation returned no url")
			writeFailure(w, &clip.Failure{
				Kind:   clip.KindInfrastructure,
				Stage:  clip.StageInternal,
				Reason: "clip generation produced no url",
			})
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", "*")
		WriteJSON(w, http.StatusOK, ClipResponse{ClipURL: res.PublicURL})
	}
}

// writeFailure reports every failed generation as 500.
func writeFailure(w http.ResponseWriter, f *clip.Failure) {
	WriteJSON(w, http.StatusInternalServerError, FailureToResponse(f))
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.History == nil {
			WriteError(w, http.StatusServiceUnavailable, "clip history is disabled", "HISTORY_DISABLED")
			return
		}

		limit := history.DefaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", "BAD_REQUEST")
				return
			}
			limit = n
		}

		recs, err := cfg.History.List(r.Context(), r.URL.Query().Get("call_id"), limit)
		if err != nil {
			requestLogger(cfg.Logger, r).Error("failed to list clips", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to list clips", "INTERNAL_ERROR")
			return
		}

		resp := ClipsResponse{Clips: make([]ClipRecordResponse, len(recs))}
		for i, rec := range recs {
			resp.Clips[i] = RecordToResponse(rec)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getClipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.History == nil {
			WriteError(w, http.StatusServiceUnavailable, "clip history is disabled", "HISTORY_DISABLED")
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "clip id required", "BAD_REQUEST")
			return
		}

		rec, err := cfg.History.Get(r.Context(), id)
		if err != nil {
			requestLogger(cfg.Logger, r).Error("failed to get clip", "error", err, "clip_id", id)
			WriteError(w, http.StatusInternalServerError, "failed to get clip", "INTERNAL_ERROR")
			return
		}
		if rec == nil {
			WriteError(w, http.StatusNotFound, "clip not found", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, RecordToResponse(rec))
	}
}
