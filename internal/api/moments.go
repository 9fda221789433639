package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/yangwenmai/storyteller/internal/model"
)

// ---------------------------------------------------------------------------
// GET /api/moments
// ---------------------------------------------------------------------------

func (s *Server) handleListMoments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.MomentFilter{
		Location: q.Get("location"),
		Person:   q.Get("person"),
	}
	if v := q.Get("pinned"); v != "" {
		pinned, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "pinned must be true or false")
			return
		}
		filter.Pinned = &pinned
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	moments, err := s.store.ListMoments(r.Context(), filter)
	if err != nil {
		s.logger.Error("list moments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list moments")
		return
	}
	if moments == nil {
		moments = []model.Moment{}
	}
	writeJSON(w, http.StatusOK, moments)
}

// ---------------------------------------------------------------------------
// GET /api/moments/counts
// ---------------------------------------------------------------------------

func (s *Server) handleCountMoments(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountMoments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count moments")
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// ---------------------------------------------------------------------------
// GET /api/moments/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleGetMoment(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.GetMoment(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "moment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get moment")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ---------------------------------------------------------------------------
// PATCH /api/moments/{id}/pin
// ---------------------------------------------------------------------------

type pinRequest struct {
	Pinned *bool `json:"pinned"`
}

func (s *Server) handlePinMoment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pinned == nil {
		writeError(w, http.StatusBadRequest, "pinned is required")
		return
	}

	err := s.store.SetPinned(r.Context(), id, *req.Pinned)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "moment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update moment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "pinned": *req.Pinned})
}

// ---------------------------------------------------------------------------
// DELETE /api/moments/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleDeleteMoment(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteMoment(r.Context(), r.PathValue("id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "moment not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete moment")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// GET /api/tiers
// ---------------------------------------------------------------------------

type tierInfo struct {
	Tier    model.Tier `json:"tier"`
	Ceiling int        `json:"ceiling"`
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	out := make([]tierInfo, 0, len(model.Tiers))
	for _, t := range model.Tiers {
		out = append(out, tierInfo{Tier: t, Ceiling: model.CeilingFor(t)})
	}
	writeJSON(w, http.StatusOK, out)
}
