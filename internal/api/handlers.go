package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/yangwenmai/storyteller/internal/ingest"
	"github.com/yangwenmai/storyteller/internal/model"
	"github.com/yangwenmai/storyteller/internal/session"
)

// maxMultipartMemory is how much of an upload is buffered in memory before
// spilling to temporary files.
const maxMultipartMemory = 32 << 20

// session looks up the {sid} session, writing 404 when it is unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.sessions.Get(r.PathValue("sid"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

func (s *Server) writeSnapshot(w http.ResponseWriter, r *http.Request, status int, sess *session.Session) {
	snap := sess.Snapshot()
	if r.URL.Query().Get("previews") == "false" {
		for i := range snap.Items {
			snap.Items[i].Preview = ""
		}
	}
	writeJSON(w, status, snap)
}

// ---------------------------------------------------------------------------
// POST /api/sessions
// ---------------------------------------------------------------------------

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.logger.Info("session created", "session_id", sess.ID())
	writeJSON(w, http.StatusCreated, map[string]string{"id": sess.ID()})
}

// ---------------------------------------------------------------------------
// GET /api/sessions/{sid}
// ---------------------------------------------------------------------------

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.writeSnapshot(w, r, http.StatusOK, sess)
}

// ---------------------------------------------------------------------------
// DELETE /api/sessions/{sid}
// ---------------------------------------------------------------------------

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(r.PathValue("sid")) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// POST /api/sessions/{sid}/photos
// ---------------------------------------------------------------------------

func (s *Server) handleAddPhotos(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected multipart form with photos")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["photos"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "photos is required")
		return
	}

	if _, err := sess.AddPhotos(r.Context(), uploadSources(files)); err != nil {
		s.logger.Warn("photo upload rejected", "session_id", sess.ID(), "error", err)
		switch {
		case errors.Is(err, ingest.ErrUnsupportedMedia):
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, ingest.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, session.ErrClosed):
			writeError(w, http.StatusNotFound, "session not found")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	s.writeSnapshot(w, r, http.StatusCreated, sess)
}

// ---------------------------------------------------------------------------
// DELETE /api/sessions/{sid}/photos/{pid}
// ---------------------------------------------------------------------------

func (s *Server) handleRemovePhoto(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if !sess.RemovePhoto(r.PathValue("pid")) {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	s.writeSnapshot(w, r, http.StatusOK, sess)
}

// ---------------------------------------------------------------------------
// PUT /api/sessions/{sid}/header/{pid}
// ---------------------------------------------------------------------------

func (s *Server) handleSetHeader(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if !sess.MoveHeader(r.PathValue("pid")) {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}
	s.writeSnapshot(w, r, http.StatusOK, sess)
}

// ---------------------------------------------------------------------------
// PATCH /api/sessions/{sid}/artifact
// ---------------------------------------------------------------------------

type editArtifactRequest struct {
	Title *string `json:"title"`
	Story *string `json:"story"`
}

func (s *Server) handleEditArtifact(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req editArtifactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == nil && req.Story == nil {
		writeError(w, http.StatusBadRequest, "title or story is required")
		return
	}

	if req.Title != nil && !sess.SetTitle(*req.Title) {
		writeError(w, http.StatusConflict, session.ErrNoArtifact.Error())
		return
	}
	if req.Story != nil && !sess.SetStory(*req.Story) {
		writeError(w, http.StatusConflict, session.ErrNoArtifact.Error())
		return
	}

	art, _ := sess.Artifact()
	writeJSON(w, http.StatusOK, art)
}

// ---------------------------------------------------------------------------
// Tags
// ---------------------------------------------------------------------------

type tagRequest struct {
	Value *string `json:"value"`
}

type tagDraftRequest struct {
	Text string `json:"text"`
}

func (s *Server) tagCategory(w http.ResponseWriter, r *http.Request) (model.TagCategory, bool) {
	c, err := model.ParseTagCategory(r.PathValue("category"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return c, true
}

// PUT /api/sessions/{sid}/tags/{category}/draft
func (s *Server) handleSetTagDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	c, ok := s.tagCategory(w, r)
	if !ok {
		return
	}

	var req tagDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	sess.SetTagDraft(c, req.Text)
	writeJSON(w, http.StatusOK, map[string]string{"category": string(c), "draft": sess.TagDraft(c)})
}

// POST /api/sessions/{sid}/tags/{category}
// Without a value the category's draft is added.
func (s *Server) handleAddTag(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	c, ok := s.tagCategory(w, r)
	if !ok {
		return
	}

	var req tagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var added bool
	if req.Value != nil {
		added = sess.AddTag(c, *req.Value)
	} else {
		added = sess.AddDraftTag(c)
	}
	if !added {
		if _, ok := sess.Artifact(); !ok {
			writeError(w, http.StatusConflict, session.ErrNoArtifact.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "tag value is empty")
		return
	}

	art, _ := sess.Artifact()
	writeJSON(w, http.StatusCreated, art.Tags)
}

// DELETE /api/sessions/{sid}/tags/{category}/{value}
func (s *Server) handleRemoveTag(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	c, ok := s.tagCategory(w, r)
	if !ok {
		return
	}
	if !sess.RemoveTag(c, r.PathValue("value")) {
		writeError(w, http.StatusNotFound, "tag not found")
		return
	}
	art, _ := sess.Artifact()
	writeJSON(w, http.StatusOK, art.Tags)
}

// ---------------------------------------------------------------------------
// POST /api/sessions/{sid}/refine
// ---------------------------------------------------------------------------

type refineRequest struct {
	Instruction string `json:"instruction"`
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req refineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := sess.Refine(r.Context(), req.Instruction)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrRefinementInFlight):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, session.ErrEmptyInstruction), errors.Is(err, session.ErrNoArtifact):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, session.ErrClosed):
		writeError(w, http.StatusNotFound, "session not found")
		return
	default:
		writeError(w, http.StatusBadGateway, "refinement failed")
		return
	}

	art, _ := sess.Artifact()
	writeJSON(w, http.StatusOK, art)
}

// ---------------------------------------------------------------------------
// POST /api/sessions/{sid}/commit
// ---------------------------------------------------------------------------

type commitRequest struct {
	Tier string `json:"tier"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	var req commitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tier := s.defaultTier
	if req.Tier != "" {
		tier = model.ParseTier(req.Tier)
	}

	id, err := sess.Commit(r.Context(), tier, s.store)
	var ceilErr *session.CeilingError
	switch {
	case err == nil:
	case errors.As(err, &ceilErr):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":   ceilErr.Error(),
			"tier":    ceilErr.Tier,
			"count":   ceilErr.Count,
			"ceiling": ceilErr.Ceiling,
		})
		return
	case errors.Is(err, session.ErrNoArtifact), errors.Is(err, session.ErrNoPhotos):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	default:
		s.logger.Error("commit failed", "session_id", sess.ID(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to commit moment")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "tier": string(tier)})
}
