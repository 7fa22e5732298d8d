// Package httpapi exposes the jukebox over a thin JSON gateway. Command
// parsing and presentation live with the caller; this layer only validates
// arguments and maps result codes to configured messages.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/bramblewood/jukebox/internal/app/jukebox"
	"github.com/bramblewood/jukebox/internal/app/vote"
	"github.com/bramblewood/jukebox/internal/domain/listener"
	"github.com/bramblewood/jukebox/internal/domain/track"
	"github.com/bramblewood/jukebox/internal/infra/config"
	"github.com/bramblewood/jukebox/internal/infra/stats"
)

// Handler serves the gateway routes.
type Handler struct {
	jb   *jukebox.Jukebox
	cfg  *config.Config
	sink stats.Sink
}

// New creates the gateway handler.
func New(jb *jukebox.Jukebox, cfg *config.Config, sink stats.Sink) *Handler {
	return &Handler{jb: jb, cfg: cfg, sink: sink}
}

// Routes returns the gateway mux.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/listeners", h.listenerJoin)
	mux.HandleFunc("DELETE /v1/listeners/{id}", h.listenerLeave)

	mux.HandleFunc("POST /v1/tracks", h.addTrack)
	mux.HandleFunc("GET /v1/queue", h.getQueue)
	mux.HandleFunc("POST /v1/queue/shuffle", h.shuffle)
	mux.HandleFunc("POST /v1/queue/clear", h.clear)

	mux.HandleFunc("GET /v1/status", h.status)
	mux.HandleFunc("POST /v1/playback/{action}", h.playback)
	mux.HandleFunc("POST /v1/looping", h.toggleLooping)

	mux.HandleFunc("POST /v1/skip", h.proposeSkip)
	mux.HandleFunc("POST /v1/delete", h.proposeDelete)
	mux.HandleFunc("POST /v1/wipe", h.proposeWipe)
	mux.HandleFunc("GET /v1/votes", h.listVotes)
	mux.HandleFunc("POST /v1/votes/{id}/ballots", h.ballot)
	mux.HandleFunc("POST /v1/votes/clear", h.clearVotes)

	mux.HandleFunc("GET /v1/stats/{userID}", h.userStats)

	return mux
}

// trusted reports whether the request carries the operator token. Trusted
// requests bypass vote arbitration.
func (h *Handler) trusted(r *http.Request) bool {
	return h.cfg.Admin.Token != "" && r.Header.Get("X-Admin-Token") == h.cfg.Admin.Token
}

type trackJSON struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	DurationSeconds int    `json:"duration_seconds"`
	OriginURL       string `json:"origin_url,omitempty"`
	ThumbnailURL    string `json:"thumbnail_url,omitempty"`
	SubmitterID     string `json:"submitter_id"`
	SubmitterName   string `json:"submitter_name"`
}

func toTrackJSON(t *track.Track) trackJSON {
	return trackJSON{
		ID:              t.ID,
		Title:           t.Title,
		DurationSeconds: t.DurationSeconds,
		OriginURL:       t.OriginURL,
		ThumbnailURL:    t.ThumbnailURL,
		SubmitterID:     t.Submitter.ID,
		SubmitterName:   t.Submitter.DisplayName,
	}
}

type voteJSON struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	For         int    `json:"for"`
	Against     int    `json:"against"`
	Required    int    `json:"required"`
}

func (h *Handler) toVoteJSON(v *vote.Vote) voteJSON {
	return voteJSON{
		ID:          v.ID,
		Kind:        v.Kind.String(),
		Description: v.Description,
		For:         v.For(),
		Against:     v.Against(),
		Required:    h.jb.RequiredVotes(),
	}
}

func (h *Handler) listenerJoin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "listener id is required")
		return
	}
	h.jb.ListenerJoined(listener.New(req.ID, req.DisplayName))
	writeJSON(w, http.StatusOK, map[string]any{"listeners": h.jb.ListenerCount()})
}

func (h *Handler) listenerLeave(w http.ResponseWriter, r *http.Request) {
	h.jb.ListenerLeft(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]any{"listeners": h.jb.ListenerCount()})
}

func (h *Handler) addTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubmitterID   string `json:"submitter_id"`
		SubmitterName string `json:"submitter_name"`
		Query         string `json:"query"`
		Ambiguous     bool   `json:"ambiguous"`
		Limit         int    `json:"limit"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.SubmitterID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "submitter_id and query are required")
		return
	}

	if req.Ambiguous {
		limit := req.Limit
		if limit <= 0 || limit > 25 {
			limit = 5
		}
		candidates, err := h.jb.Candidates(r.Context(), req.Query, limit)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "resolve_failed", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"candidates": candidates})
		return
	}

	submitter := track.Submitter{ID: req.SubmitterID, DisplayName: req.SubmitterName}
	res, err := h.jb.Add(r.Context(), submitter, req.Query)
	if err != nil {
		// Taxonomy: resolver failure reaches the requester, queue unchanged.
		writeError(w, http.StatusUnprocessableEntity, "resolve_failed", err.Error())
		return
	}

	added := make([]trackJSON, 0, len(res.Added))
	for _, t := range res.Added {
		added = append(added, toTrackJSON(t))
	}
	warnings := make([]string, 0, len(res.Warnings))
	for _, code := range res.Warnings {
		warnings = append(warnings, h.cfg.GetMessage(code))
	}
	rejected := make([]map[string]string, 0, len(res.Rejected))
	for _, rej := range res.Rejected {
		rejected = append(rejected, map[string]string{
			"title":   rej.Title,
			"code":    rej.Code,
			"message": h.cfg.GetMessage(rej.Code),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"added":          added,
		"rejected":       rejected,
		"playlist_title": res.PlaylistTitle,
		"failed_count":   res.FailedCount,
		"warnings":       warnings,
	})
}

func (h *Handler) getQueue(w http.ResponseWriter, r *http.Request) {
	start := queryInt(r, "start", 0)
	end := queryInt(r, "end", h.jb.NumTracks())

	tracks := h.jb.Range(start, end)
	out := make([]trackJSON, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, toTrackJSON(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tracks": out,
		"total":  h.jb.NumTracks(),
	})
}

func (h *Handler) shuffle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SubmitterID string `json:"submitter_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.SubmitterID == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "submitter_id is required")
		return
	}
	n := h.jb.Shuffle(req.SubmitterID)
	writeJSON(w, http.StatusOK, map[string]any{"shuffled": n})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	if !h.trusted(r) {
		writeError(w, http.StatusForbidden, "forbidden", "operator token required")
		return
	}
	dropped := h.jb.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"dropped": dropped})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"state":          h.jb.State().String(),
		"num_tracks":     h.jb.NumTracks(),
		"listeners":      h.jb.ListenerCount(),
		"looping":        h.jb.Looping(),
		"uptime_seconds": int(h.jb.Uptime().Seconds()),
		"required_votes": h.jb.RequiredVotes(),
	}
	if current := h.jb.CurrentTrack(); current != nil {
		resp["current"] = toTrackJSON(current)
		resp["progress_seconds"] = int(h.jb.Progress().Seconds())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) playback(w http.ResponseWriter, r *http.Request) {
	switch r.PathValue("action") {
	case "play":
		h.jb.Play(r.Context())
	case "pause":
		if err := h.jb.Pause(); err != nil {
			writeError(w, http.StatusConflict, "pausing_disabled", err.Error())
			return
		}
	case "resume":
		h.jb.Resume()
	case "stop":
		h.jb.Stop()
	default:
		writeError(w, http.StatusBadRequest, "invalid_argument", "unknown playback action")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": h.jb.State().String()})
}

func (h *Handler) toggleLooping(w http.ResponseWriter, r *http.Request) {
	on, err := h.jb.ToggleLooping()
	if err != nil {
		writeError(w, http.StatusConflict, "looping_disabled", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"looping": on})
}

func (h *Handler) proposeSkip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposerID string `json:"proposer_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	v, err := h.jb.ProposeSkip(req.ProposerID, h.trusted(r))
	h.writeProposal(w, v, err)
}

func (h *Handler) proposeDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposerID string `json:"proposer_id"`
		Index      *int   `json:"index"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "index is required")
		return
	}
	v, err := h.jb.ProposeDelete(req.ProposerID, *req.Index, h.trusted(r))
	h.writeProposal(w, v, err)
}

func (h *Handler) proposeWipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposerID string `json:"proposer_id"`
		TargetID   string `json:"target_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.TargetID == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "target_id is required")
		return
	}
	v, err := h.jb.ProposeWipe(req.ProposerID, req.TargetID, h.trusted(r))
	h.writeProposal(w, v, err)
}

// writeProposal maps a propose outcome: a nil vote means the action was
// applied directly.
func (h *Handler) writeProposal(w http.ResponseWriter, v *vote.Vote, err error) {
	switch {
	case errors.Is(err, jukebox.ErrNothingPlaying):
		writeError(w, http.StatusConflict, "nothing_playing", h.cfg.GetMessage("nothing_playing"))
	case errors.Is(err, jukebox.ErrInvalidIndex):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, vote.ErrVoteInProgress):
		writeError(w, http.StatusConflict, "vote_in_progress", h.cfg.GetMessage("vote_in_progress"))
	case err != nil:
		zlog.Error().Err(err).Msg("proposal failed")
		writeError(w, http.StatusInternalServerError, "internal", h.cfg.GetMessage("default_error"))
	case v == nil:
		writeJSON(w, http.StatusOK, map[string]any{"applied": true})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"applied": false, "vote": h.toVoteJSON(v)})
	}
}

func (h *Handler) listVotes(w http.ResponseWriter, r *http.Request) {
	pending := h.jb.PendingVotes()
	out := make([]voteJSON, 0, len(pending))
	for _, v := range pending {
		out = append(out, h.toVoteJSON(v))
	}
	writeJSON(w, http.StatusOK, map[string]any{"votes": out})
}

func (h *Handler) ballot(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListenerID string `json:"listener_id"`
		Favor      *bool  `json:"favor"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.ListenerID == "" || req.Favor == nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "listener_id and favor are required")
		return
	}

	status, err := h.jb.Ballot(r.PathValue("id"), req.ListenerID, *req.Favor)
	switch {
	case errors.Is(err, vote.ErrVoteNotFound):
		writeError(w, http.StatusNotFound, "vote_not_found", err.Error())
	case errors.Is(err, vote.ErrNotEligible):
		writeError(w, http.StatusForbidden, "not_eligible", h.cfg.GetMessage("not_eligible"))
	case errors.Is(err, vote.ErrAlreadyVoted):
		writeError(w, http.StatusConflict, "already_voted", err.Error())
	case err != nil:
		zlog.Error().Err(err).Msg("ballot failed")
		writeError(w, http.StatusInternalServerError, "internal", h.cfg.GetMessage("default_error"))
	default:
		writeJSON(w, http.StatusOK, map[string]any{"status": status.String()})
	}
}

func (h *Handler) clearVotes(w http.ResponseWriter, r *http.Request) {
	if !h.trusted(r) {
		writeError(w, http.StatusForbidden, "forbidden", "operator token required")
		return
	}
	h.jb.ClearVotes()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	u, err := h.sink.Lookup(r.PathValue("userID"))
	if err != nil {
		zlog.Error().Err(err).Msg("stats lookup failed")
		writeError(w, http.StatusInternalServerError, "internal", h.cfg.GetMessage("default_error"))
		return
	}
	if u == nil {
		writeError(w, http.StatusNotFound, "not_found", "no stats for that user")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "malformed request body")
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zlog.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
