package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/spherical/slide-deck/internal/cache"
	"github.com/spherical/slide-deck/internal/channel"
	"github.com/spherical/slide-deck/internal/domain"
	"github.com/spherical/slide-deck/internal/jobs"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Process handles POST /process.
func (s *Server) Process(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Server.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	}

	filename, payload, err := readUpload(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "upload too large", err.Error())
			return
		}
		s.writeError(w, http.StatusBadRequest, "invalid upload", err.Error())
		return
	}
	if len(payload) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty upload", "")
		return
	}

	jobID := uuid.NewString()
	s.logger.Info().
		Str("job_id", jobID).
		Str("file", filename).
		Int("bytes", len(payload)).
		Msg("upload accepted")

	s.Start(jobID, payload)
	s.writeJSON(w, http.StatusAccepted, jobs.SubmitResponse{ProcessID: jobID})
}

func readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", nil, err
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		return filepath.Base(header.Filename), data, err
	}

	data, err := io.ReadAll(r.Body)
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload.json"
	}
	return filepath.Base(name), data, err
}

// Stream handles GET /ws/{jobID}.
func (s *Server) Stream(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if !s.known(jobID) && len(s.hub.Backlog(jobID)) == 0 {
		s.writeError(w, http.StatusNotFound, "unknown job", jobID)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(jobID)
	defer sub.Close()

	// Drain client frames so close and ping frames are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	log := s.logger.WithJob(jobID)
	log.Debug().Msg("subscriber attached")

	for {
		select {
		case payload, ok := <-sub.C:
			if !ok {
				closeConn(conn, websocket.CloseTryAgainLater, "stream dropped")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Msg("subscriber write failed")
				return
			}
			if terminal(payload) {
				closeConn(conn, websocket.CloseNormalClosure, "job finished")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			log.Debug().Msg("subscriber left")
			return
		case <-s.ctx.Done():
			closeConn(conn, websocket.CloseGoingAway, "server shutting down")
			return
		}
	}
}

func closeConn(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

func terminal(payload []byte) bool {
	ev, err := channel.Decode(payload)
	if err != nil {
		return false
	}
	switch ev.(type) {
	case channel.CompleteEvent, channel.ErrorEvent:
		return true
	}
	return false
}

// Document handles GET /jobs/{jobID}/document.
func (s *Server) Document(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	doc, err := s.docs.Get(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, jobID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, doc)
}

// Deck handles GET /jobs/{jobID}/deck.
func (s *Server) Deck(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	doc, err := s.docs.Get(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, jobID, err)
		return
	}

	var manual domain.ManualImageSource
	if store, ok := s.manual(r.Context(), jobID); ok {
		manual = store
	}
	deck := s.synth.Synthesize(*doc, manual)
	s.writeJSON(w, http.StatusOK, jobs.DeckResponse{JobID: jobID, Slides: deck})
}

// AppendImage handles POST /jobs/{jobID}/pages/{page}/images.
func (s *Server) AppendImage(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		s.writeError(w, http.StatusBadRequest, "invalid page", chi.URLParam(r, "page"))
		return
	}

	var req jobs.AppendImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.Src) == "" {
		s.writeError(w, http.StatusBadRequest, "src is required", "")
		return
	}
	if req.Rect != nil && (req.Rect.Width <= 0 || req.Rect.Height <= 0) {
		s.writeError(w, http.StatusBadRequest, "rect width and height must be positive", "")
		return
	}

	store, ok := s.manual(r.Context(), jobID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown job", jobID)
		return
	}

	region := store.Append(page, req.Src, req.Rect)
	s.logger.Info().Str("job_id", jobID).Int("page", page).Str("image_id", region.ID).Msg("manual image appended")
	s.writeJSON(w, http.StatusCreated, region)
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": s.cfg.Observability.ServiceName})
}

func (s *Server) writeStoreError(w http.ResponseWriter, jobID string, err error) {
	if errors.Is(err, cache.ErrCacheMiss) {
		s.writeError(w, http.StatusNotFound, "unknown job", jobID)
		return
	}
	s.logger.Error().Err(err).Str("job_id", jobID).Msg("document store failed")
	s.writeError(w, http.StatusInternalServerError, "document store failed", err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, detail string) {
	resp := map[string]string{
		"error":   message,
		"message": message,
	}
	if detail != "" {
		resp["detail"] = detail
	}
	s.writeJSON(w, status, resp)
}
