package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ppiankov/claimstream/internal/model"
	"github.com/ppiankov/claimstream/internal/pipeline"
	"github.com/ppiankov/claimstream/internal/transcription"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type recordingRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.pipeline.Recordings(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleCreateRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	rec, err := s.pipeline.CreateRecording(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.pipeline.Recording(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRenameRecording(w http.ResponseWriter, r *http.Request) {
	var req recordingRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("id")
	if err := s.pipeline.RenameRecording(r.Context(), id, req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.handleGetRecording(w, r)
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.DeleteRecording(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type segmentRequest struct {
	SegmentIndex int               `json:"segment_index"`
	Text         string            `json:"text,omitempty"`
	Words        []model.WordToken `json:"words"`
}

func (s *Server) handleIngestSegment(w http.ResponseWriter, r *http.Request) {
	var req segmentRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.IngestSegment(r.Context(), model.RawSegment{
		RecordingID:  r.PathValue("id"),
		SegmentIndex: req.SegmentIndex,
		Text:         req.Text,
		Words:        req.Words,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleImportText(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	sum, err := s.pipeline.ImportText(r.Context(), r.PathValue("id"), req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	sent, err := s.pipeline.FinalizeRecording(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sent == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, sent)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	e, err := s.pipeline.Export(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "json":
		w.Header().Set("Content-Type", "application/json")
		_ = pipeline.RenderJSON(w, e)
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_ = pipeline.RenderMarkdown(w, e)
	default:
		s.writeError(w, r, fmt.Errorf("%w: unknown format %q", pipeline.ErrInvalidInput, format))
	}
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.pipeline.Recording(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.hub.Serve(w, r, id)
}

func (s *Server) handleListSentences(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var (
		sentences []model.Sentence
		err       error
	)
	if raw := r.URL.Query().Get("recent"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 0 {
			s.writeError(w, r, fmt.Errorf("%w: recent must be a non-negative integer", pipeline.ErrInvalidInput))
			return
		}
		sentences, err = s.pipeline.RecentSentences(r.Context(), id, n)
	} else {
		sentences, err = s.pipeline.Sentences(r.Context(), id)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sentences)
}

func sentenceNumber(r *http.Request) (int, error) {
	n, err := strconv.Atoi(r.PathValue("number"))
	if err != nil {
		return 0, fmt.Errorf("%w: sentence number %q", pipeline.ErrInvalidInput, r.PathValue("number"))
	}
	return n, nil
}

func (s *Server) handleGetSentence(w http.ResponseWriter, r *http.Request) {
	n, err := sentenceNumber(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sent, err := s.pipeline.Sentence(r.Context(), r.PathValue("id"), n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sent)
}

func (s *Server) handleCorrectSentence(w http.ResponseWriter, r *http.Request) {
	n, err := sentenceNumber(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var upd pipeline.SentenceUpdate
	if err := decodeBody(r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	sent, err := s.pipeline.CorrectSentence(r.Context(), r.PathValue("id"), n, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sent)
}

func (s *Server) handleFactCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.pipeline.FactCheck(r.Context(), q.Get("claim"), q.Get("speaker"), q.Get("service"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type audioRequest struct {
	AudioURL string `json:"audio_url"`
}

func (s *Server) handleSubmitAudio(w http.ResponseWriter, r *http.Request) {
	var req audioRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.pipeline.SubmitAudio(r.Context(), req.AudioURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, t)
}

func (s *Server) handleTranscriptionCallback(w http.ResponseWriter, r *http.Request) {
	var cb transcription.Callback
	if err := decodeLenient(r, &cb); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.pipeline.HandleTranscriptionCallback(r.Context(), cb)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
