package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/dixieflatline76/squareframe/config"
	"github.com/dixieflatline76/squareframe/pkg/frame"
	"github.com/dixieflatline76/squareframe/util/log"
)

const (
	maxUploadBytes = 64 << 20
	// previewQuality trades a little fidelity for smaller frames while dragging.
	previewQuality = 85
)

// handleIndex serves the embedded browser page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if len(s.page) == 0 {
		http.Error(w, "Page not available", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(s.page)
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "running",
		"version": config.AppVersion,
	})
}

// handleImage loads (POST) or clears (DELETE) the session image.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleUpload(w, r)
	case http.MethodDelete:
		s.session.Clear()
		writeJSON(w, http.StatusOK, s.session.Snapshot())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "The file is too large")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		name string
		body io.Reader
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				s.writeSessionError(w, err)
				return
			}
			writeError(w, http.StatusBadRequest, "Invalid multipart body")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Missing form field \"file\"")
			return
		}
		defer file.Close()
		name, body = header.Filename, file
	} else {
		if r.ContentLength == 0 {
			writeError(w, http.StatusBadRequest, "Empty request body")
			return
		}
		name, body = r.URL.Query().Get("name"), r.Body
	}

	if err := s.session.Load(r.Context(), name, body); err != nil {
		s.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handleState returns the session snapshot.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

// handlePreview renders the current composite as a JPEG. Concurrent requests
// for the same revision share one render.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.session.Snapshot()
	if snap.Status != frame.StatusReady {
		s.writeSessionError(w, frame.ErrNoImage)
		return
	}

	key := fmt.Sprintf("%s/%d", snap.ImageID, snap.Revision)
	v, err, shared := s.renders.Do(key, func() (interface{}, error) {
		img, rendered, err := s.session.Preview()
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := frame.EncodeJPEG(&buf, img, previewQuality); err != nil {
			return nil, err
		}
		return renderedPreview{data: buf.Bytes(), revision: rendered.Revision}, nil
	})
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	if shared {
		log.Debugf("Shared preview render for %s", key)
	}

	preview := v.(renderedPreview)
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Revision", strconv.FormatUint(preview.revision, 10))
	_, _ = w.Write(preview.data)
}

type renderedPreview struct {
	data     []byte
	revision uint64
}

// handleExport returns the export JPEG as a download.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var buf bytes.Buffer
	name, err := s.session.Export(&buf)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// handleWebSocket upgrades the connection and streams state to it.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := newClient(conn)
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		s.unregister(c)
		c.close()
	}()

	s.register(c)
	go s.writeLoop(ctx, c)
	c.queue()

	s.readLoop(ctx, c)
}

// writeSessionError maps a session or load error onto an HTTP status.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	writeError(w, status, msg)
}

func statusFor(err error) (int, string) {
	var (
		loadErr *frame.LoadError
		tooBig  *http.MaxBytesError
	)
	isLoadErr := errors.As(err, &loadErr)
	switch {
	case errors.Is(err, frame.ErrNoImage):
		return http.StatusConflict, "No image is loaded"
	case errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge, "The file is too large"
	case isLoadErr && errors.Is(err, frame.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, loadErr.Message()
	case isLoadErr && loadErr.Kind == frame.KindRead:
		return http.StatusBadRequest, loadErr.Message()
	case isLoadErr:
		return http.StatusUnprocessableEntity, loadErr.Message()
	case errors.Is(err, frame.ErrSuperseded), errors.Is(err, context.Canceled):
		return http.StatusConflict, "The load was replaced by a newer one"
	default:
		return http.StatusInternalServerError, strings.TrimSpace(err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
