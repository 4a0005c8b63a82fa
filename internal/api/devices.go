package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/stillhere/presence-core/internal/presence"
)

// handleDeviceGet returns a single-device snapshot. A WebSocket upgrade
// on this path runs the device reporting session instead.
func (s *Server) handleDeviceGet(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if websocket.IsWebSocketUpgrade(r) {
		s.handleDeviceSession(w, r, key)
		return
	}

	d := s.manager.Get(key)
	if d == nil {
		writeNotFound(w, "unknown device: "+key)
		return
	}
	writeJSON(w, http.StatusOK, d.Info())
}

// handleDeviceMerge applies a merge (PATCH) update to a device.
func (s *Server) handleDeviceMerge(w http.ResponseWriter, r *http.Request) {
	s.applyDeviceUpdate(w, r, false)
}

// handleDeviceReplace applies a replace (PUT) update to a device.
func (s *Server) handleDeviceReplace(w http.ResponseWriter, r *http.Request) {
	s.applyDeviceUpdate(w, r, true)
}

// applyDeviceUpdate is the shared PATCH/PUT path: parse and validate the
// payload, resolve or create the device, apply the update, and echo the
// resulting snapshot. New devices respond 201, existing ones 200.
func (s *Server) applyDeviceUpdate(w http.ResponseWriter, r *http.Request, replace bool) {
	key := chi.URLParam(r, "key")

	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body: "+err.Error())
		return
	}

	upd, err := presence.ParseUpdate(raw)
	if err != nil {
		writeUnprocessable(w, err.Error())
		return
	}

	d, created, err := s.resolveDevice(key, upd)
	if err != nil {
		switch {
		case errors.Is(err, presence.ErrDeviceNotFound):
			writeNotFound(w, "unknown device: "+key)
		case errors.Is(err, presence.ErrNameRequired):
			writeBadRequest(w, "new device requires a name")
		default:
			writeInternalError(w, err.Error())
		}
		return
	}

	info := d.Update(presence.UpdateOptions{
		Data:        upd,
		Replace:     replace,
		FromPolling: true,
	})

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, info)
}

// resolveDevice finds the device for key, creating it when policy
// permits. Configured devices come back with their configured baseline;
// unconfigured keys require allow_new_devices and a name in the first
// payload.
func (s *Server) resolveDevice(key string, upd *presence.Update) (*presence.Device, bool, error) {
	if d := s.manager.Get(key); d != nil {
		return d, false, nil
	}

	cfg, configured := s.deviceCfgs[key]
	if !configured {
		if !s.prsCfg.AllowNewDevices {
			return nil, false, presence.ErrDeviceNotFound
		}
		if _, ok := upd.Name(); !ok {
			return nil, false, presence.ErrNameRequired
		}
		cfg = upd.Config()
	}

	return s.manager.Add(key, cfg), true, nil
}

// handleDeviceDelete removes a device unconditionally.
func (s *Server) handleDeviceDelete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.manager.Remove(key) {
		writeNotFound(w, "unknown device: "+key)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeviceHistory returns recent presence transitions for a device,
// newest first. Available only when the history store is enabled.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrDetail{
			Type: ErrTypeUnavailable,
			Msg:  "history store is not enabled",
		})
		return
	}

	key := chi.URLParam(r, "key")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	entries, err := s.history.Recent(r.Context(), key, limit)
	if err != nil {
		s.logger.Error("history query failed", "device", key, "error", err)
		writeInternalError(w, "querying history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_key": key,
		"entries":    entries,
	})
}

// currentInfo builds the aggregate snapshot, honouring privacy_mode.
func (s *Server) currentInfo() presence.Info {
	info := presence.Info{Status: s.manager.OverallStatus()}
	if !s.prsCfg.PrivacyMode {
		info.Devices = s.manager.Snapshot()
	}
	return info
}
