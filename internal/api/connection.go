package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/nerrad567/plantpot-core/internal/connectivity"
)

// ConnectionConfig is the wire form of a connection configuration.
// MQTTPassword is write-only: responses report only whether one is set.
type ConnectionConfig struct {
	Transport     string `json:"transport"`
	MockMode      bool   `json:"mockMode"`
	RESTBaseURL   string `json:"restBaseUrl,omitempty"`
	WSURL         string `json:"wsUrl,omitempty"`
	MQTTBrokerURL string `json:"mqttBrokerUrl,omitempty"`
	MQTTTopic     string `json:"mqttTopic,omitempty"`
	MQTTUsername  string `json:"mqttUsername,omitempty"`
	MQTTPassword  string `json:"mqttPassword,omitempty"`
	HasPassword   bool   `json:"hasPassword,omitempty"`
	DeviceID      string `json:"deviceId,omitempty"`
}

// handleGetConnection returns the controller snapshot.
func (s *Server) handleGetConnection(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handleConnect starts monitoring. The attempt runs in the background; the
// outcome is published on the connection.status channel and reflected in
// later snapshots.
func (s *Server) handleConnect(w http.ResponseWriter, _ *http.Request) {
	if s.controller.Status().IsConnected() {
		writeJSON(w, http.StatusOK, s.controller.Snapshot())
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.connectTimeout)
		defer cancel()
		err := s.controller.Connect(ctx)
		switch {
		case err == nil, errors.Is(err, connectivity.ErrConnectInProgress):
		case errors.Is(err, connectivity.ErrClosed):
			s.logger.Debug("connect after controller closed")
		default:
			s.logger.Warn("user connect failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, s.controller.Snapshot())
}

// handleDisconnect stops monitoring and cancels pending reconnects.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	s.controller.Disconnect()
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

// handleGetConnectionConfig returns the active configuration without secrets.
func (s *Server) handleGetConnectionConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toConnectionConfig(s.controller.Config()))
}

// handlePutConnectionConfig replaces the configuration. The old link is
// torn down and the new one starts idle; a connect request is needed to
// start it.
func (s *Server) handlePutConnectionConfig(w http.ResponseWriter, r *http.Request) {
	var req ConnectionConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	transport, err := connectivity.ParseTransport(req.Transport)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	cur := s.controller.Config()
	next := connectivity.Config{
		Transport:     transport,
		MockMode:      req.MockMode,
		RESTBaseURL:   strings.TrimSpace(req.RESTBaseURL),
		WSURL:         strings.TrimSpace(req.WSURL),
		MQTTBrokerURL: strings.TrimSpace(req.MQTTBrokerURL),
		MQTTTopic:     strings.TrimSpace(req.MQTTTopic),
		MQTTUsername:  req.MQTTUsername,
		MQTTPassword:  req.MQTTPassword,
		DeviceID:      strings.TrimSpace(req.DeviceID),
		Timing:        cur.Timing,
	}
	// An omitted password keeps the current one for the same broker.
	if next.MQTTPassword == "" && next.MQTTBrokerURL == cur.MQTTBrokerURL {
		next.MQTTPassword = cur.MQTTPassword
	}
	if next.DeviceID == "" {
		next.DeviceID = cur.DeviceID
	}

	if err := s.controller.Reconfigure(next); err != nil {
		if errors.Is(err, connectivity.ErrClosed) {
			writeUnavailable(w, "connection controller is shut down")
			return
		}
		s.logger.Error("reconfigure failed", "error", err)
		writeInternalError(w, "failed to apply configuration")
		return
	}

	s.logger.Info("connection configuration replaced", "transport", next.EffectiveTransport())
	writeJSON(w, http.StatusOK, toConnectionConfig(s.controller.Config()))
}

func toConnectionConfig(cfg connectivity.Config) ConnectionConfig {
	transport := cfg.Transport
	if transport == "" {
		transport = connectivity.TransportMock
	}
	return ConnectionConfig{
		Transport:     string(transport),
		MockMode:      cfg.MockMode,
		RESTBaseURL:   cfg.RESTBaseURL,
		WSURL:         cfg.WSURL,
		MQTTBrokerURL: cfg.MQTTBrokerURL,
		MQTTTopic:     cfg.MQTTTopic,
		MQTTUsername:  cfg.MQTTUsername,
		HasPassword:   cfg.MQTTPassword != "",
		DeviceID:      cfg.DeviceID,
	}
}
