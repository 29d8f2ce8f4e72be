// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-clan-battle/pkg/api"
	"github.com/AccelByte/extend-clan-battle/pkg/battle"
	"github.com/AccelByte/extend-clan-battle/pkg/common"
	"github.com/AccelByte/extend-clan-battle/pkg/ledger"
)

const (
	// identity headers are set by the authenticating proxy in front of the service
	headerUserID   = "X-User-ID"
	headerNickname = "X-Nickname"

	maxPayloadBytes = 64 << 10
	writeTimeout    = 10 * time.Second
)

// HTTPServer serves the JSON action API and the live status stream.
type HTTPServer struct {
	server   *http.Server
	port     int
	gateway  *api.Gateway
	engine   *battle.Engine
	health   *ledger.HealthChecker
	metrics  *Metrics
	upgrader websocket.Upgrader
}

// NewHTTPServer creates the web API server. health and metrics may be nil.
func NewHTTPServer(port int, gateway *api.Gateway, engine *battle.Engine, health *ledger.HealthChecker, metrics *Metrics) *HTTPServer {
	return &HTTPServer{
		port:    port,
		gateway: gateway,
		engine:  engine,
		health:  health,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handler returns the routed handler.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/groups/{group}/actions", s.handleAction)
	mux.HandleFunc("GET /api/groups/{group}/status", s.handleStatus)
	mux.HandleFunc("GET /api/groups/{group}/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Setup builds the underlying http.Server.
func (s *HTTPServer) Setup() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

func (s *HTTPServer) handleAction(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group")
	caller, ok := callerFrom(r)
	if !ok {
		http.Error(w, "missing "+headerUserID, http.StatusUnauthorized)
		return
	}

	var payload api.Payload
	body := http.MaxBytesReader(w, r.Body, maxPayloadBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		s.writeResponse(w, api.Response{Code: api.CodeInvalidPayload, Message: "invalid payload"})
		return
	}

	scope := common.NewScope(r.Context(), "HTTP.Action").WithFields(logrus.Fields{"groupId": groupID, "userId": caller.UserID})
	defer scope.Finish()

	resp := s.gateway.Handle(scope.Ctx, caller, groupID, payload)
	scope.RecordResult(resp.Code, resp.Code == api.CodeServerError)
	s.writeResponse(w, resp)
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.Status(r.PathValue("group"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, api.Response{Code: api.CodeGroupNotExists, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleStream upgrades to a websocket and pushes the current status and
// then every change. Client messages are ignored.
func (s *HTTPServer) handleStream(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("group")
	st, watch, err := s.engine.Follow(groupID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Warnf("websocket upgrade failed for group %s: %v", groupID, err)
		return
	}
	defer conn.Close()

	connID := common.NewRequestID("stream")
	log := logrus.WithFields(logrus.Fields{"groupId": groupID, "connId": connID})
	log.Info("status stream opened")
	defer log.Info("status stream closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// reading is required to notice a closed connection
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(st); err != nil {
			log.Debugf("status stream write failed: %v", err)
			return
		}

		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-watch.Done():
			st = watch.Value()
			watch = watch.Next()
		}
	}
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil && !s.health.IsHealthy(r.Context()) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func callerFrom(r *http.Request) (api.Caller, bool) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		return api.Caller{}, false
	}
	return api.Caller{UserID: userID, Nickname: r.Header.Get(headerNickname)}, true
}

func (s *HTTPServer) writeResponse(w http.ResponseWriter, resp api.Response) {
	if s.metrics != nil {
		s.metrics.ObserveRequest("http", resp.Code)
	}
	writeJSON(w, httpStatus(resp.Code), resp)
}

// httpStatus maps response codes to HTTP statuses. Domain rejections are
// successful requests that carry their reason in the body.
func httpStatus(code int) int {
	switch code {
	case api.CodeOK, api.CodeNotChanged, api.CodeDomainError:
		return http.StatusOK
	case api.CodeInsufficientAuthority:
		return http.StatusForbidden
	case api.CodeGroupNotExists:
		return http.StatusNotFound
	case api.CodeInvalidPayload, api.CodeMissingKey, api.CodeUnknownAction:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("failed to write response: %v", err)
	}
}

// Start begins serving the web API.
func (s *HTTPServer) Start(ctx context.Context) error {
	go func() {
		logrus.Infof("HTTP server listening on port %d", s.port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
// Long polls end with the context deadline.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	logrus.Info("shutting down HTTP server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	logrus.Info("HTTP server stopped")
	return nil
}
