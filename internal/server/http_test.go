// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/AccelByte/extend-clan-battle/pkg/api"
	"github.com/AccelByte/extend-clan-battle/pkg/battle"
)

func newTestHTTP(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := setupTestEnv(t)
	s := NewHTTPServer(0, env.gateway, env.engine, env.health, env.metrics)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return env, srv
}

func postAction(t *testing.T, srv *httptest.Server, group, user string, body string) (int, api.Response) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/groups/"+group+"/actions", strings.NewReader(body))
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}
	if user != "" {
		req.Header.Set(headerUserID, user)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s error = %v", req.URL, err)
	}
	defer res.Body.Close()

	var resp api.Response
	if res.Header.Get("Content-Type") == "application/json" {
		if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response error = %v", err)
		}
	}
	return res.StatusCode, resp
}

// mustPostAction posts body as alice and stops the test unless it succeeds.
func mustPostAction(t *testing.T, srv *httptest.Server, body string) {
	t.Helper()
	status, resp := postAction(t, srv, "g1", "alice", body)
	if status != http.StatusOK || resp.Code != api.CodeOK {
		t.Fatalf("POST %s = %d code %d (%s), expected 200 code 0", body, status, resp.Code, resp.Message)
	}
}

func getStatus(t *testing.T, url string) *http.Response {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	return res
}

func TestHTTP_Actions(t *testing.T) {
	env, srv := newTestHTTP(t)

	tests := []struct {
		name       string
		group      string
		user       string
		body       string
		wantStatus int
		wantCode   int
	}{
		{"damage", "g1", "alice", `{"action":"addrecord","defeat":false,"damage":100}`, http.StatusOK, api.CodeOK},
		{"domain rejection", "g1", "bob", `{"action":"addrecord","defeat":false,"damage":-1}`, http.StatusOK, api.CodeDomainError},
		{"unknown group", "g9", "alice", `{"action":"get_data"}`, http.StatusNotFound, api.CodeGroupNotExists},
		{"non member", "g1", "mallory", `{"action":"get_data"}`, http.StatusForbidden, api.CodeInsufficientAuthority},
		{"bad json", "g1", "alice", `{"action":`, http.StatusBadRequest, api.CodeInvalidPayload},
		{"unknown action", "g1", "alice", `{"action":"fly"}`, http.StatusBadRequest, api.CodeUnknownAction},
		{"long poll without change", "g1", "alice", `{"action":"update_boss"}`, http.StatusOK, api.CodeNotChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := postAction(t, srv, tt.group, tt.user, tt.body)
			if status != tt.wantStatus {
				t.Errorf("status = %d, expected %d", status, tt.wantStatus)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("Code = %d (%s), expected %d", resp.Code, resp.Message, tt.wantCode)
			}
		})
	}

	counters := []struct {
		name string
		got  float64
	}{
		{"requests http/0", testutil.ToFloat64(env.metrics.Requests.WithLabelValues("http", "0"))},
		{"operations damage/ok", testutil.ToFloat64(env.metrics.Operations.WithLabelValues("damage", "ok"))},
		{"operations damage/input_error", testutil.ToFloat64(env.metrics.Operations.WithLabelValues("damage", "input_error"))},
	}
	for _, c := range counters {
		if c.got != 1 {
			t.Errorf("%s = %v, expected 1", c.name, c.got)
		}
	}
}

func TestHTTP_MissingIdentity(t *testing.T) {
	_, srv := newTestHTTP(t)

	if status, _ := postAction(t, srv, "g1", "", `{"action":"get_data"}`); status != http.StatusUnauthorized {
		t.Errorf("status = %d, expected %d", status, http.StatusUnauthorized)
	}
}

func TestHTTP_Status(t *testing.T) {
	_, srv := newTestHTTP(t)

	res := getStatus(t, srv.URL+"/api/groups/g1/status")
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, expected %d", res.StatusCode, http.StatusOK)
	}

	var st battle.BossStatus
	if err := json.NewDecoder(res.Body).Decode(&st); err != nil {
		t.Fatalf("decode status error = %v", err)
	}
	if st.Cycle != 1 || st.BossSlot != 1 {
		t.Errorf("status = cycle %d slot %d, expected 1, 1", st.Cycle, st.BossSlot)
	}

	missing := getStatus(t, srv.URL+"/api/groups/nope/status")
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("unknown group status = %d, expected %d", missing.StatusCode, http.StatusNotFound)
	}
}

func TestHTTP_Health(t *testing.T) {
	env, srv := newTestHTTP(t)

	res := getStatus(t, srv.URL+"/healthz")
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d, expected %d", res.StatusCode, http.StatusOK)
	}

	env.mr.Close()
	res = getStatus(t, srv.URL+"/healthz")
	res.Body.Close()
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("healthz with redis down = %d, expected %d", res.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestHTTP_StatusStream(t *testing.T) {
	_, srv := newTestHTTP(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/groups/g1/stream"
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		res.Body.Close()
	})
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var st battle.BossStatus
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if st.Challenger != "" {
		t.Errorf("initial Challenger = %q, expected none", st.Challenger)
	}

	mustPostAction(t, srv, `{"action":"apply"}`)
	mustPostAction(t, srv, `{"action":"addrecord","defeat":false,"damage":5}`)

	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if st.Challenger != "alice" || !strings.Contains(st.Message, "Alice") {
		t.Errorf("after apply = %q %q, expected alice's claim", st.Challenger, st.Message)
	}

	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if st.Challenger != "" || !strings.Contains(st.Message, "damage") {
		t.Errorf("after damage = %q %q, expected a damage report and no challenger", st.Challenger, st.Message)
	}
}

func TestHTTP_StreamUnknownGroup(t *testing.T) {
	_, srv := newTestHTTP(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/groups/nope/stream"
	_, res, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("Dial() succeeded for an unknown group, expected error")
	}
	if res == nil {
		t.Fatal("Dial() returned no response")
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, expected %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code int
		want int
	}{
		{api.CodeOK, http.StatusOK},
		{api.CodeNotChanged, http.StatusOK},
		{api.CodeDomainError, http.StatusOK},
		{api.CodeInsufficientAuthority, http.StatusForbidden},
		{api.CodeGroupNotExists, http.StatusNotFound},
		{api.CodeMissingKey, http.StatusBadRequest},
		{api.CodeServerError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := httpStatus(tt.code); got != tt.want {
			t.Errorf("httpStatus(%d) = %d, expected %d", tt.code, got, tt.want)
		}
	}
}
