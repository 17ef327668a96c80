package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestRegisterListHeartbeat(t *testing.T) {
	reg := NewRegistry(time.Minute)
	srv := httptest.NewServer(NewMux(reg))
	defer srv.Close()

	resp := post(t, srv.URL+"/relays/register", registerRequest{Name: "lab", Address: "10.0.0.1:7373", Version: "2"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status = %d", resp.StatusCode)
	}
	var created registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp = post(t, srv.URL+"/relays/heartbeat", heartbeatRequest{ID: created.ID, Peers: 2, Bodies: 7})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("heartbeat status = %d", resp.StatusCode)
	}

	resp = post(t, srv.URL+"/relays/heartbeat", heartbeatRequest{ID: "missing"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown heartbeat status = %d", resp.StatusCode)
	}

	for _, tc := range []struct {
		query string
		want  int
	}{
		{"", 1},
		{"?version=2", 1},
		{"?version=3", 0},
	} {
		resp, err := http.Get(srv.URL + "/relays" + tc.query)
		if err != nil {
			t.Fatal(err)
		}
		var list []RelayInfo
		if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if len(list) != tc.want {
			t.Fatalf("%q: %d relays, want %d", tc.query, len(list), tc.want)
		}
		if tc.want == 1 && (list[0].Peers != 2 || list[0].Bodies != 7) {
			t.Fatalf("load not updated: %+v", list[0])
		}
	}
}

func TestRegisterRejectsIncomplete(t *testing.T) {
	srv := httptest.NewServer(NewMux(NewRegistry(time.Minute)))
	defer srv.Close()

	resp := post(t, srv.URL+"/relays/register", registerRequest{Name: "no address"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestWatchPushesChanges(t *testing.T) {
	reg := NewRegistry(time.Minute)
	srv := httptest.NewServer(NewMux(reg))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() watchMessage {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg watchMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	first := read()
	if len(first.Relays) != 0 {
		t.Fatalf("initial list = %+v, want empty", first.Relays)
	}

	reg.Register(RelayInfo{Name: "lab", Address: "a:1"})
	next := read()
	if next.Revision <= first.Revision || len(next.Relays) != 1 {
		t.Fatalf("update = %+v", next)
	}
}
