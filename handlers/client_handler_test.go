package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tacgrid/server/messages"
	"tacgrid/server/models"
	"tacgrid/server/services"
)

type wireResponse struct {
	Type      messages.MessageType `json:"type"`
	RequestID string               `json:"request_id"`
	Payload   json.RawMessage      `json:"payload"`
}

func dialTestServer(t *testing.T) (*websocket.Conn, *API) {
	t.Helper()
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, api
}

func send(t *testing.T, conn *websocket.Conn, typ messages.MessageType, id string, payload interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": typ, "request_id": id}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

// receive reads until a message of the wanted type and request id arrives
func receive(t *testing.T, conn *websocket.Conn, typ messages.MessageType, id string) wireResponse {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var resp wireResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("ReadJSON waiting for %s/%s: %v", typ, id, err)
		}
		if resp.Type == typ && resp.RequestID == id {
			return resp
		}
	}
}

func TestClientHandler_RequestResponse(t *testing.T) {
	conn, _ := dialTestServer(t)

	send(t, conn, messages.MessageTypeGetMapConfig, "1", nil)
	resp := receive(t, conn, messages.MessageTypeResult, "1")
	var cfg models.MapConfig
	if err := json.Unmarshal(resp.Payload, &cfg); err != nil || cfg.GridSizeX != 10 {
		t.Fatalf("map config = %+v, %v", cfg, err)
	}

	send(t, conn, messages.MessageTypeSetCell, "2", messages.SetCellMessage{X: 1, Y: 1, Cell: models.GridCell{Obstacle: true}})
	resp = receive(t, conn, messages.MessageTypeResult, "2")
	var cell models.GridCell
	if err := json.Unmarshal(resp.Payload, &cell); err != nil || !cell.Obstacle || cell.X != 1 {
		t.Fatalf("set cell = %+v, %v", cell, err)
	}

	send(t, conn, messages.MessageTypeFindPath, "3", messages.PathMessage{StartX: 0, StartY: 0, EndX: 2, EndY: 2})
	resp = receive(t, conn, messages.MessageTypeResult, "3")
	var path models.PathResult
	if err := json.Unmarshal(resp.Payload, &path); err != nil {
		t.Fatalf("path: %v", err)
	}
	for _, p := range path.Path {
		if p.X == 1 && p.Y == 1 {
			t.Fatal("path crosses the obstacle")
		}
	}

	send(t, conn, messages.MessageTypeSearchLocation, "4", messages.SearchMessage{Query: "12.5,45.0"})
	resp = receive(t, conn, messages.MessageTypeResult, "4")
	var res models.SearchResult
	if err := json.Unmarshal(resp.Payload, &res); err != nil || res.Lat != 12.5 || res.Lon != 45 {
		t.Fatalf("search = %+v, %v", res, err)
	}
}

func TestClientHandler_Errors(t *testing.T) {
	conn, _ := dialTestServer(t)

	tests := []struct {
		id      string
		typ     messages.MessageType
		payload interface{}
		code    int
	}{
		{"a", messages.MessageTypeGetCell, messages.CellMessage{X: 42, Y: 0}, services.KindNotFound.Code()},
		{"b", messages.MessageTypeSearchLocation, messages.SearchMessage{Query: "Unknown Place"}, services.KindNotFound.Code()},
		{"c", messages.MessageTypeGetCell, nil, messages.ErrorCodeBadRequest},
		{"d", "teleport", nil, messages.ErrorCodeUnknownType},
		{"e", messages.MessageTypeCancelIngest, messages.CancelIngestMessage{RequestID: "nope"}, services.KindNotFound.Code()},
	}
	for _, tt := range tests {
		send(t, conn, tt.typ, tt.id, tt.payload)
		resp := receive(t, conn, messages.MessageTypeError, tt.id)
		var em messages.ErrorMessage
		if err := json.Unmarshal(resp.Payload, &em); err != nil {
			t.Fatalf("%s: decode error: %v", tt.id, err)
		}
		if em.ErrorCode != tt.code {
			t.Fatalf("%s: error code = %d, want %d (%s)", tt.id, em.ErrorCode, tt.code, em.ErrorMessage)
		}
	}
}

func TestClientHandler_SessionViewport(t *testing.T) {
	conn, api := dialTestServer(t)

	send(t, conn, messages.MessageTypeZoom, "z", messages.ZoomMessage{Level: 2})
	resp := receive(t, conn, messages.MessageTypeResult, "z")
	var vm messages.ViewportMessage
	if err := json.Unmarshal(resp.Payload, &vm); err != nil || vm.Zoom != 2 {
		t.Fatalf("zoom = %+v, %v", vm, err)
	}

	// The session viewport is not the engine default.
	def, err := api.grid.Viewport()
	if err != nil {
		t.Fatalf("Viewport: %v", err)
	}
	if def.ZoomLevel() != 1 {
		t.Fatalf("default viewport zoom changed to %f", def.ZoomLevel())
	}

	send(t, conn, messages.MessageTypeVisibleCells, "v", nil)
	resp = receive(t, conn, messages.MessageTypeResult, "v")
	var vis models.VisibleCells
	if err := json.Unmarshal(resp.Payload, &vis); err != nil || len(vis.Cells) != 25 {
		t.Fatalf("visible cells = %d, %v", len(vis.Cells), err)
	}
}

func TestClientHandler_IngestAndBroadcast(t *testing.T) {
	conn, _ := dialTestServer(t)

	raster := models.Raster{Width: 10, Height: 10, Samples: make([]float64, 100)}
	for i := range raster.Samples {
		raster.Samples[i] = -10
	}
	send(t, conn, messages.MessageTypeLoadDEM, "dem", raster)

	// The result and the broadcast race each other.
	var gotResult, gotUpdate bool
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !gotResult || !gotUpdate {
		var resp wireResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("ReadJSON: result=%v update=%v: %v", gotResult, gotUpdate, err)
		}
		switch {
		case resp.Type == messages.MessageTypeResult && resp.RequestID == "dem":
			var res messages.IngestResultMessage
			if err := json.Unmarshal(resp.Payload, &res); err != nil || res.Generation != 1 {
				t.Fatalf("ingest result = %+v, %v", res, err)
			}
			gotResult = true
		case resp.Type == messages.MessageTypeGridUpdated:
			var gu messages.GridUpdatedMessage
			if err := json.Unmarshal(resp.Payload, &gu); err != nil || gu.Generation != 1 {
				t.Fatalf("grid update = %+v, %v", gu, err)
			}
			gotUpdate = true
		}
	}

	send(t, conn, messages.MessageTypeSetBathymetry, "bad", models.Raster{Width: 3, Height: 3, Samples: make([]float64, 9)})
	resp := receive(t, conn, messages.MessageTypeError, "bad")
	var em messages.ErrorMessage
	if err := json.Unmarshal(resp.Payload, &em); err != nil || em.ErrorCode != services.KindDataFormat.Code() {
		t.Fatalf("bathymetry error = %+v, %v", em, err)
	}
}

func TestClientManager_SessionStateAndUpdates(t *testing.T) {
	conn, api := dialTestServer(t)

	send(t, conn, messages.MessageTypeZoom, "z", messages.ZoomMessage{Level: 2})
	resp := receive(t, conn, messages.MessageTypeResult, "z")
	var vm messages.ViewportMessage
	if err := json.Unmarshal(resp.Payload, &vm); err != nil {
		t.Fatalf("zoom: %v", err)
	}

	rec := doRequest(t, api.Routes(), http.MethodGet, "/api/sessions", nil)
	sessions := decodeBody[[]messages.SessionMessage](t, rec)
	if len(sessions) != 1 || sessions[0].Viewport.Zoom != 2 || len(sessions[0].Ingestions) != 0 {
		t.Fatalf("sessions = %+v", sessions)
	}

	send(t, conn, messages.MessageTypeSetCell, "s", messages.SetCellMessage{X: 1, Y: 1, Cell: models.GridCell{Obstacle: true}})
	resp = receive(t, conn, messages.MessageTypeGridUpdated, "")
	var gu messages.GridUpdatedMessage
	if err := json.Unmarshal(resp.Payload, &gu); err != nil {
		t.Fatalf("grid update: %v", err)
	}
	if gu.Generation != 1 || gu.Visible != vm.Rect {
		t.Fatalf("grid update = %+v, want generation 1 and rect %+v", gu, vm.Rect)
	}
}
