package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"tacgrid/server/messages"
	"tacgrid/server/models"
	"tacgrid/server/network"
	"tacgrid/server/services"
)

var nextClientID atomic.Uint64

// ClientHandler serves the grid operations for a single client connection.
// Each session owns its own viewport.
type ClientHandler struct {
	id            string
	conn          *network.Connection
	grid          *services.GridService
	viewport      *services.ViewportController
	clientManager *ClientManager

	ctx    context.Context // cancelled when the client disconnects
	cancel context.CancelFunc

	tasksMu sync.Mutex
	tasks   map[string]*services.IngestTask // running ingestions by request ID
}

// HandleClientConnection handles a new client connection until it closes
func HandleClientConnection(wsConn *websocket.Conn, grid *services.GridService, clientManager *ClientManager) {
	slog.Info("new connection", "remote", wsConn.RemoteAddr().String())

	conn := network.NewConnection(wsConn)
	go conn.WritePump()

	viewport, err := grid.NewViewport()
	if err != nil {
		conn.SendMessage(messages.Response{Type: messages.MessageTypeError, Payload: errorMessage(err)})
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	handler := &ClientHandler{
		id:            fmt.Sprintf("client_%d", nextClientID.Add(1)),
		conn:          conn,
		grid:          grid,
		viewport:      viewport,
		clientManager: clientManager,
		ctx:           ctx,
		cancel:        cancel,
		tasks:         make(map[string]*services.IngestTask),
	}
	clientManager.AddClient(handler)

	// Handle the read pump in the current goroutine
	conn.ReadPump(handler)

	// Clean up when the connection is closed; running ingestions are cancelled
	cancel()
	clientManager.RemoveClient(handler.id)
	slog.Info("client disconnected", "client", handler.id)
}

// HandleMessage handles incoming messages from the client
func (h *ClientHandler) HandleMessage(conn *network.Connection, message []byte) {
	var msg messages.BaseMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Warn("error unmarshaling message", "client", h.id, "error", err)
		h.sendError("", badRequest(errors.New("malformed message")))
		return
	}

	payload, reply, err := h.dispatch(msg)
	if err != nil {
		slog.Debug("request failed", "client", h.id, "type", msg.Type, "error", err)
		h.sendError(msg.RequestID, err)
		return
	}
	if reply {
		h.send(messages.Response{Type: messages.MessageTypeResult, RequestID: msg.RequestID, Payload: payload})
	}
}

// dispatch runs one request. reply is false when the answer is sent later.
func (h *ClientHandler) dispatch(msg messages.BaseMessage) (payload interface{}, reply bool, err error) {
	switch msg.Type {
	case messages.MessageTypeGetMapConfig:
		cfg, err := h.grid.GetMapConfig()
		return cfg, true, err

	case messages.MessageTypeGridToLatLon:
		req, err := decode[messages.CellMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		geo, err := h.grid.GridToLatLon(req.X, req.Y)
		return geo, true, err

	case messages.MessageTypeLatLonToGrid:
		req, err := decode[messages.GeoMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		gc, err := h.grid.LatLonToGrid(req.Lat, req.Lon)
		return gc, true, err

	case messages.MessageTypeGetCell:
		req, err := decode[messages.CellMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		c, err := h.grid.GetGridCellData(req.X, req.Y)
		return c, true, err

	case messages.MessageTypeSetCell:
		req, err := decode[messages.SetCellMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		if err := h.grid.SetGridCellData(req.X, req.Y, req.Cell); err != nil {
			return nil, false, err
		}
		c, err := h.grid.GetGridCellData(req.X, req.Y)
		return c, true, err

	case messages.MessageTypeGetTerrain:
		req, err := decode[messages.CellMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		t, err := h.grid.GetTerrainType(req.X, req.Y)
		return t, true, err

	case messages.MessageTypeFindPath:
		req, err := decode[messages.PathMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		path, err := h.grid.FindPath(h.ctx, req.StartX, req.StartY, req.EndX, req.EndY)
		return path, true, err

	case messages.MessageTypePan:
		req, err := decode[messages.PanMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		h.viewport.Pan(req.DeltaX, req.DeltaY)
		return viewportMessage(h.viewport), true, nil

	case messages.MessageTypeZoom:
		req, err := decode[messages.ZoomMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		h.viewport.Zoom(req.Level)
		return viewportMessage(h.viewport), true, nil

	case messages.MessageTypeSelectCell:
		req, err := decode[messages.CellMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		if err := h.viewport.Select(req.X, req.Y); err != nil {
			return nil, false, err
		}
		return viewportMessage(h.viewport), true, nil

	case messages.MessageTypeVisibleCells:
		return h.viewport.VisibleCells(), true, nil

	case messages.MessageTypeSearchLocation:
		req, err := decode[messages.SearchMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		res, err := h.grid.SearchLocation(req.Query)
		return res, true, err

	case messages.MessageTypeNearestLocation:
		req, err := decode[messages.GeoMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		loc, err := h.grid.NearestLocation(req.Lat, req.Lon)
		return loc, true, err

	case messages.MessageTypeLoadDEM:
		return nil, false, h.startIngest(msg, h.grid.StartDEM)

	case messages.MessageTypeSetBathymetry:
		return nil, false, h.startIngest(msg, h.grid.StartBathymetry)

	case messages.MessageTypeCancelIngest:
		req, err := decode[messages.CancelIngestMessage](msg.Payload)
		if err != nil {
			return nil, false, err
		}
		h.tasksMu.Lock()
		task, ok := h.tasks[req.RequestID]
		h.tasksMu.Unlock()
		if !ok {
			return nil, false, &services.GridError{Kind: services.KindNotFound, Op: "cancel_ingest", Query: req.RequestID}
		}
		task.Cancel()
		return req, true, nil

	default:
		slog.Warn("unknown message type", "client", h.id, "type", msg.Type)
		return nil, false, &unknownTypeError{msgType: msg.Type}
	}
}

type startFunc func(ctx context.Context, r models.Raster) (*services.IngestTask, error)

// startIngest launches an ingestion bound to the session and answers when it finishes
func (h *ClientHandler) startIngest(msg messages.BaseMessage, start startFunc) error {
	raster, err := decode[models.Raster](msg.Payload)
	if err != nil {
		return err
	}
	task, err := start(h.ctx, raster)
	if err != nil {
		return err
	}

	if msg.RequestID != "" {
		h.tasksMu.Lock()
		h.tasks[msg.RequestID] = task
		h.tasksMu.Unlock()
	}

	go func() {
		gen, err := task.Wait()

		h.tasksMu.Lock()
		delete(h.tasks, msg.RequestID)
		h.tasksMu.Unlock()

		if err != nil {
			h.sendError(msg.RequestID, err)
			return
		}
		h.send(messages.Response{
			Type:      messages.MessageTypeResult,
			RequestID: msg.RequestID,
			Payload:   messages.IngestResultMessage{Generation: gen},
		})
	}()
	return nil
}

// runningIngestions returns the request IDs of this session's running
// ingestions in sorted order
func (h *ClientHandler) runningIngestions() []string {
	h.tasksMu.Lock()
	ids := make([]string, 0, len(h.tasks))
	for id := range h.tasks {
		ids = append(ids, id)
	}
	h.tasksMu.Unlock()
	sort.Strings(ids)
	return ids
}

func (h *ClientHandler) send(resp messages.Response) {
	if err := h.conn.SendMessage(resp); err != nil {
		slog.Warn("error sending response", "client", h.id, "error", err)
	}
}

func (h *ClientHandler) sendError(requestID string, err error) {
	if me, ok := err.(*unknownTypeError); ok {
		h.send(messages.Response{
			Type:      messages.MessageTypeError,
			RequestID: requestID,
			Payload:   messages.ErrorMessage{ErrorCode: messages.ErrorCodeUnknownType, ErrorMessage: me.Error()},
		})
		return
	}
	h.send(messages.Response{Type: messages.MessageTypeError, RequestID: requestID, Payload: errorMessage(err)})
}

type unknownTypeError struct {
	msgType messages.MessageType
}

func (e *unknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.msgType)
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, badRequest(errors.New("missing payload"))
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, badRequest(err)
	}
	return v, nil
}

func viewportMessage(vc *services.ViewportController) messages.ViewportMessage {
	cx, cy := vc.Center()
	vm := messages.ViewportMessage{
		Zoom:    vc.ZoomLevel(),
		CenterX: cx,
		CenterY: cy,
		Rect:    vc.Rect(),
	}
	if sel, ok := vc.Selection(); ok {
		vm.Selection = &sel
	}
	return vm
}
