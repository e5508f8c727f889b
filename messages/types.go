package messages

import (
	"encoding/json"

	"tacgrid/server/models"
)

// MessageType defines the type of message being sent
type MessageType string

const (
	MessageTypeGetMapConfig    MessageType = "get_map_config"
	MessageTypeGridToLatLon    MessageType = "grid_to_latlon"
	MessageTypeLatLonToGrid    MessageType = "latlon_to_grid"
	MessageTypeGetCell         MessageType = "get_cell"
	MessageTypeSetCell         MessageType = "set_cell"
	MessageTypeGetTerrain      MessageType = "get_terrain"
	MessageTypeFindPath        MessageType = "find_path"
	MessageTypePan             MessageType = "pan"
	MessageTypeZoom            MessageType = "zoom"
	MessageTypeSelectCell      MessageType = "select_cell"
	MessageTypeSearchLocation  MessageType = "search_location"
	MessageTypeNearestLocation MessageType = "nearest_location"
	MessageTypeVisibleCells    MessageType = "visible_cells"
	MessageTypeLoadDEM         MessageType = "load_dem"
	MessageTypeSetBathymetry   MessageType = "set_bathymetry"
	MessageTypeCancelIngest    MessageType = "cancel_ingest"

	MessageTypeResult      MessageType = "result"
	MessageTypeError       MessageType = "error"
	MessageTypeGridUpdated MessageType = "grid_updated"
)

// Error codes used for failures that do not come from the engine
const (
	ErrorCodeBadRequest  = 100
	ErrorCodeUnknownType = 101
	ErrorCodeInternal    = 500
)

// BaseMessage is an incoming request. Payload is decoded once the type is known.
type BaseMessage struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Response is an outgoing message; RequestID echoes the request it answers
type Response struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
}

// CellMessage addresses a grid cell
type CellMessage struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GeoMessage addresses a geographic position
type GeoMessage struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SetCellMessage replaces the data of one cell
type SetCellMessage struct {
	X    int             `json:"x"`
	Y    int             `json:"y"`
	Cell models.GridCell `json:"cell"`
}

// PathMessage requests a route between two cells
type PathMessage struct {
	StartX int `json:"start_x"`
	StartY int `json:"start_y"`
	EndX   int `json:"end_x"`
	EndY   int `json:"end_y"`
}

// PanMessage moves the viewport by a number of cells
type PanMessage struct {
	DeltaX float64 `json:"delta_x"`
	DeltaY float64 `json:"delta_y"`
}

// ZoomMessage sets the viewport zoom level
type ZoomMessage struct {
	Level float64 `json:"level"`
}

// SearchMessage is a free-text location query
type SearchMessage struct {
	Query string `json:"query"`
}

// CancelIngestMessage cancels the ingestion started by RequestID
type CancelIngestMessage struct {
	RequestID string `json:"request_id"`
}

// IngestResultMessage reports a published raster ingestion
type IngestResultMessage struct {
	Generation uint64 `json:"generation"`
}

// GridUpdatedMessage is pushed to every client after the grid changes.
// Visible is the receiving session's viewport rect.
type GridUpdatedMessage struct {
	Generation uint64      `json:"generation"`
	Visible    models.Rect `json:"visible"`
}

// SessionMessage describes one connected websocket session
type SessionMessage struct {
	ID         string          `json:"id"`
	Viewport   ViewportMessage `json:"viewport"`
	Ingestions []string        `json:"ingestions"` // request IDs of running ingestions
}

// ViewportMessage describes a session viewport
type ViewportMessage struct {
	Zoom      float64           `json:"zoom"`
	CenterX   float64           `json:"center_x"`
	CenterY   float64           `json:"center_y"`
	Rect      models.Rect       `json:"rect"`
	Selection *models.GridCoord `json:"selection,omitempty"`
}

// ErrorMessage represents an error response
type ErrorMessage struct {
	ErrorCode    int    `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}
