package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"tacgrid/server/messages"
	"tacgrid/server/models"
	"tacgrid/server/persistence"
	"tacgrid/server/services"
)

// maxRasterBytes bounds raster uploads
const maxRasterBytes = 512 << 20

// API serves the grid engine over HTTP and upgrades /ws to a websocket session
type API struct {
	grid         *services.GridService
	store        persistence.Storage
	mapName      string
	clients      *ClientManager
	rasterFormat persistence.SampleFormat
	upgrader     websocket.Upgrader
}

// NewAPI creates the HTTP API and broadcasts every published grid change to
// the connected clients. store may be nil, in which case added locations are
// kept in memory only.
func NewAPI(grid *services.GridService, store persistence.Storage, mapName string, clients *ClientManager, format persistence.SampleFormat) *API {
	grid.OnGridUpdated(clients.NotifyGridUpdated)

	return &API{
		grid:         grid,
		store:        store,
		mapName:      mapName,
		clients:      clients,
		rasterFormat: format,
		upgrader: websocket.Upgrader{
			// Allow connections from any origin; the server sits behind the client's own proxy
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Routes configures all routes and returns the router
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.health)
		r.Get("/sessions", a.listSessions)
		r.Get("/config", a.getConfig)

		r.Get("/cells/{x}/{y}", a.getCell)
		r.Put("/cells/{x}/{y}", a.setCell)
		r.Get("/cells/{x}/{y}/terrain", a.getTerrain)
		r.Get("/cells/{x}/{y}/geo", a.gridToLatLon)
		r.Get("/grid", a.latLonToGrid)

		r.Get("/path", a.findPath)

		r.Get("/search", a.search)
		r.Get("/nearest", a.nearest)
		r.Get("/locations", a.listLocations)
		r.Post("/locations", a.addLocation)

		r.Post("/dem", a.loadDEM)
		r.Post("/bathymetry", a.setBathymetry)

		r.Get("/viewport", a.getViewport)
		r.Get("/viewport/cells", a.visibleCells)
		r.Post("/viewport/pan", a.pan)
		r.Post("/viewport/zoom", a.zoom)
		r.Post("/viewport/select", a.selectCell)
	})

	r.Get("/ws", a.serveWS)

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok", "clients": a.clients.Count()}
	if gen, err := a.grid.Generation(); err == nil {
		resp["generation"] = gen
	}
	respondJSON(w, http.StatusOK, resp)
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.clients.Sessions())
}

func (a *API) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.grid.GetMapConfig()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// GET /api/cells/{x}/{y}
func (a *API) getCell(w http.ResponseWriter, r *http.Request) {
	x, y, err := cellParams(r)
	if err != nil {
		respondError(w, err)
		return
	}
	c, err := a.grid.GetGridCellData(x, y)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// PUT /api/cells/{x}/{y}
func (a *API) setCell(w http.ResponseWriter, r *http.Request) {
	x, y, err := cellParams(r)
	if err != nil {
		respondError(w, err)
		return
	}
	var data models.GridCell
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		respondError(w, badRequest(err))
		return
	}
	if err := a.grid.SetGridCellData(x, y, data); err != nil {
		respondError(w, err)
		return
	}
	c, err := a.grid.GetGridCellData(x, y)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (a *API) getTerrain(w http.ResponseWriter, r *http.Request) {
	x, y, err := cellParams(r)
	if err != nil {
		respondError(w, err)
		return
	}
	t, err := a.grid.GetTerrainType(x, y)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

func (a *API) gridToLatLon(w http.ResponseWriter, r *http.Request) {
	x, y, err := cellParams(r)
	if err != nil {
		respondError(w, err)
		return
	}
	geo, err := a.grid.GridToLatLon(x, y)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, geo)
}

// GET /api/grid?lat=&lon=
func (a *API) latLonToGrid(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := geoParams(r)
	if err != nil {
		respondError(w, err)
		return
	}
	gc, err := a.grid.LatLonToGrid(lat, lon)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, gc)
}

// GET /api/path?sx=&sy=&ex=&ey=
func (a *API) findPath(w http.ResponseWriter, r *http.Request) {
	var coords [4]int
	for i, name := range []string{"sx", "sy", "ex", "ey"} {
		v, err := intQuery(r, name)
		if err != nil {
			respondError(w, err)
			return
		}
		coords[i] = v
	}
	path, err := a.grid.FindPath(r.Context(), coords[0], coords[1], coords[2], coords[3])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, path)
}

// GET /api/search?q=
func (a *API) search(w http.ResponseWriter, r *http.Request) {
	res, err := a.grid.SearchLocation(r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (a *API) nearest(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := geoParams(r)
	if err != nil {
		respondError(w, err)
		return
	}
	loc, err := a.grid.NearestLocation(lat, lon)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loc)
}

func (a *API) listLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := a.grid.Locations()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, locs)
}

type addLocationRequest struct {
	Name string   `json:"name"`
	X    *int     `json:"x,omitempty"`
	Y    *int     `json:"y,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// POST /api/locations adds a gazetteer entry by cell or by lat/lon and persists it
func (a *API) addLocation(w http.ResponseWriter, r *http.Request) {
	var req addLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, badRequest(err))
		return
	}

	var (
		loc models.Location
		err error
	)
	switch {
	case req.X != nil && req.Y != nil:
		loc, err = a.grid.AddLocation(req.Name, *req.X, *req.Y)
	case req.Lat != nil && req.Lon != nil:
		loc, err = a.grid.AddLocationGeo(req.Name, *req.Lat, *req.Lon)
	default:
		err = badRequest(errors.New("either x,y or lat,lon is required"))
	}
	if err != nil {
		respondError(w, err)
		return
	}

	if a.store != nil {
		if err := a.store.SaveLocation(a.mapName, loc); err != nil {
			slog.Error("failed to persist location", "name", loc.Name, "error", err)
			respondError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusCreated, loc)
}

// POST /api/dem
func (a *API) loadDEM(w http.ResponseWriter, r *http.Request) {
	a.ingest(w, r, "load_dem", a.grid.StartDEM)
}

// POST /api/bathymetry
func (a *API) setBathymetry(w http.ResponseWriter, r *http.Request) {
	a.ingest(w, r, "set_bathymetry", a.grid.StartBathymetry)
}

// ingest decodes a raw raster body and waits for it to be published. The
// raster dimensions default to the grid size and can be overridden with
// ?width=&height=; ?format= overrides the sample format.
func (a *API) ingest(w http.ResponseWriter, r *http.Request, op string, start startFunc) {
	cfg, err := a.grid.GetMapConfig()
	if err != nil {
		respondError(w, err)
		return
	}

	width, height := cfg.GridSizeX, cfg.GridSizeY
	if r.URL.Query().Has("width") {
		if width, err = intQuery(r, "width"); err != nil {
			respondError(w, err)
			return
		}
	}
	if r.URL.Query().Has("height") {
		if height, err = intQuery(r, "height"); err != nil {
			respondError(w, err)
			return
		}
	}
	if width != cfg.GridSizeX || height != cfg.GridSizeY {
		respondError(w, &services.GridError{
			Kind:     services.KindDataFormat,
			Op:       op,
			Expected: cfg.GridSizeX * cfg.GridSizeY,
			Actual:   width * height,
			Reason:   fmt.Sprintf("raster is %dx%d, grid is %dx%d", width, height, cfg.GridSizeX, cfg.GridSizeY),
		})
		return
	}
	format := a.rasterFormat
	if f := r.URL.Query().Get("format"); f != "" {
		if format, err = persistence.ParseSampleFormat(f); err != nil {
			respondError(w, badRequest(err))
			return
		}
	}

	body := http.MaxBytesReader(w, r.Body, maxRasterBytes)
	raster, err := persistence.DecodeRaster(body, width, height, format)
	if err != nil {
		respondError(w, rasterFormatError(op, err))
		return
	}
	task, err := start(r.Context(), raster)
	if err != nil {
		respondError(w, err)
		return
	}
	gen, err := task.Wait()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages.IngestResultMessage{Generation: gen})
}

func (a *API) getViewport(w http.ResponseWriter, r *http.Request) {
	vc, err := a.grid.Viewport()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, viewportMessage(vc))
}

func (a *API) visibleCells(w http.ResponseWriter, r *http.Request) {
	cells, err := a.grid.GetVisibleGridCells()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cells)
}

func (a *API) pan(w http.ResponseWriter, r *http.Request) {
	var req messages.PanMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, badRequest(err))
		return
	}
	if err := a.grid.PanMap(req.DeltaX, req.DeltaY); err != nil {
		respondError(w, err)
		return
	}
	a.getViewport(w, r)
}

func (a *API) zoom(w http.ResponseWriter, r *http.Request) {
	var req messages.ZoomMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, badRequest(err))
		return
	}
	if err := a.grid.ZoomMap(req.Level); err != nil {
		respondError(w, err)
		return
	}
	a.getViewport(w, r)
}

func (a *API) selectCell(w http.ResponseWriter, r *http.Request) {
	var req messages.CellMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, badRequest(err))
		return
	}
	if err := a.grid.SelectGridCell(req.X, req.Y); err != nil {
		respondError(w, err)
		return
	}
	a.getViewport(w, r)
}

func (a *API) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade connection", "error", err)
		return
	}

	// Handle client connection
	HandleClientConnection(conn, a.grid, a.clients)
}

func cellParams(r *http.Request) (int, int, error) {
	x, err := strconv.Atoi(chi.URLParam(r, "x"))
	if err != nil {
		return 0, 0, badRequest(errors.New("invalid x coordinate"))
	}
	y, err := strconv.Atoi(chi.URLParam(r, "y"))
	if err != nil {
		return 0, 0, badRequest(errors.New("invalid y coordinate"))
	}
	return x, y, nil
}

func geoParams(r *http.Request) (float64, float64, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return 0, 0, badRequest(errors.New("invalid lat"))
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return 0, 0, badRequest(errors.New("invalid lon"))
	}
	return lat, lon, nil
}

func intQuery(r *http.Request, name string) (int, error) {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0, badRequest(errors.New("invalid " + name))
	}
	return v, nil
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("error encoding JSON", "error", err)
	}
}

// respondError writes an ErrorMessage with the status matching err
func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, httpStatus(err), errorMessage(err))
}
