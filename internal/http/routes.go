package http

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/raft"

	"github.com/dropDatabas3/datastreams/internal/archive"
	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
)

// StateReader expone el último cluster state aplicado.
type StateReader interface {
	State() *metadata.ClusterState
}

// RaftAdmin es el subconjunto de cluster.Node que usan las rutas de membership.
type RaftAdmin interface {
	NodeID() string
	RaftAddr() string
	IsLeader() bool
	LeaderID() string
	Stats() map[string]string
	GetConfiguration(ctx context.Context) (raft.Configuration, error)
	AddVoter(ctx context.Context, id, addr string) error
	RemoveServer(ctx context.Context, id string) error
}

// ArchiveReader lee el registro histórico de creaciones.
type ArchiveReader interface {
	Recent(ctx context.Context, limit int) ([]archive.Record, error)
}

// Deps agrupa lo que necesita el router de operación. Raft y Archive son
// opcionales (nil con cluster.mode=off o sin archive.dsn). Sin Auth las
// mutaciones de membership responden 401.
type Deps struct {
	State   StateReader
	Raft    RaftAdmin
	Archive ArchiveReader
	Metrics http.Handler
	Auth    *AdminVerifier
}

const membershipRequestTimeout = 15 * time.Second

// NewRouter arma el router de operación. No expone la creación de data streams:
// sólo health, métricas, inspección del estado y membership de Raft (con bearer JWT).
func NewRouter(d Deps) chi.Router {
	r := chi.NewRouter()
	r.Use(WithRecover, WithRequestID, WithLogging, WithMetrics)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", d.readyz)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Get("/_cluster/state", d.clusterState)
	r.Get("/_data_stream", d.listDataStreams)
	r.Get("/_data_stream/{name}", d.getDataStream)
	r.Get("/_index_template", d.listTemplates)

	if d.Raft != nil {
		r.Route("/_cluster/raft", func(r chi.Router) {
			r.Get("/stats", d.raftStats)
			r.Get("/configuration", d.raftConfiguration)
			r.Group(func(r chi.Router) {
				r.Use(RequireAdmin(d.Auth))
				r.Post("/voters", d.addVoter)
				r.Delete("/voters/{id}", d.removeVoter)
			})
		})
	}
	if d.Archive != nil {
		r.Get("/_archive/data_streams", d.archived)
	}
	return r
}

type readyResponse struct {
	Status       string `json:"status"`
	StateVersion int64  `json:"state_version"`
	NodeID       string `json:"node_id,omitempty"`
	RaftAddr     string `json:"raft_addr,omitempty"`
	Leader       string `json:"leader,omitempty"`
	IsLeader     bool   `json:"is_leader,omitempty"`
	Message      string `json:"message,omitempty"`
}

func (d Deps) readyz(w http.ResponseWriter, _ *http.Request) {
	st := d.State.State()
	resp := readyResponse{Status: "ready", StateVersion: st.Version}
	if d.Raft != nil {
		resp.NodeID = d.Raft.NodeID()
		resp.RaftAddr = d.Raft.RaftAddr()
		resp.Leader = d.Raft.LeaderID()
		resp.IsLeader = d.Raft.IsLeader()
		if resp.Leader == "" {
			resp.Status = "unavailable"
			resp.Message = "no known leader"
			WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (d Deps) clusterState(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, d.State.State())
}

type dataStreamView struct {
	Name           string   `json:"name"`
	TimestampField string   `json:"timestamp_field"`
	Generation     int64    `json:"generation"`
	Indices        []string `json:"indices"`
}

func viewOf(ds *metadata.DataStream) dataStreamView {
	v := dataStreamView{Name: ds.Name, TimestampField: ds.TimestampField.Name, Generation: ds.Generation}
	for _, idx := range ds.Indices {
		v.Indices = append(v.Indices, idx.Name)
	}
	return v
}

func (d Deps) listDataStreams(w http.ResponseWriter, _ *http.Request) {
	md := d.State.State().Metadata
	names := make([]string, 0, len(md.DataStreams))
	for name := range md.DataStreams {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]dataStreamView, 0, len(names))
	for _, name := range names {
		out = append(out, viewOf(md.DataStreams[name]))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data_streams": out})
}

func (d Deps) getDataStream(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ds, ok := d.State.State().Metadata.DataStream(name)
	if !ok {
		WriteError(w, http.StatusNotFound, "resource_not_found", "data_stream ["+name+"] not found")
		return
	}
	WriteJSON(w, http.StatusOK, viewOf(ds))
}

func (d Deps) listTemplates(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"index_templates": d.State.State().Metadata.Templates})
}

func (d Deps) raftStats(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, d.Raft.Stats())
}

type serverView struct {
	ID       string `json:"id"`
	Address  string `json:"address"`
	Suffrage string `json:"suffrage"`
}

func (d Deps) raftConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := d.Raft.GetConfiguration(r.Context())
	if err != nil {
		WriteErr(w, err)
		return
	}
	out := make([]serverView, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		out = append(out, serverView{ID: string(s.ID), Address: string(s.Address), Suffrage: s.Suffrage.String()})
	}
	WriteJSON(w, http.StatusOK, map[string]any{"leader": d.Raft.LeaderID(), "servers": out})
}

type addVoterRequest struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

func (d Deps) addVoter(w http.ResponseWriter, r *http.Request) {
	var req addVoterRequest
	if !ReadJSON(w, r, &req) {
		return
	}
	req.ID, req.Address = strings.TrimSpace(req.ID), strings.TrimSpace(req.Address)
	if req.ID == "" || req.Address == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "id y address son obligatorios")
		return
	}
	if !d.requireLeader(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), membershipRequestTimeout)
	defer cancel()
	if err := d.Raft.AddVoter(ctx, req.ID, req.Address); err != nil {
		d.membershipError(w, r, "add voter", err)
		return
	}
	logger.From(r.Context()).Info("raft voter added", logger.NodeID(req.ID), logger.String("address", req.Address))
	WriteJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

func (d Deps) removeVoter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !d.requireLeader(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), membershipRequestTimeout)
	defer cancel()
	if err := d.Raft.RemoveServer(ctx, id); err != nil {
		d.membershipError(w, r, "remove voter", err)
		return
	}
	logger.From(r.Context()).Info("raft server removed", logger.NodeID(id))
	WriteJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}

// requireLeader responde 409 con X-Leader si este nodo es follower.
func (d Deps) requireLeader(w http.ResponseWriter) bool {
	if d.Raft.IsLeader() {
		return true
	}
	leader := d.Raft.LeaderID()
	if leader != "" {
		w.Header().Set("X-Leader", leader)
	}
	WriteError(w, http.StatusConflict, "not_leader", "membership changes must be sent to the leader ["+leader+"]")
	return false
}

func (d Deps) membershipError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger.From(r.Context()).Warn("raft membership change failed", logger.Op(op), logger.Err(err))
	if errors.Is(err, raft.ErrNotLeader) {
		err = cluster.ErrNotLeader
	}
	WriteErr(w, err)
}

func (d Deps) archived(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			WriteError(w, http.StatusBadRequest, "invalid_request", "limit debe estar entre 1 y 1000")
			return
		}
		limit = n
	}
	recs, err := d.Archive.Recent(r.Context(), limit)
	if err != nil {
		WriteErr(w, err)
		return
	}
	if recs == nil {
		recs = []archive.Record{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"records": recs})
}
