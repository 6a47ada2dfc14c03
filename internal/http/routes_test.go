package http

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/raft"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/datastreams/internal/archive"
	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/dropDatabas3/datastreams/internal/metadata"
)

type staticState struct{ st *metadata.ClusterState }

func (s staticState) State() *metadata.ClusterState { return s.st }

type fakeRaft struct {
	leader   bool
	leaderID string
	added    [][2]string
	removed  []string
	addErr   error
}

func (f *fakeRaft) NodeID() string           { return "n1" }
func (f *fakeRaft) RaftAddr() string         { return "127.0.0.1:7000" }
func (f *fakeRaft) IsLeader() bool           { return f.leader }
func (f *fakeRaft) LeaderID() string         { return f.leaderID }
func (f *fakeRaft) Stats() map[string]string { return map[string]string{"state": "Leader"} }
func (f *fakeRaft) GetConfiguration(context.Context) (raft.Configuration, error) {
	return raft.Configuration{Servers: []raft.Server{{ID: "n1", Address: "127.0.0.1:7000", Suffrage: raft.Voter}}}, nil
}
func (f *fakeRaft) AddVoter(_ context.Context, id, addr string) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, [2]string{id, addr})
	return nil
}
func (f *fakeRaft) RemoveServer(_ context.Context, id string) error {
	f.removed = append(f.removed, id)
	return nil
}

type fakeArchive struct{ recs []archive.Record }

func (f fakeArchive) Recent(_ context.Context, limit int) ([]archive.Record, error) {
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

func stateWithStream(t *testing.T) *metadata.ClusterState {
	t.Helper()
	st := metadata.NewClusterState("test", metadata.DiscoveryNodes{})
	im := &metadata.IndexMetadata{Index: metadata.Index{Name: ".ds-logs-000001"}}
	ds := metadata.NewDataStream("logs", metadata.TimestampField{Name: "@timestamp"}, []metadata.Index{im.Index})
	md, err := st.Metadata.Builder().PutIndex(im).PutDataStream(ds).Build()
	require.NoError(t, err)
	return st.Builder().Metadata(md).Build().WithNextVersion(st)
}

type adminKeys struct {
	priv     ed25519.PrivateKey
	verifier *AdminVerifier
}

func newAdminKeys(t *testing.T) adminKeys {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return adminKeys{priv: priv, verifier: NewAdminVerifier(pub, "ops")}
}

func (k adminKeys) token(t *testing.T, scope string, ttl time.Duration) string {
	t.Helper()
	claims := AdminClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "operator",
			Issuer:    "ops",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Scope: scope,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(k.priv)
	require.NoError(t, err)
	return raw
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return doAs(t, h, method, path, body, "")
}

func doAs(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_HealthAndState(t *testing.T) {
	reg := prometheus.NewRegistry()
	metricsHandler, err := RegisterMetrics(reg, reg)
	require.NoError(t, err)
	h := NewRouter(Deps{State: staticState{stateWithStream(t)}, Metrics: metricsHandler})

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state_version":1`)

	rec = do(t, h, http.MethodGet, "/_data_stream", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		DataStreams []dataStreamView `json:"data_streams"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.DataStreams, 1)
	assert.Equal(t, []string{".ds-logs-000001"}, list.DataStreams[0].Indices)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/_data_stream/missing", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/_cluster/state", "").Code)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	// sin raft no hay rutas de membership
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/_cluster/raft/stats", "").Code)
}

func TestRouter_ReadyzWithoutLeader(t *testing.T) {
	h := NewRouter(Deps{State: staticState{stateWithStream(t)}, Raft: &fakeRaft{}})
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/readyz", "").Code)
}

func TestRouter_Membership(t *testing.T) {
	keys := newAdminKeys(t)
	tok := keys.token(t, "cluster:monitor "+AdminScope, time.Minute)
	fr := &fakeRaft{leader: true, leaderID: "n1"}
	h := NewRouter(Deps{State: staticState{stateWithStream(t)}, Raft: fr, Auth: keys.verifier})

	rec := doAs(t, h, http.MethodPost, "/_cluster/raft/voters", `{"id":"n2","address":"10.0.0.2:7000"}`, tok)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, [][2]string{{"n2", "10.0.0.2:7000"}}, fr.added)

	assert.Equal(t, http.StatusBadRequest, doAs(t, h, http.MethodPost, "/_cluster/raft/voters", `{"id":"n3"}`, tok).Code)

	rec = doAs(t, h, http.MethodDelete, "/_cluster/raft/voters/n2", "", tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"n2"}, fr.removed)

	// lectura sin token
	rec = do(t, h, http.MethodGet, "/_cluster/raft/configuration", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"suffrage":"Voter"`)

	fr.addErr = raft.ErrNotLeader
	rec = doAs(t, h, http.MethodPost, "/_cluster/raft/voters", `{"id":"n4","address":"10.0.0.4:7000"}`, tok)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRouter_MembershipRequiresAdminToken(t *testing.T) {
	keys := newAdminKeys(t)
	other := newAdminKeys(t)
	fr := &fakeRaft{leader: true, leaderID: "n1"}
	h := NewRouter(Deps{State: staticState{stateWithStream(t)}, Raft: fr, Auth: keys.verifier})
	body := `{"id":"n2","address":"10.0.0.2:7000"}`

	rec := do(t, h, http.MethodPost, "/_cluster/raft/voters", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "missing bearer token")

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodDelete, "/_cluster/raft/voters/n1", "").Code)
	assert.Equal(t, http.StatusUnauthorized,
		doAs(t, h, http.MethodPost, "/_cluster/raft/voters", body, other.token(t, AdminScope, time.Minute)).Code, "foreign key")
	assert.Equal(t, http.StatusUnauthorized,
		doAs(t, h, http.MethodPost, "/_cluster/raft/voters", body, keys.token(t, AdminScope, -time.Hour)).Code, "expired")
	assert.Equal(t, http.StatusForbidden,
		doAs(t, h, http.MethodPost, "/_cluster/raft/voters", body, keys.token(t, "cluster:monitor", time.Minute)).Code)

	assert.Empty(t, fr.added)
	assert.Empty(t, fr.removed)
}

func TestRouter_MembershipWithoutVerifierIsClosed(t *testing.T) {
	fr := &fakeRaft{leader: true, leaderID: "n1"}
	h := NewRouter(Deps{State: staticState{stateWithStream(t)}, Raft: fr})

	rec := doAs(t, h, http.MethodPost, "/_cluster/raft/voters", `{"id":"n2","address":"10.0.0.2:7000"}`, "anything")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, fr.added)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/_cluster/raft/stats", "").Code)
}

func TestParseAdminPublicKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	got, err := ParseAdminPublicKey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	_, err = ParseAdminPublicKey([]byte("not pem"))
	require.Error(t, err)
}

func TestRouter_MembershipOnFollower(t *testing.T) {
	keys := newAdminKeys(t)
	fr := &fakeRaft{leader: false, leaderID: "n1"}
	h := NewRouter(Deps{State: staticState{stateWithStream(t)}, Raft: fr, Auth: keys.verifier})

	rec := doAs(t, h, http.MethodPost, "/_cluster/raft/voters", `{"id":"n2","address":"10.0.0.2:7000"}`, keys.token(t, AdminScope, time.Minute))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "n1", rec.Header().Get("X-Leader"))
	assert.Empty(t, fr.added)
}

func TestRouter_Archive(t *testing.T) {
	fa := fakeArchive{recs: []archive.Record{{DataStream: "a"}, {DataStream: "b"}}}
	h := NewRouter(Deps{State: staticState{stateWithStream(t)}, Archive: fa})

	rec := do(t, h, http.MethodGet, "/_archive/data_streams?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Records []archive.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Records, 1)
	assert.Equal(t, "a", out.Records[0].DataStream)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/_archive/data_streams?limit=0", "").Code)
}

func TestErrorStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{errs.New(errs.ErrAlreadyExists, "data_stream [x] already exists"), http.StatusBadRequest, "resource_already_exists"},
		{errs.New(errs.ErrInvalidName, "bad"), http.StatusBadRequest, "invalid_name"},
		{errs.New(errs.ErrNoMatchingTemplate, "no template"), http.StatusBadRequest, "illegal_argument"},
		{errs.Internal("broken"), http.StatusInternalServerError, "internal_consistency"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, c := range cases {
		status, code := errorStatus(c.err)
		assert.Equal(t, c.status, status, c.err.Error())
		assert.Equal(t, c.code, code, c.err.Error())
	}
}
