package bootstrap

import (
	"context"
	"crypto/ed25519"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/datastreams/internal/config"
	"github.com/dropDatabas3/datastreams/internal/datastream"
	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/dropDatabas3/datastreams/internal/metadata"
)

const testConfig = `
app:
  cluster_name: e2e
server:
  addr: 127.0.0.1:0
cluster:
  mode: "off"
  node_id: node-1
data_streams:
  ack_timeout: 5s
  initial: [metrics-app]
templates:
  metrics:
    index_patterns: ["metrics-*"]
    priority: 10
    data_stream:
      timestamp_field: "@timestamp"
    template:
      settings:
        index.number_of_shards: "1"
      mappings:
        properties:
          "@timestamp":
            type: date
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestApp_StartRegistersTemplatesAndInitialStreams(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, a.Serve())
	require.NoError(t, a.Start(ctx))

	st := a.Cluster.State()
	_, ok := st.Metadata.Template("metrics")
	require.True(t, ok)
	ds, ok := st.Metadata.DataStream("metrics-app")
	require.True(t, ok)
	assert.Equal(t, "@timestamp", ds.TimestampField.Name)
	wi, _ := ds.WriteIndex()
	assert.Equal(t, metadata.DefaultBackingIndexName("metrics-app", 1), wi.Name)

	// el router de operación ve el mismo estado
	resp, err := http.Get("http://" + a.Addr() + "/_data_stream/metrics-app")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	var view map[string]any
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "metrics-app", view["name"])

	// un segundo Start no vuelve a publicar lo que ya existe
	version := a.Cluster.State().Version
	require.NoError(t, a.Start(ctx))
	assert.GreaterOrEqual(t, a.Cluster.State().Version, version)
	_, err = a.DataStreams.Create(ctx, datastream.NewCreateDataStreamRequest("metrics-app"))
	require.Error(t, err)
	assert.True(t, errs.IsAlreadyExists(err))
}

func TestApp_CreateWithoutTemplateFails(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Start(ctx))

	_, err := a.DataStreams.Create(ctx, datastream.NewCreateDataStreamRequest("logs-app"))
	require.ErrorIs(t, err, errs.ErrNoMatchingTemplate)
}

func TestInitialState_NodesFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Cluster.NodeID = "a"
	cfg.Cluster.Nodes = map[string]string{"a": "127.0.0.1:7001", "b": "127.0.0.1:7002"}
	cfg.Cluster.NodeVersion = "7.8.0"

	st, err := InitialState(cfg)
	require.NoError(t, err)
	require.Len(t, st.Nodes.Nodes, 2)
	assert.Equal(t, "a", st.Nodes.MasterNodeID)
	assert.Equal(t, "7.8.0", st.Nodes.MinNodeVersion().String())

	cfg.Cluster.NodeVersion = "not-a-version"
	_, err = InitialState(cfg)
	require.Error(t, err)
}

func TestApplyOffline(t *testing.T) {
	cfg, err := config.Parse([]byte(testConfig))
	require.NoError(t, err)
	st, err := InitialState(cfg)
	require.NoError(t, err)

	out, err := ApplyOffline(cfg, st, []string{"metrics-a", "metrics-b"})
	require.NoError(t, err)
	assert.Equal(t, st.Version, out.Version)
	assert.Len(t, out.Metadata.DataStreams, 2)
	_, ok := out.Metadata.Index(".ds-metrics-b-000001")
	assert.True(t, ok)
	assert.Empty(t, st.Metadata.DataStreams, "input state is never mutated")

	_, err = ApplyOffline(cfg, out, []string{"metrics-a"})
	assert.True(t, errs.IsAlreadyExists(err))
}

func TestAdminVerifier_FromConfig(t *testing.T) {
	cfg := config.Default()
	v, err := adminVerifier(cfg)
	require.NoError(t, err)
	assert.Nil(t, v, "no key configured")

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(pub)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "admin.pub")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	cfg.Server.AdminJWTPublicKeyFile = path
	v, err = adminVerifier(cfg)
	require.NoError(t, err)
	assert.NotNil(t, v)

	cfg.Server.AdminJWTPublicKeyFile = filepath.Join(t.TempDir(), "missing.pub")
	_, err = adminVerifier(cfg)
	require.ErrorContains(t, err, "admin_jwt_public_key_file")
}
