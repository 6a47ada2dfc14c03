package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
app:
  cluster_name: prod-logs
cluster:
  mode: embedded
  node_id: n1
  raft_addr: 127.0.0.1:7000
  raft_dir: data/raft
  nodes:
    n1: 127.0.0.1:7000
data_streams:
  ack_timeout: 5s
  initial: [logs-app]
indices:
  number_of_replicas: 0
templates:
  logs:
    index_patterns: ["logs-*"]
    priority: 10
    data_stream:
      timestamp_field: "@timestamp"
    template:
      settings:
        index.number_of_shards: "2"
      mappings:
        properties:
          "@timestamp": {type: date}
`

func TestLoad_FileAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod-logs", c.App.ClusterName)
	assert.Equal(t, "embedded", c.Cluster.Mode)
	assert.Equal(t, filepath.Join(dir, "data", "raft"), c.Cluster.RaftDir)
	assert.Equal(t, 5*time.Second, c.DataStreams.AckTimeout)
	assert.Equal(t, 30*time.Second, c.DataStreams.MasterNodeTimeout)
	assert.Equal(t, []string{"logs-app"}, c.DataStreams.Initial)
	assert.Equal(t, 1, c.Indices.NumberOfShards)
	assert.Equal(t, 0, c.Indices.NumberOfReplicas, "explicit zero replicas is kept")

	tmpl := c.Templates["logs"]
	require.NotNil(t, tmpl)
	assert.Equal(t, "@timestamp", tmpl.TimestampField())
	assert.Equal(t, int64(10), tmpl.Priority)
	assert.Equal(t, "2", tmpl.Template.Settings["index.number_of_shards"])
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, "off", c.Cluster.Mode)
	assert.Equal(t, 1, c.Indices.NumberOfReplicas)
	assert.Equal(t, ":9200", c.Server.Addr)
	require.NoError(t, c.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DS_CLUSTER_NAME", "from-env")
	t.Setenv("DS_ACK_TIMEOUT", "250ms")
	t.Setenv("DS_INITIAL_DATA_STREAMS", "a, b")
	t.Setenv("DS_CLUSTER_NODES", "n1=127.0.0.1:7000;n2=127.0.0.1:7001")
	t.Setenv("DS_ALLOCATION_DISABLED", "true")

	c, err := Parse([]byte(`cluster: {mode: off}`))
	require.NoError(t, err)
	assert.Equal(t, "from-env", c.App.ClusterName)
	assert.Equal(t, 250*time.Millisecond, c.DataStreams.AckTimeout)
	assert.Equal(t, []string{"a", "b"}, c.DataStreams.Initial)
	assert.Equal(t, map[string]string{"n1": "127.0.0.1:7000", "n2": "127.0.0.1:7001"}, c.Cluster.Nodes)
	assert.True(t, c.Allocation.Disabled)
}

func TestValidate(t *testing.T) {
	_, err := Parse([]byte(`cluster: {mode: raft}`))
	assert.ErrorContains(t, err, "invalid cluster.mode")

	_, err = Parse([]byte(`cluster: {mode: embedded}`))
	assert.ErrorContains(t, err, "raft_addr is required")

	_, err = Parse([]byte(`cluster: {node_version: "seven"}`))
	assert.ErrorContains(t, err, "node_version")

	_, err = Parse([]byte(`indices: {number_of_replicas: -1}`))
	assert.ErrorContains(t, err, "number_of_replicas")

	_, err = Parse([]byte(`events: {smtp: {host: smtp.local}}`))
	assert.ErrorContains(t, err, "events.smtp.from")

	_, err = Parse([]byte(`log: {level: verbose}`))
	assert.ErrorContains(t, err, "log.level")

	_, err = Parse([]byte(`log: {format: logfmt}`))
	assert.ErrorContains(t, err, "log.format")
}
