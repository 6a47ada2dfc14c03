package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/dropDatabas3/datastreams/internal/version"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env         string `yaml:"app_env"`
		ClusterName string `yaml:"cluster_name"`
	} `yaml:"app"`

	Log struct {
		Level  string `yaml:"level"`  // debug | info | warn | error
		Format string `yaml:"format"` // json | console (vacío: json en prod)
	} `yaml:"log"`

	// Server expone el router de operaciones (metrics, health, estado).
	Server struct {
		Addr string `yaml:"addr"`
		// Clave pública Ed25519 (PEM) que valida los bearer tokens de las
		// mutaciones de membership. Sin clave esas rutas responden 401.
		AdminJWTPublicKeyFile string `yaml:"admin_jwt_public_key_file"`
		AdminJWTIssuer        string `yaml:"admin_jwt_issuer"`
	} `yaml:"server"`

	Cluster struct {
		Mode     string            `yaml:"mode"` // off | embedded
		NodeID   string            `yaml:"node_id"`
		RaftAddr string            `yaml:"raft_addr"`
		RaftDir  string            `yaml:"raft_dir"`
		Nodes    map[string]string `yaml:"nodes"` // nodeID -> host:port (raft)
		// BootstrapPreferred / JoinOnly controlan quién arma la configuración inicial.
		BootstrapPreferred bool          `yaml:"bootstrap_preferred"`
		JoinOnly           bool          `yaml:"join_only"`
		SnapshotEvery      uint64        `yaml:"snapshot_every"`
		PublishTimeout     time.Duration `yaml:"publish_timeout"`
		// NodeVersion es la versión que este nodo anuncia en el cluster state.
		NodeVersion string   `yaml:"node_version"`
		NodeRoles   []string `yaml:"node_roles"`

		// TLS for Raft transport (optional, mTLS when enabled)
		RaftTLSEnable     bool   `yaml:"raft_tls_enable"`
		RaftTLSCertFile   string `yaml:"raft_tls_cert_file"`
		RaftTLSKeyFile    string `yaml:"raft_tls_key_file"`
		RaftTLSCAFile     string `yaml:"raft_tls_ca_file"`
		RaftTLSServerName string `yaml:"raft_tls_server_name"`
	} `yaml:"cluster"`

	DataStreams struct {
		MasterNodeTimeout time.Duration `yaml:"master_node_timeout"`
		AckTimeout        time.Duration `yaml:"ack_timeout"`
		// Initial se crean al arrancar si todavía no existen.
		Initial []string `yaml:"initial"`
	} `yaml:"data_streams"`

	Indices struct {
		NumberOfShards   int `yaml:"number_of_shards"`
		NumberOfReplicas int `yaml:"number_of_replicas"`
	} `yaml:"indices"`

	Allocation struct {
		Disabled bool `yaml:"disabled"`
	} `yaml:"allocation"`

	// Templates se registran al arrancar (nombre -> template).
	Templates     map[string]*metadata.ComposableTemplate `yaml:"templates"`
	TemplateCache struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"template_cache"`

	Events struct {
		QueueSize int `yaml:"queue_size"`
		Redis     struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Stream   string `yaml:"stream"`
			MaxLen   int64  `yaml:"max_len"`
		} `yaml:"redis"`
		SMTP struct {
			Host               string   `yaml:"host"`
			Port               int      `yaml:"port"`
			Username           string   `yaml:"username"`
			Password           string   `yaml:"password"`
			From               string   `yaml:"from"`
			To                 []string `yaml:"to"`
			TLS                string   `yaml:"tls"`                  // auto | starttls | ssl | none
			InsecureSkipVerify bool     `yaml:"insecure_skip_verify"` // sólo dev
		} `yaml:"smtp"`
	} `yaml:"events"`

	// Archive guarda en Postgres un registro de cada data stream creado.
	Archive struct {
		DSN       string `yaml:"dsn"`
		QueueSize int    `yaml:"queue_size"`
		Migrate   bool   `yaml:"migrate"`
	} `yaml:"archive"`
}

// Load lee el YAML, aplica defaults y overrides de entorno, y valida.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, err
	}
	// Normalizar raft_dir (si relativo) respecto al directorio del YAML
	if p := strings.TrimSpace(c.Cluster.RaftDir); p != "" && !filepath.IsAbs(p) {
		c.Cluster.RaftDir = filepath.Clean(filepath.Join(filepath.Dir(path), p))
	}
	return c, nil
}

// Parse es Load sin leer archivo.
func Parse(b []byte) (*Config, error) {
	c := preset()
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()

	// Overrides por env
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default devuelve la configuración por defecto (sin YAML ni entorno).
func Default() *Config {
	c := preset()
	c.applyDefaults()
	return &c
}

// preset fija los defaults cuyo valor cero es válido (se pisan sólo si el YAML los trae).
func preset() Config {
	var c Config
	c.Indices.NumberOfReplicas = 1
	return c
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.ClusterName == "" {
		c.App.ClusterName = "datastreams"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":9200"
	}

	// Cluster defaults: raft apagado
	if strings.TrimSpace(c.Cluster.Mode) == "" {
		c.Cluster.Mode = "off"
	}
	if c.Cluster.NodeID == "" {
		c.Cluster.NodeID = "node-1"
	}
	if c.Cluster.RaftDir == "" {
		c.Cluster.RaftDir = "./data/raft"
	}
	if c.Cluster.Nodes == nil {
		c.Cluster.Nodes = map[string]string{}
	}
	if c.Cluster.PublishTimeout == 0 {
		c.Cluster.PublishTimeout = 30 * time.Second
	}
	if c.Cluster.NodeVersion == "" {
		c.Cluster.NodeVersion = version.Current.String()
	}

	if c.DataStreams.MasterNodeTimeout == 0 {
		c.DataStreams.MasterNodeTimeout = 30 * time.Second
	}
	if c.DataStreams.AckTimeout == 0 {
		c.DataStreams.AckTimeout = 30 * time.Second
	}

	if c.Indices.NumberOfShards == 0 {
		c.Indices.NumberOfShards = 1
	}
	if c.Templates == nil {
		c.Templates = map[string]*metadata.ComposableTemplate{}
	}
	if c.TemplateCache.TTL == 0 {
		c.TemplateCache.TTL = 10 * time.Minute
	}

	if c.Events.QueueSize == 0 {
		c.Events.QueueSize = 1024
	}
	if c.Events.SMTP.TLS == "" {
		c.Events.SMTP.TLS = "auto"
	}
	if c.Events.SMTP.Port == 0 {
		c.Events.SMTP.Port = 587
	}
	if c.Archive.QueueSize == 0 {
		c.Archive.QueueSize = 256
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa el YAML con variables de entorno DS_*.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("DS_APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DS_CLUSTER_NAME"); ok {
		c.App.ClusterName = v
	}
	if v, ok := getEnvStr("DS_LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DS_LOG_FORMAT"); ok {
		c.Log.Format = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DS_ADMIN_JWT_PUBLIC_KEY_FILE"); ok {
		c.Server.AdminJWTPublicKeyFile = v
	}
	if v, ok := getEnvStr("DS_ADMIN_JWT_ISSUER"); ok {
		c.Server.AdminJWTIssuer = v
	}

	// SERVER
	if v, ok := getEnvStr("DS_SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// CLUSTER
	if v, ok := getEnvStr("DS_CLUSTER_MODE"); ok {
		c.Cluster.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := getEnvStr("DS_NODE_ID"); ok {
		c.Cluster.NodeID = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("DS_RAFT_ADDR"); ok {
		c.Cluster.RaftAddr = strings.TrimSpace(v)
	}
	if v, ok := getEnvStr("DS_RAFT_DIR"); ok {
		c.Cluster.RaftDir = strings.TrimSpace(v)
	}
	// DS_CLUSTER_NODES="n1=127.0.0.1:7000;n2=127.0.0.1:7001"
	if kv, ok := getEnvKVList("DS_CLUSTER_NODES", ";"); ok {
		for k, v := range kv {
			c.Cluster.Nodes[k] = v
		}
	}
	if v, ok := getEnvBool("DS_CLUSTER_BOOTSTRAP_PREFERRED"); ok {
		c.Cluster.BootstrapPreferred = v
	}
	if v, ok := getEnvBool("DS_CLUSTER_JOIN_ONLY"); ok {
		c.Cluster.JoinOnly = v
	}
	if v, ok := getEnvInt("DS_RAFT_SNAPSHOT_EVERY"); ok && v >= 0 {
		c.Cluster.SnapshotEvery = uint64(v)
	}
	if v, ok := getEnvStr("DS_NODE_VERSION"); ok {
		c.Cluster.NodeVersion = v
	}
	if v, ok := getEnvCSV("DS_NODE_ROLES"); ok {
		c.Cluster.NodeRoles = v
	}
	if v, ok := getEnvBool("DS_RAFT_TLS_ENABLE"); ok {
		c.Cluster.RaftTLSEnable = v
	}
	if v, ok := getEnvStr("DS_RAFT_TLS_CERT_FILE"); ok {
		c.Cluster.RaftTLSCertFile = v
	}
	if v, ok := getEnvStr("DS_RAFT_TLS_KEY_FILE"); ok {
		c.Cluster.RaftTLSKeyFile = v
	}
	if v, ok := getEnvStr("DS_RAFT_TLS_CA_FILE"); ok {
		c.Cluster.RaftTLSCAFile = v
	}
	if v, ok := getEnvStr("DS_RAFT_TLS_SERVER_NAME"); ok {
		c.Cluster.RaftTLSServerName = v
	}

	// DATA STREAMS
	if v, ok := getEnvDur("DS_MASTER_NODE_TIMEOUT"); ok {
		c.DataStreams.MasterNodeTimeout = v
	}
	if v, ok := getEnvDur("DS_ACK_TIMEOUT"); ok {
		c.DataStreams.AckTimeout = v
	}
	if v, ok := getEnvCSV("DS_INITIAL_DATA_STREAMS"); ok {
		c.DataStreams.Initial = v
	}

	// INDICES / ALLOCATION
	if v, ok := getEnvInt("DS_NUMBER_OF_SHARDS"); ok {
		c.Indices.NumberOfShards = v
	}
	if v, ok := getEnvInt("DS_NUMBER_OF_REPLICAS"); ok {
		c.Indices.NumberOfReplicas = v
	}
	if v, ok := getEnvBool("DS_ALLOCATION_DISABLED"); ok {
		c.Allocation.Disabled = v
	}

	// EVENTS
	if v, ok := getEnvStr("DS_REDIS_ADDR"); ok {
		c.Events.Redis.Addr = v
	}
	if v, ok := getEnvStr("DS_REDIS_PASSWORD"); ok {
		c.Events.Redis.Password = v
	}
	if v, ok := getEnvStr("DS_SMTP_HOST"); ok {
		c.Events.SMTP.Host = v
	}
	if v, ok := getEnvInt("DS_SMTP_PORT"); ok {
		c.Events.SMTP.Port = v
	}
	if v, ok := getEnvStr("DS_SMTP_USERNAME"); ok {
		c.Events.SMTP.Username = v
	}
	if v, ok := getEnvStr("DS_SMTP_PASSWORD"); ok {
		c.Events.SMTP.Password = v
	}
	if v, ok := getEnvCSV("DS_SMTP_TO"); ok {
		c.Events.SMTP.To = v
	}

	// ARCHIVE
	if v, ok := getEnvStr("DS_ARCHIVE_DSN"); ok {
		c.Archive.DSN = v
	}
	if v, ok := getEnvBool("DS_ARCHIVE_MIGRATE"); ok {
		c.Archive.Migrate = v
	}
}

// Validate revisa los valores críticos.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: invalid log.level %q (debug|info|warn|error)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("config: invalid log.format %q (json|console)", c.Log.Format)
	}
	switch c.Cluster.Mode {
	case "off":
	case "embedded":
		if strings.TrimSpace(c.Cluster.RaftAddr) == "" {
			return fmt.Errorf("config: cluster.raft_addr is required when cluster.mode=embedded")
		}
		if c.Cluster.BootstrapPreferred && c.Cluster.JoinOnly {
			return fmt.Errorf("config: cluster.bootstrap_preferred and cluster.join_only are mutually exclusive")
		}
	default:
		return fmt.Errorf("config: invalid cluster.mode %q (off|embedded)", c.Cluster.Mode)
	}
	if _, err := version.Parse(c.Cluster.NodeVersion); err != nil {
		return fmt.Errorf("config: cluster.node_version: %w", err)
	}
	if c.Indices.NumberOfShards < 1 {
		return fmt.Errorf("config: indices.number_of_shards must be >= 1")
	}
	if c.Indices.NumberOfReplicas < 0 {
		return fmt.Errorf("config: indices.number_of_replicas must be >= 0")
	}
	if c.DataStreams.MasterNodeTimeout < 0 || c.DataStreams.AckTimeout < 0 {
		return fmt.Errorf("config: data_streams timeouts must be positive")
	}
	if c.Events.SMTP.Host != "" && c.Events.SMTP.From == "" {
		return fmt.Errorf("config: events.smtp.from is required when events.smtp.host is set")
	}
	return nil
}

// parse env of form "k1=v1<sep>k2=v2" into map
func parseKVList(s, sep string) map[string]string {
	s = strings.TrimSpace(s)
	if s == "" {
		return map[string]string{}
	}
	items := strings.Split(s, sep)
	out := make(map[string]string, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" {
			continue
		}
		// split at first '='
		if i := strings.IndexRune(it, '='); i > 0 {
			k := strings.TrimSpace(it[:i])
			v := strings.TrimSpace(it[i+1:])
			if k != "" && v != "" {
				out[k] = v
			}
		}
	}
	return out
}

func getEnvKVList(key, sep string) (map[string]string, bool) {
	if s, ok := getEnvStr(key); ok {
		return parseKVList(s, sep), true
	}
	return nil, false
}
