// Package bootstrap arma el proceso completo a partir de la configuración:
// pipeline del cluster (local o Raft), templates, provisioning, readiness,
// allocation, sinks de eventos, archive y router de operación.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"reflect"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/datastreams/internal/allocation"
	"github.com/dropDatabas3/datastreams/internal/archive"
	"github.com/dropDatabas3/datastreams/internal/cluster"
	"github.com/dropDatabas3/datastreams/internal/config"
	"github.com/dropDatabas3/datastreams/internal/datastream"
	"github.com/dropDatabas3/datastreams/internal/events"
	httpapi "github.com/dropDatabas3/datastreams/internal/http"
	"github.com/dropDatabas3/datastreams/internal/indices"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	appmetrics "github.com/dropDatabas3/datastreams/internal/metrics"
	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	"github.com/dropDatabas3/datastreams/internal/shards"
	"github.com/dropDatabas3/datastreams/internal/templates"
	"github.com/dropDatabas3/datastreams/internal/version"
)

// leaderWait acota la espera de un leader al arrancar en modo embedded.
const leaderWait = 30 * time.Second

// App es el proceso cableado.
type App struct {
	cfg *config.Config
	log *zap.Logger

	Cluster     *cluster.Service
	Node        *cluster.Node // nil con cluster.mode=off
	Templates   *templates.Service
	DataStreams *datastream.Service
	Allocator   *allocation.Allocator
	Archive     *archive.Archive // nil sin archive.dsn
	Registry    *prometheus.Registry
	Handler     http.Handler

	dispatcher    *events.Dispatcher
	redis         *rdb.Client
	removeArchive func()
	server        *httpapi.Server
	serveErr      chan error
}

// New construye la App. No arranca nada que procese tareas: eso es Start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Format:      cfg.Log.Format,
		Level:       cfg.Log.Level,
		ClusterName: cfg.App.ClusterName,
		NodeID:      cfg.Cluster.NodeID,
	}); err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, log: logger.Named("bootstrap")}

	a.Registry = prometheus.NewRegistry()
	if err := appmetrics.RegisterAll(a.Registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	initial, err := InitialState(cfg)
	if err != nil {
		return nil, err
	}
	a.Cluster = cluster.NewService(initial, nil,
		cluster.WithPublishTimeout(cfg.Cluster.PublishTimeout),
		cluster.WithLogger(logger.Named("cluster")))

	if cfg.Cluster.Mode == "embedded" {
		node, err := cluster.NewNode(cluster.NodeOptions{
			NodeID:             cfg.Cluster.NodeID,
			RaftAddr:           cfg.Cluster.RaftAddr,
			RaftDir:            cfg.Cluster.RaftDir,
			FSM:                cluster.NewFSM(a.Cluster),
			Peers:              cfg.Cluster.Nodes,
			BootstrapPreferred: cfg.Cluster.BootstrapPreferred,
			DisableBootstrap:   cfg.Cluster.JoinOnly,
			RaftTLSEnable:      cfg.Cluster.RaftTLSEnable,
			RaftTLSCertFile:    cfg.Cluster.RaftTLSCertFile,
			RaftTLSKeyFile:     cfg.Cluster.RaftTLSKeyFile,
			RaftTLSCAFile:      cfg.Cluster.RaftTLSCAFile,
			RaftTLSServerName:  cfg.Cluster.RaftTLSServerName,
			SnapshotThreshold:  cfg.Cluster.SnapshotEvery,
			ApplyTimeout:       cfg.Cluster.PublishTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("raft node: %w", err)
		}
		a.Node = node
		a.Cluster.SetPublisher(cluster.NewRaftPublisher(node))
	}

	matcher := templates.NewMatcher(cfg.TemplateCache.TTL)
	provisioner := indices.NewCreateIndexService(matcher, indices.Defaults{
		NumberOfShards:   cfg.Indices.NumberOfShards,
		NumberOfReplicas: cfg.Indices.NumberOfReplicas,
	})
	a.Templates = templates.NewService(a.Cluster, cfg.DataStreams.MasterNodeTimeout)
	var allocOpts []allocation.Option
	if a.Node != nil {
		allocOpts = append(allocOpts, allocation.WithLeaderCheck(a.Node.IsLeader))
	}
	a.Allocator = allocation.New(a.Cluster, !cfg.Allocation.Disabled, allocOpts...)
	if a.Node != nil {
		a.Node.OnLeadershipChange(func(isLeader bool) {
			if isLeader {
				a.Allocator.Check()
			}
		})
	}

	sink := a.buildSinks()
	a.DataStreams = datastream.NewService(a.Cluster,
		datastream.Deps{Provisioner: provisioner, Matcher: matcher},
		shards.NewActiveShardsObserver(a.Cluster),
		datastream.WithEventSink(sink))

	if cfg.Archive.DSN != "" {
		arch, err := archive.Open(ctx, cfg.Archive.DSN, cfg.Archive.QueueSize)
		if err != nil {
			_ = a.closeAll()
			return nil, err
		}
		a.Archive = arch
		if cfg.Archive.Migrate {
			if _, err := arch.Migrate(ctx); err != nil {
				_ = a.closeAll()
				return nil, fmt.Errorf("archive migrate: %w", err)
			}
		}
		a.removeArchive = a.Cluster.AddListener(arch.Listener())
	}

	metricsHandler, err := httpapi.RegisterMetrics(a.Registry, a.Registry)
	if err != nil {
		_ = a.closeAll()
		return nil, err
	}
	deps := httpapi.Deps{State: a.Cluster, Metrics: metricsHandler}
	if a.Node != nil {
		deps.Raft = a.Node
	}
	if a.Archive != nil {
		deps.Archive = a.Archive
	}
	if deps.Auth, err = adminVerifier(cfg); err != nil {
		_ = a.closeAll()
		return nil, err
	}
	if deps.Auth == nil && a.Node != nil {
		a.log.Warn("raft membership changes disabled: server.admin_jwt_public_key_file not set")
	}
	a.Handler = httpapi.NewRouter(deps)
	return a, nil
}

func adminVerifier(cfg *config.Config) (*httpapi.AdminVerifier, error) {
	if cfg.Server.AdminJWTPublicKeyFile == "" {
		return nil, nil
	}
	b, err := os.ReadFile(cfg.Server.AdminJWTPublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("server.admin_jwt_public_key_file: %w", err)
	}
	key, err := httpapi.ParseAdminPublicKey(b)
	if err != nil {
		return nil, err
	}
	return httpapi.NewAdminVerifier(key, cfg.Server.AdminJWTIssuer), nil
}

// InitialState arma el estado versión 0 con los nodos conocidos. Los peers de
// cluster.nodes anuncian la misma versión y roles que este nodo.
func InitialState(cfg *config.Config) (*metadata.ClusterState, error) {
	v, err := version.Parse(cfg.Cluster.NodeVersion)
	if err != nil {
		return nil, fmt.Errorf("cluster.node_version: %w", err)
	}
	nodes := metadata.DiscoveryNodes{
		Nodes:        map[string]metadata.DiscoveryNode{},
		MasterNodeID: cfg.Cluster.NodeID,
	}
	nodes.Nodes[cfg.Cluster.NodeID] = metadata.DiscoveryNode{
		ID:      cfg.Cluster.NodeID,
		Address: cfg.Cluster.RaftAddr,
		Version: v,
		Roles:   cfg.Cluster.NodeRoles,
	}
	for id, addr := range cfg.Cluster.Nodes {
		if _, ok := nodes.Nodes[id]; ok {
			continue
		}
		nodes.Nodes[id] = metadata.DiscoveryNode{ID: id, Address: addr, Version: v, Roles: cfg.Cluster.NodeRoles}
	}
	return metadata.NewClusterState(cfg.App.ClusterName, nodes), nil
}

// buildSinks: el log siempre; redis y smtp detrás de un Dispatcher.
func (a *App) buildSinks() events.Sink {
	cfg := a.cfg.Events
	out := events.Multi{events.NewLogSink(logger.Named("events"))}

	var slow events.Multi
	if cfg.Redis.Addr != "" {
		sink, client := events.NewRedisSink(events.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		})
		a.redis = client
		slow = append(slow, sink)
	}
	if cfg.SMTP.Host != "" {
		slow = append(slow, events.NewSMTPSink(events.SMTPConfig{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			From:               cfg.SMTP.From,
			To:                 cfg.SMTP.To,
			User:               cfg.SMTP.Username,
			Pass:               cfg.SMTP.Password,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		}))
	}
	if len(slow) > 0 {
		a.dispatcher = events.NewDispatcher(slow, cfg.QueueSize)
		out = append(out, a.dispatcher)
	}
	return out
}

// Start arranca el escritor y la allocation, registra los templates de la
// configuración y crea los data streams iniciales. En modo embedded sólo el
// leader escribe.
func (a *App) Start(ctx context.Context) error {
	a.Cluster.Start()
	a.Allocator.Start()

	if a.Node != nil {
		wctx, cancel := context.WithTimeout(ctx, leaderWait)
		err := a.Node.WaitForLeader(wctx)
		cancel()
		if err != nil {
			return fmt.Errorf("waiting for raft leader: %w", err)
		}
		if !a.Node.IsLeader() {
			a.log.Info("follower node, skipping template and data stream setup", logger.NodeID(a.Node.LeaderID()))
			return nil
		}
		a.Allocator.Check()
	}

	if err := a.putTemplates(ctx); err != nil {
		return err
	}
	return a.createInitialDataStreams(ctx)
}

func (a *App) putTemplates(ctx context.Context) error {
	names := make([]string, 0, len(a.cfg.Templates))
	for name := range a.cfg.Templates {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t := a.cfg.Templates[name]
		if existing, ok := a.Cluster.State().Metadata.Template(name); ok && reflect.DeepEqual(existing, t) {
			continue
		}
		if _, err := a.Templates.PutComposableTemplate(ctx, name, t); err != nil {
			return fmt.Errorf("put template [%s]: %w", name, err)
		}
		a.log.Info("index template registered", logger.Template(name))
	}
	return nil
}

func (a *App) createInitialDataStreams(ctx context.Context) error {
	for _, name := range a.cfg.DataStreams.Initial {
		if _, ok := a.Cluster.State().Metadata.DataStream(name); ok {
			continue
		}
		req := datastream.CreateDataStreamRequest{
			Name:              name,
			MasterNodeTimeout: a.cfg.DataStreams.MasterNodeTimeout,
			AckTimeout:        a.cfg.DataStreams.AckTimeout,
		}
		resp, err := a.DataStreams.Create(ctx, req)
		if err != nil {
			return fmt.Errorf("create data stream [%s]: %w", name, err)
		}
		logger.FromWithFields(ctx, logger.DataStream(name)).Info("initial data stream created", logger.Bool("acknowledged", resp.Acknowledged))
	}
	return nil
}

// Serve abre server.addr y atiende el router en background.
func (a *App) Serve() error {
	srv, err := httpapi.Listen(a.cfg.Server.Addr, a.Handler)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr, err)
	}
	a.server = srv
	a.serveErr = make(chan error, 1)
	go func() { a.serveErr <- srv.Serve() }()
	a.log.Info("ops server listening", logger.String("addr", srv.Addr()))
	return nil
}

// Addr devuelve la dirección del router (vacío antes de Serve).
func (a *App) Addr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

// Run arranca todo y bloquea hasta que ctx se cancele o el server falle.
func (a *App) Run(ctx context.Context) error {
	if err := a.Serve(); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return nil
	case err := <-a.serveErr:
		return err
	}
}

// Close detiene todo en orden inverso al arranque.
func (a *App) Close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.server.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, a.closeAll())
	_ = logger.Sync()
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	if a.Allocator != nil {
		a.Allocator.Stop()
	}
	if a.Cluster != nil {
		errs = append(errs, a.Cluster.Close())
	}
	if a.removeArchive != nil {
		a.removeArchive()
	}
	if a.Archive != nil {
		a.Archive.Close()
	}
	if a.dispatcher != nil {
		errs = append(errs, a.dispatcher.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Node != nil {
		errs = append(errs, a.Node.Close())
	}
	return errors.Join(errs...)
}
