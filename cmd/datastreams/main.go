package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/datastreams/internal/bootstrap"
	"github.com/dropDatabas3/datastreams/internal/config"
	"github.com/dropDatabas3/datastreams/internal/metadata"
)

func main() {
	// .env es opcional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("error loading .env: %v", err)
	}

	var cfgPath = envOr("DS_CONFIG", "")

	root := &cobra.Command{
		Use:   "datastreams",
		Short: "Nodo de metadata con creación de data streams",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "Ruta al YAML de configuración (env DS_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Arranca el nodo: pipeline del cluster, templates y router de operación",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := app.Close(); err != nil {
					log.Printf("shutdown: %v", err)
				}
			}()
			return app.Run(ctx)
		},
	}

	var statePath, outPath string
	applyCmd := &cobra.Command{
		Use:   "apply <data_stream>...",
		Short: "Crea data streams sobre un cluster state en JSON, sin levantar el nodo",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			st, err := readState(cfg, statePath)
			if err != nil {
				return err
			}
			out, err := bootstrap.ApplyOffline(cfg, st, args)
			if err != nil {
				return err
			}
			return writeState(outPath, out)
		},
	}
	applyCmd.Flags().StringVar(&statePath, "state", "", "Cluster state JSON de entrada (vacío: estado inicial desde la config)")
	applyCmd.Flags().StringVar(&outPath, "out", "", "Archivo de salida (vacío: stdout)")

	root.AddCommand(serveCmd, applyCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func readState(cfg *config.Config, path string) (*metadata.ClusterState, error) {
	if path == "" {
		return bootstrap.InitialState(cfg)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var st metadata.ClusterState
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if st.Metadata == nil {
		return nil, fmt.Errorf("decode %s: missing metadata", path)
	}
	return &st, nil
}

func writeState(path string, st *metadata.ClusterState) error {
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path == "" {
		_, err = os.Stdout.Write(b)
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
