package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/sitegate/internal/app"
	"github.com/dropDatabas3/sitegate/internal/config"
	"github.com/dropDatabas3/sitegate/internal/observability/logger"
	"github.com/dropDatabas3/sitegate/internal/redirect"
	"github.com/dropDatabas3/sitegate/internal/security/password"
	"github.com/dropDatabas3/sitegate/internal/store/pg"
)

var version = "dev"

func main() {
	var (
		cfgPath = envOr("CONFIG_PATH", "configs/config.yaml")
		envFile = ".env"
	)

	root := &cobra.Command{
		Use:           "sitegate",
		Short:         "Login, logout y recordatorio de usuario del sitio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if envFile != "" && fileExists(envFile) {
				_ = godotenv.Load(envFile)
			}
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", cfgPath, "ruta a config.yaml (env CONFIG_PATH)")
	root.PersistentFlags().StringVar(&envFile, "env-file", envFile, "ruta a .env (si existe, se carga)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			initLogger(cfg)
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, version)
			if err != nil {
				return err
			}
			defer a.Close()
			return a.Run(ctx)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones PostgreSQL embebidas",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			initLogger(cfg)
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate: storage.driver es %q, se requiere postgres", cfg.Storage.Driver)
			}
			ctx := cmd.Context()
			st, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{})
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.RunMigrations(ctx); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}

	hashCmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Imprime el hash argon2id de un password (lee stdin si no se pasa)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var plain string
			if len(args) == 1 {
				plain = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("hash-password: no se leyó ningún password")
				}
				plain = strings.TrimRight(line, "\r\n")
			}
			h, err := password.Hash(password.Default, plain)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	encodeCmd := &cobra.Command{
		Use:   "encode-return <destination>",
		Short: "Codifica un destino para el parámetro return (base64)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), redirect.Encode(args[0]))
			return nil
		},
	}

	root.AddCommand(serveCmd, migrateCmd, hashCmd, encodeCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if !fileExists(path) {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) {
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "sitegate",
		Version:     version,
	})
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
