package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/relayadmin/internal/aliases"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/auth"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/config"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/database"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/logging"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/server"
	"github.com/MarcoPoloResearchLab/relayadmin/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	keyAdminUsername = "admin.username"
	keyAdminPassword = "admin.password"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relayadmin-api",
		Short: "Mail relay admin console backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newCreateAdminCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().Int("session-ttl-minutes", defaults.GetInt("session.ttl_minutes"), "Session lifetime in minutes")
	cmd.PersistentFlags().Bool("secure-cookie", defaults.GetBool("session.secure_cookie"), "Mark the session cookie Secure")
	cmd.PersistentFlags().StringSlice("allowed-origins", nil, "Origins allowed to call the API with credentials")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "session.signing_secret", "signing-secret")
	bindFlag(cmd, "session.ttl_minutes", "session-ttl-minutes")
	bindFlag(cmd, "session.secure_cookie", "secure-cookie")
	bindFlag(cmd, "cors.allowed_origins", "allowed-origins")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newCreateAdminCommand seeds or resets an administrator so a fresh install
// can be signed into.
func newCreateAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator, or promote and reset an existing account",
		Long:  "Create an administrator, or promote and reset an existing account.\n" +
			"Only the database, bcrypt and log settings are read; no signing secret is needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateAdmin(cmd.Context())
		},
	}
	cmd.Flags().String("username", "", "Administrator username")
	cmd.Flags().String("password", "", "Administrator password (or RELAYADMIN_ADMIN_PASSWORD)")
	if err := viper.BindPFlag(keyAdminUsername, cmd.Flags().Lookup("username")); err != nil {
		panic(err)
	}
	if err := viper.BindPFlag(keyAdminPassword, cmd.Flags().Lookup("password")); err != nil {
		panic(err)
	}
	return cmd
}

type app struct {
	config config.AppConfig
	logger *zap.Logger
	db     *gorm.DB
	hasher *auth.PasswordHasher
}

func openApp(load func(*viper.Viper) (config.AppConfig, error)) (*app, func(), error) {
	appConfig, err := load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}

	hasher, err := auth.NewPasswordHasher(appConfig.BcryptCost)
	if err != nil {
		_ = sqlDB.Close()
		_ = logger.Sync()
		return nil, nil, err
	}

	cleanup := func() {
		_ = sqlDB.Close()
		_ = logger.Sync()
	}
	return &app{config: appConfig, logger: logger, db: db, hasher: hasher}, cleanup, nil
}

func (r *app) userService() (*users.Service, error) {
	return users.NewService(users.ServiceConfig{
		Database: r.db,
		Hasher:   r.hasher,
		Logger:   r.logger,
		Clock:    time.Now,
	})
}

func runCreateAdmin(ctx context.Context) error {
	rt, cleanup, err := openApp(config.LoadMaintenance)
	if err != nil {
		return err
	}
	defer cleanup()

	username := strings.TrimSpace(viper.GetString(keyAdminUsername))
	password := viper.GetString(keyAdminPassword)
	if username == "" || password == "" {
		return errors.New("create-admin: --username and --password are required")
	}

	userService, err := rt.userService()
	if err != nil {
		return err
	}
	user, err := userService.Bootstrap(ctx, username, password)
	if err != nil {
		rt.logger.Error("failed to create administrator", zap.Error(err))
		return err
	}
	rt.logger.Info("administrator ready", zap.String("username", user.Username))
	return nil
}

func runServer(ctx context.Context) error {
	rt, cleanup, err := openApp(config.Load)
	if err != nil {
		return err
	}
	defer cleanup()
	appConfig, logger := rt.config, rt.logger

	userService, err := rt.userService()
	if err != nil {
		return err
	}
	aliasService, err := aliases.NewService(aliases.ServiceConfig{
		Database: rt.db,
		Logger:   logger,
		Clock:    time.Now,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		TokenTTL:      appConfig.SessionTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		CookieName:    appConfig.SessionCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Users:            userService,
		Aliases:          aliasService,
		SessionIssuer:    tokenIssuer,
		SessionValidator: sessionValidator,
		AllowedOrigins:   appConfig.AllowedOrigins,
		SecureCookie:     appConfig.SecureCookie,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		logger.Info("server stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
