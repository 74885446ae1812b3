package serve

import (
	"context"
	"github.com/joho/godotenv"
	"github.com/miguelmartens/sidekv/api"
	cmdUtil "github.com/miguelmartens/sidekv/cmd/util"
	"github.com/miguelmartens/sidekv/lib/config"
	"github.com/miguelmartens/sidekv/lib/logging"
	"github.com/miguelmartens/sidekv/lib/selector"
	"github.com/miguelmartens/sidekv/lib/store"
	"github.com/miguelmartens/sidekv/lib/store/sidecar"
	"github.com/miguelmartens/sidekv/lib/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

var (
	serveCmdConfig = &config.Config{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the sidekv state service",
		Long:    `Start the sidekv state service with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is SIDEKV_<flag> (e.g. SIDEKV_STORE_NAME=statestore)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the HTTP API will listen (e.g. 0.0.0.0:8080)"))

	key = "sidecar-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Base URL of the local sidecar agent (e.g. http://127.0.0.1:3500). When empty the service runs with the in-memory backend only"))

	key = "store-name"
	ServeCmd.PersistentFlags().String(key, "statestore", cmdUtil.WrapString("Name of the logical state store all operations are scoped to"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("Timeout in seconds applied to every single request against the sidecar agent"))

	key = "probe-interval"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("Interval in seconds between periodic sidecar reachability probes"))

	key = "startup-wait"
	ServeCmd.PersistentFlags().Int(key, 15, cmdUtil.WrapString("How long to wait in seconds for the sidecar to come up at startup before falling back to the in-memory backend"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.SidecarEndpoint = viper.GetString("sidecar-endpoint")
	serveCmdConfig.StoreName = viper.GetString("store-name")
	serveCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	serveCmdConfig.ProbeIntervalSecond = viper.GetInt("probe-interval")
	serveCmdConfig.StartupWaitSecond = viper.GetInt("startup-wait")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// validate the log level up front, everything else is checked in run
	if _, err := logging.ParseLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}

	return nil
}

// run starts the state service
func run(_ *cobra.Command, _ []string) error {
	level, err := logging.ParseLevel(serveCmdConfig.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(os.Stderr, level)

	logger.Info("sidekv starting")
	logger.Info(serveCmdConfig.String())

	// Create the sidecar backend if one is configured. A misconfigured
	// endpoint is not fatal: the service starts in in-memory-only mode
	// since the fallback backend is always available.
	var sidecarBackend store.Backend
	if serveCmdConfig.HasSidecar() {
		sidecarBackend, err = sidecar.NewSidecarBackend(sidecar.Config{
			Endpoint:  serveCmdConfig.SidecarEndpoint,
			StoreName: serveCmdConfig.StoreName,
			Timeout:   serveCmdConfig.Timeout(),
		})
		if err != nil {
			logger.Warn("invalid sidecar configuration, running with in-memory backend only", "err", err)
			sidecarBackend = nil
		}
	}

	// Stop on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sel := selector.New(selector.Options{
		Sidecar:       sidecarBackend,
		ProbeInterval: serveCmdConfig.ProbeInterval(),
		StartupWait:   serveCmdConfig.StartupWait(),
		Logger:        logger,
		Recorder:      telemetry.NewMetricsRecorder(),
	})
	sel.Start(ctx)
	defer sel.Close()

	logger.Info("state backend selected", "backend", sel.Backend().String())

	return api.NewServer(sel, logger).Serve(ctx, serveCmdConfig.Endpoint)
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("sidekv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
