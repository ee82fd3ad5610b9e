package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/mirrorbox/internal/config"
	"github.com/openmined/mirrorbox/internal/daemon"
	"github.com/openmined/mirrorbox/internal/utils"
	"github.com/openmined/mirrorbox/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	logLevel       = new(slog.LevelVar)
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "mirrorbox",
	Short:   "Keep a directory and its encrypted mirror in sync",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		applyLogLevel(cfg)

		// all good now, show header
		cmd.SilenceUsage = true
		showHeader(cfg)

		defer slog.Info("Bye!")
		return daemon.New(cfg).Run(cmd.Context())
	},
}

func init() {
	addDaemonFlags(rootCmd)
	addSharedFlags(rootCmd)
}

func addDaemonFlags(cmd *cobra.Command) {
	defaults := config.Default()

	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("source", "s", defaults.SourceDir, "Directory holding the plain files")
	cmd.Flags().StringP("target", "t", defaults.TargetDir, "Directory holding the encoded mirror")
	cmd.Flags().Int("concurrency", defaults.Concurrency, "Maximum number of transfers running at once")
}

// addSharedFlags adds the flags every subcommand understands.
func addSharedFlags(cmd *cobra.Command) {
	defaults := config.Default()

	cmd.PersistentFlags().String("state", defaults.StatePath, "State file")
	cmd.PersistentFlags().String("key-file", defaults.KeyFile, "Secret key file")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "MirrorBox config file")
}

func main() {
	logFile := config.DefaultLogFilePath

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	logInterceptor := utils.NewLogInterceptor(file)
	defer logInterceptor.Close()

	slog.SetDefault(newLogger(logInterceptor))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("mirrorbox exited", "error", err)
		stop()
		logInterceptor.Close()
		file.Close()
		os.Exit(1)
	}
}

// newLogger logs to the console and, without timestamps (the interceptor adds
// them), to the log file.
func newLogger(logFile *utils.LogInterceptor) *slog.Logger {
	logLevel.Set(slog.LevelInfo)

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(logFile, &slog.HandlerOptions{
		Level: logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	return slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler))
}

func applyLogLevel(cfg *config.Config) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return
	}
	logLevel.Set(level)
}

// loadConfig merges, highest priority first: flags, MIRRORBOX_* environment
// (including a .env file in the working directory), the config file and
// built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, config.Default())

	// config path
	if flag := cmd.Flags().Lookup("config"); flag != nil && flag.Changed {
		v.SetConfigFile(flag.Value.String())
	} else {
		v.AddConfigPath(filepath.Join(home, ".mirrorbox"))
		v.AddConfigPath(filepath.Join(home, ".config", "mirrorbox"))
		v.SetConfigName(configFileName)
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	for key, name := range map[string]string{
		"source_dir":  "source",
		"target_dir":  "target",
		"concurrency": "concurrency",
		"state_path":  "state",
		"key_file":    "key-file",
	} {
		if flag := cmd.Flags().Lookup(name); flag != nil {
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix("MIRRORBOX")
	v.AutomaticEnv()

	return &config.Config{
		SourceDir:          v.GetString("source_dir"),
		TargetDir:          v.GetString("target_dir"),
		StatePath:          v.GetString("state_path"),
		StateBackend:       v.GetString("state_backend"),
		KeyFile:            v.GetString("key_file"),
		Encrypt:            v.GetBool("encrypt"),
		Concurrency:        v.GetInt("concurrency"),
		WatchDepth:         v.GetInt("watch_depth"),
		StabilityWindow:    v.GetDuration("stability_window"),
		DebounceDelay:      v.GetDuration("debounce_delay"),
		FirstRecheckDelay:  v.GetDuration("first_recheck_delay"),
		SecondRecheckDelay: v.GetDuration("second_recheck_delay"),
		Ignore:             v.GetStringSlice("ignore"),
		LogLevel:           v.GetString("log_level"),
		Path:               v.ConfigFileUsed(),
	}, nil
}

func setDefaults(v *viper.Viper, cfg *config.Config) {
	v.SetDefault("source_dir", cfg.SourceDir)
	v.SetDefault("target_dir", cfg.TargetDir)
	v.SetDefault("state_path", cfg.StatePath)
	v.SetDefault("state_backend", cfg.StateBackend)
	v.SetDefault("key_file", cfg.KeyFile)
	v.SetDefault("encrypt", cfg.Encrypt)
	v.SetDefault("concurrency", cfg.Concurrency)
	v.SetDefault("watch_depth", cfg.WatchDepth)
	v.SetDefault("stability_window", cfg.StabilityWindow)
	v.SetDefault("debounce_delay", cfg.DebounceDelay)
	v.SetDefault("first_recheck_delay", cfg.FirstRecheckDelay)
	v.SetDefault("second_recheck_delay", cfg.SecondRecheckDelay)
	v.SetDefault("ignore", []string{})
	v.SetDefault("log_level", cfg.LogLevel)
}

func showHeader(cfg *config.Config) {
	color.New(color.FgHiCyan, color.Bold).Println(version.DetailedWithApp())
	fmt.Printf("%s %s\n%s %s\n", green("source"), cfg.SourceDir, cyan("target"), cfg.TargetDir)
	if !cfg.Encrypt {
		fmt.Println(red("encryption disabled"))
	}
}
