package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zegnqin/seatunnel/internal/config"
	"github.com/zegnqin/seatunnel/tracing"
)

var (
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "icesink",
	Short: "Write typed change rows into Iceberg tables",
	Long: `icesink writes insert, update and delete rows into Iceberg tables as Parquet or
ORC data files plus equality and position delete files, and commits them as
snapshots through a Hadoop, REST or Glue catalog.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogger()
	},
	SilenceUsage: true,
}

// Execute is called by main.go and is the entry point for the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: ./icesink.yaml)")
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file with ICESINK_* and AWS_* variables; existing env wins")
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.String("catalog-type", "hadoop", "catalog type: hadoop, rest, glue")
	pf.String("warehouse", "", "warehouse location (local path or s3:// URI)")
	pf.String("uri", "", "catalog URI (rest catalogs)")
	pf.String("namespace", "", "table namespace, dot separated")
	pf.String("table", "", "table name")

	mustBindPFlag("log_level", pf.Lookup("log-level"))
	mustBindPFlag("log_format", pf.Lookup("log-format"))
	mustBindPFlag("sink.catalog_type", pf.Lookup("catalog-type"))
	mustBindPFlag("sink.warehouse", pf.Lookup("warehouse"))
	mustBindPFlag("sink.uri", pf.Lookup("uri"))
	mustBindPFlag("sink.namespace", pf.Lookup("namespace"))
	mustBindPFlag("sink.table", pf.Lookup("table"))

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Warning: could not read env file %s: %v\n", envFile, err)
		}
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("icesink")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("ICESINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if cfgFile != "" {
				fmt.Fprintf(os.Stderr, "Warning: could not read config file: %v\n", err)
			}
		}
	}
}

// loadConfig merges defaults, the config file, env and flags, then
// validates the result.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setupLogger() error {
	level := viper.GetString("log_level")
	format := viper.GetString("log_format")

	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return fmt.Errorf("unknown log level: %q (expected debug, info, warn, error)", level)
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format: %q (expected text, json)", format)
	}

	slog.SetDefault(slog.New(tracing.NewTracingHandler(handler)))
	return nil
}

func mustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("viper.BindPFlag(%q): %v", key, err))
	}
}
