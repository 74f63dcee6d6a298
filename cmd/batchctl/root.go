package main

import (
	"os"
	"time"

	"github.com/dailyyoga/contractflow/config"
	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/orchestrator"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app is the state shared by every subcommand.
type app struct {
	cfg *config.Config
	log logger.Logger
	orc *orchestrator.Orchestrator

	baseURL      string
	token        string
	logLevel     string
	pollInterval time.Duration
	pollTimeout  time.Duration
	maxPolls     int
	retries      int
	brokers      []string
	topic        string
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "batchctl",
		Short:         "Submit contracts for batch analysis and follow the job",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.baseURL, "base-url", "", "analysis service base URL")
	flags.StringVar(&a.token, "token", "", "static bearer token")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.DurationVar(&a.pollInterval, "poll-interval", 0, "time between two status polls")
	flags.DurationVar(&a.pollTimeout, "poll-timeout", 0, "give up on a job after this long")
	flags.IntVar(&a.maxPolls, "max-polls", 0, "give up on a job after this many polls")
	flags.IntVar(&a.retries, "retries", 0, "attempts per service call")
	flags.StringSliceVar(&a.brokers, "kafka-brokers", nil, "publish finished jobs to these Kafka brokers")
	flags.StringVar(&a.topic, "kafka-topic", "", "topic for finished jobs")

	root.AddCommand(newSubmitCmd(a), newStatusCmd(a), newAnalyzeCmd(a))
	return root
}

// setup loads the environment, layers the flags that were set on top and
// builds the orchestrator.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// command output owns stdout
	if _, ok := os.LookupEnv(config.Prefix + "LOG_OUTPUT_PATHS"); !ok {
		cfg.Logger.OutputPaths = []string{"stderr"}
	}
	if _, ok := os.LookupEnv(config.Prefix + "LOG_ENCODING"); !ok {
		cfg.Logger.Encoding = "console"
	}

	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.API.BaseURL = a.baseURL
	}
	if flags.Changed("token") {
		cfg.API.Token = a.token
	}
	if flags.Changed("log-level") {
		cfg.Logger.Level = a.logLevel
	}
	if flags.Changed("poll-interval") {
		cfg.Batch.PollInterval = a.pollInterval
	}
	if flags.Changed("poll-timeout") {
		cfg.Batch.PollTimeout = a.pollTimeout
	}
	if flags.Changed("max-polls") {
		cfg.Batch.MaxPolls = a.maxPolls
	}
	if flags.Changed("retries") {
		cfg.Retry.MaxAttempts = a.retries
	}
	if flags.Changed("kafka-brokers") {
		cfg.Kafka.Brokers = a.brokers
	}
	if flags.Changed("kafka-topic") {
		cfg.Kafka.Topic = a.topic
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(&cfg.Logger)
	if err != nil {
		return err
	}
	orc, err := orchestrator.New(cmd.Context(), log, cfg)
	if err != nil {
		return err
	}
	a.cfg, a.log, a.orc = cfg, log, orc
	a.log.Debug("batchctl configured",
		zap.String("command", cmd.Name()),
		zap.String("base_url", cfg.API.BaseURL),
	)
	return nil
}

// teardown releases what setup built. Subcommands defer it.
func (a *app) teardown() {
	if a.orc != nil {
		a.orc.Close()
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
