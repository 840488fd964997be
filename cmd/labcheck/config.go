package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/teoivancevic/PPJ-fer-unizg/internal/domain/harness"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/infra/browser"
	"github.com/teoivancevic/PPJ-fer-unizg/internal/runtime/docker"
)

const (
	defaultSourceRoot   = "."
	defaultFixtureRoot  = "test"
	defaultRuntime      = "local"
	defaultCompiler     = "g++"
	defaultDockerImage  = "gcc:13"
	defaultExecTimeout  = 10 * time.Second
	defaultBuildTimeout = 2 * time.Minute
	defaultSimTimeout   = 10 * time.Second
	defaultSimPoll      = 100 * time.Millisecond

	defaultKafkaBrokers = "kafka:9092"
	defaultKafkaTopic   = "labcheck-requests"
	defaultKafkaGroupID = "labcheck"
)

type appConfig struct {
	Stages      []harness.Stage
	SourceRoot  string
	FixtureRoot string
	WorkDir     string
	Runtime     string
	Compiler    string

	ExecTimeout  time.Duration
	BuildTimeout time.Duration
	MemoryLimit  int64
	SimTimeout   time.Duration
	SimPoll      time.Duration

	Offset        int
	Verbose       bool
	CaptureStderr bool

	SimulatorURL string
	Headless     bool
	ChromePath   string
	ChromeRemote string
	DockerImage  string

	Listen       bool
	KafkaBrokers []string
	RequestTopic string
	ResultsTopic string
	GroupID      string
	MaxRuns      int
}

// parseFlags reads the command line; every flag defaults to its environment variable.
func parseFlags(args []string, output io.Writer) (appConfig, error) {
	fs := flag.NewFlagSet("labcheck", flag.ContinueOnError)
	fs.SetOutput(output)

	var cfg appConfig
	stages := fs.String("stages", os.Getenv("LABCHECK_STAGES"), "comma separated stages to run (lexical, syntax, semantic, codegen)")
	fs.StringVar(&cfg.SourceRoot, "src", envOrDefault("LABCHECK_SRC", defaultSourceRoot), "directory holding the stage implementation sources")
	fs.StringVar(&cfg.FixtureRoot, "fixtures", envOrDefault("LABCHECK_FIXTURES", defaultFixtureRoot), "directory holding the test fixtures")
	fs.StringVar(&cfg.WorkDir, "workdir", os.Getenv("LABCHECK_WORKDIR"), "scratch directory (default: a temporary directory per run)")
	fs.StringVar(&cfg.Runtime, "runtime", envOrDefault("LABCHECK_RUNTIME", defaultRuntime), "where to build and run: local or docker")
	fs.StringVar(&cfg.Compiler, "compiler", envOrDefault("LABCHECK_COMPILER", defaultCompiler), "native compiler driver")

	fs.DurationVar(&cfg.ExecTimeout, "exec-timeout", parseDuration(os.Getenv("LABCHECK_EXEC_TIMEOUT"), defaultExecTimeout), "time limit per analyzer run")
	fs.DurationVar(&cfg.BuildTimeout, "build-timeout", parseDuration(os.Getenv("LABCHECK_BUILD_TIMEOUT"), defaultBuildTimeout), "time limit per build")
	fs.Int64Var(&cfg.MemoryLimit, "memory-limit", parseBytes(os.Getenv("DOCKER_MEMORY_LIMIT")), "container memory limit in bytes (docker runtime only)")
	fs.DurationVar(&cfg.SimTimeout, "sim-timeout", parseDuration(os.Getenv("LABCHECK_SIM_TIMEOUT"), defaultSimTimeout), "how long a simulated program may run")
	fs.DurationVar(&cfg.SimPoll, "sim-poll", parseDuration(os.Getenv("LABCHECK_SIM_POLL"), defaultSimPoll), "simulator busy-indicator poll interval")

	fs.IntVar(&cfg.Offset, "offset", parseNonNegative(os.Getenv("LABCHECK_OFFSET")), "skip the first N cases")
	fs.BoolVar(&cfg.Verbose, "v", parseBool(os.Getenv("LABCHECK_VERBOSE"), false), "print every step")
	fs.BoolVar(&cfg.CaptureStderr, "stderr", parseBool(os.Getenv("LABCHECK_STDERR"), false), "capture and print analyzer stderr")

	fs.StringVar(&cfg.SimulatorURL, "simulator-url", envOrDefault("SIMULATOR_URL", browser.DefaultURL), "FRISCjs page URL")
	fs.BoolVar(&cfg.Headless, "headless", parseBool(os.Getenv("SIMULATOR_HEADLESS"), true), "run Chrome without a window")
	fs.StringVar(&cfg.ChromePath, "chrome", os.Getenv("CHROME_PATH"), "Chrome executable")
	fs.StringVar(&cfg.ChromeRemote, "chrome-remote", os.Getenv("CHROME_REMOTE_URL"), "DevTools websocket URL of a running Chrome")
	fs.StringVar(&cfg.DockerImage, "docker-image", envOrDefault("DOCKER_IMAGE", defaultDockerImage), "compiler image for the docker runtime")

	fs.BoolVar(&cfg.Listen, "listen", false, "consume run requests from Kafka instead of running -stages")
	brokers := fs.String("brokers", envOrDefault("KAFKA_BROKERS", defaultKafkaBrokers), "comma separated Kafka brokers")
	fs.StringVar(&cfg.RequestTopic, "topic", envOrDefault("KAFKA_TOPIC", defaultKafkaTopic), "Kafka topic carrying run requests")
	fs.StringVar(&cfg.ResultsTopic, "results-topic", os.Getenv("KAFKA_RESULTS_TOPIC"), "Kafka topic receiving run summaries (disabled when empty)")
	fs.StringVar(&cfg.GroupID, "group", envOrDefault("KAFKA_GROUP_ID", defaultKafkaGroupID), "Kafka consumer group")
	fs.IntVar(&cfg.MaxRuns, "max-runs", parseNonNegative(os.Getenv("RUN_EXPECTED")), "stop listening after N requests (0: until a done message)")

	if err := fs.Parse(args); err != nil {
		return appConfig{}, err
	}
	if fs.NArg() > 0 {
		return appConfig{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg.KafkaBrokers = parseBrokerList(*brokers)
	if !cfg.Listen {
		parsed, err := harness.ParseStages(*stages)
		if err != nil {
			return appConfig{}, err
		}
		cfg.Stages = parsed
	}
	if cfg.Runtime != "local" && cfg.Runtime != "docker" {
		return appConfig{}, fmt.Errorf("unknown runtime %q (want local or docker)", cfg.Runtime)
	}
	if cfg.Offset < 0 {
		return appConfig{}, fmt.Errorf("offset must not be negative")
	}
	return cfg, nil
}

// runContext is the base context every requested stage run starts from.
func (c appConfig) runContext() harness.RunContext {
	rc := harness.NewRunContext()
	rc.SourceRoot = c.SourceRoot
	rc.FixtureRoot = c.FixtureRoot
	rc.WorkDir = c.WorkDir
	rc.BuildLimits = harness.RunLimits{TimeLimit: c.BuildTimeout, MemoryLimitBytes: c.MemoryLimit}
	rc.ExecLimits = harness.RunLimits{TimeLimit: c.ExecTimeout, MemoryLimitBytes: c.MemoryLimit}
	rc.SimMaxWait = c.SimTimeout
	rc.SimPollInterval = c.SimPoll
	rc.Offset = c.Offset
	rc.CaptureStderr = c.CaptureStderr
	rc.Verbose = c.Verbose
	return rc
}

func (c appConfig) dockerConfig() docker.Config {
	return docker.Config{
		Image:    c.DockerImage,
		Compiler: c.Compiler,
		DefaultLimits: harness.RunLimits{
			MemoryLimitBytes: c.MemoryLimit,
		},
	}
}

func (c appConfig) browserConfig() browser.Config {
	return browser.Config{
		URL:       c.SimulatorURL,
		Headless:  c.Headless,
		ExecPath:  c.ChromePath,
		RemoteURL: c.ChromeRemote,
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseBrokerList(raw string) []string {
	fields := strings.Split(raw, ",")
	brokers := make([]string, 0, len(fields))
	for _, field := range fields {
		if trimmed := strings.TrimSpace(field); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}

func parseNonNegative(raw string) int {
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

func parseBool(raw string, fallback bool) bool {
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func parseBytes(raw string) int64 {
	if raw == "" {
		return 0
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}
