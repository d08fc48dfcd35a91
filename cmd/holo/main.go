// Command holo is the conductor process and local CLI: it brings up a
// TOML-configured set of DNA instances (holo run), packages/unpacks DNA
// source directories into the single-file package format (holo dna),
// and inspects a configuration's agents and chains without needing a
// second admin wire protocol (holo agent status, holo chain show).
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/holo/pkg/conductor"
	"github.com/cuemby/holo/pkg/dna"
	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

// run executes the root command and maps the outcome to spec.md §6's
// exit codes: 0 success, 1 generic failure, 2 configuration error, 101
// a recovered panic.
func run() (code int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			code = 101
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, holoerr.ErrConfig) {
			return 2
		}
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:     "holo",
	Short:   "holo - an agent-centric distributed runtime conductor",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"holo version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(dnaCmd)
	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(chainCmd)
}

// loadConductor parses the named TOML config, applies its logger
// section to the global logger, and starts every configured instance.
// Callers are responsible for calling Stop on the returned Conductor.
func loadConductor(configPath string) (*conductor.Conductor, error) {
	cfg, err := conductor.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg.InitLogger()
	c := conductor.New(cfg)
	if err := c.Start(); err != nil {
		return nil, err
	}
	return c, nil
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a conductor process from a TOML configuration",
	Long: `Run loads a conductor configuration, brings up every configured
instance (chain, DHT slice, WASM engine, validation and network state),
joins instances sharing a DNA space onto a local mesh, and blocks until
interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		c, err := loadConductor(configPath)
		if err != nil {
			return err
		}

		collector := metrics.NewCollector(c)
		collector.Start()

		metrics.RegisterComponent("chain", true, "bootstrapped")
		metrics.RegisterComponent("dht", true, "ready")
		metrics.RegisterComponent("network", true, "ready")

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.Handle("/health", metrics.HealthHandler())
			mux.Handle("/ready", metrics.ReadyHandler())
			mux.Handle("/live", metrics.LivenessHandler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
			}
		}()

		fmt.Printf("holo conductor running (config: %s)\n", configPath)
		for _, inst := range c.Instances() {
			fmt.Printf("  instance %q: agent=%s dna=%s\n", inst.ID(), inst.Agent(), inst.DNA().Address())
		}
		fmt.Printf("metrics/health endpoints: http://%s/{metrics,health,ready,live}\n", metricsAddr)
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		collector.Stop()
		return c.Stop()
	},
}

func init() {
	runCmd.Flags().String("config", "holo.toml", "Path to the conductor TOML configuration")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP endpoints")
}

var dnaCmd = &cobra.Command{
	Use:   "dna",
	Short: "Pack and unpack DNA source directories",
}

var dnaPackCmd = &cobra.Command{
	Use:   "pack <source-dir>",
	Short: "Pack a DNA source directory into a single package file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("output")
		data, err := dna.Pack(args[0])
		if err != nil {
			return err
		}
		if out == "" {
			out = args[0] + ".dna.json"
		}
		if err := os.WriteFile(out, data, 0644); err != nil {
			return fmt.Errorf("%w: write package: %v", holoerr.ErrIO, err)
		}
		fmt.Printf("Packed %s -> %s (%d bytes)\n", args[0], out, len(data))
		return nil
	},
}

var dnaUnpackCmd = &cobra.Command{
	Use:   "unpack <package-file> <dest-dir>",
	Short: "Unpack a DNA package file into a source directory tree",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("%w: read package: %v", holoerr.ErrIO, err)
		}
		if err := dna.Unpack(data, args[1]); err != nil {
			return err
		}
		fmt.Printf("Unpacked %s -> %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	dnaPackCmd.Flags().String("output", "", "Output package file path (default: <source-dir>.dna.json)")
	dnaCmd.AddCommand(dnaPackCmd)
	dnaCmd.AddCommand(dnaUnpackCmd)
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Inspect conductor agents and instances",
}

var agentStatusCmd = &cobra.Command{
	Use:   "status <instance-id>",
	Short: "Show an instance's agent identity, chain position and counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		c, err := loadConductor(configPath)
		if err != nil {
			return err
		}
		defer c.Stop()

		inst, ok := c.Instance(args[0])
		if !ok {
			return fmt.Errorf("%w: no instance %q in %s", holoerr.ErrConfig, args[0], configPath)
		}
		held, err := inst.HeldCount()
		if err != nil {
			return err
		}
		fmt.Printf("instance:  %s\n", inst.ID())
		fmt.Printf("agent:     %s\n", inst.Agent())
		fmt.Printf("dna:       %s (%s)\n", inst.DNA().Name, inst.DNA().Address())
		fmt.Printf("chain top: %s\n", inst.Chain().Top())
		fmt.Printf("held:      %d aspects\n", held)
		fmt.Printf("peers:     %d\n", inst.PeerCount())
		return nil
	},
}

func init() {
	agentStatusCmd.Flags().String("config", "holo.toml", "Path to the conductor TOML configuration")
	agentCmd.AddCommand(agentStatusCmd)
}

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Inspect an instance's source chain",
}

var chainShowCmd = &cobra.Command{
	Use:   "show <instance-id>",
	Short: "List an instance's chain headers from genesis to top",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		c, err := loadConductor(configPath)
		if err != nil {
			return err
		}
		defer c.Stop()

		inst, ok := c.Instance(args[0])
		if !ok {
			return fmt.Errorf("%w: no instance %q in %s", holoerr.ErrConfig, args[0], configPath)
		}

		ch := inst.Chain()
		it := ch.Iter(ch.Top())
		position := 0
		var headers []string
		for {
			h, ok, err := it.Next()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			headers = append(headers, fmt.Sprintf("%s  %-12s  %s", h.Timestamp.Format("2006-01-02T15:04:05Z"), h.EntryType, h.EntryAddress))
			position++
		}
		for i := len(headers) - 1; i >= 0; i-- {
			fmt.Println(headers[i])
		}
		fmt.Printf("\n%d header(s)\n", position)
		return nil
	},
}

func init() {
	chainShowCmd.Flags().String("config", "holo.toml", "Path to the conductor TOML configuration")
	chainCmd.AddCommand(chainShowCmd)
}
