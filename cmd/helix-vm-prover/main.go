package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	helixmipsvm "github.com/helix-zk/helix-mips-vm/pkg/helix-mips-vm"
)

const version = "0.1.0"

// manifest is the optional TOML run description. Every field is optional;
// set fields override the environment, and flags override both.
type manifest struct {
	Args           string `toml:"args"`
	SegSize        int    `toml:"seg_size"`
	Output         string `toml:"output"`
	PrecompilePath string `toml:"precompile_path"`
	Workers        int    `toml:"workers"`
	Hash           string `toml:"hash"`
	LogLevel       string `toml:"log_level"`
}

var (
	manifestPath string
	argsFlag     string
	segSizeFlag  int
	outputFlag   string
	artifactFlag string
	workersFlag  int
	hashFlag     string
	logFlag      string
	emulateFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   "helix-vm-prover",
	Short: "Execute and prove MIPS32 guest programs in segments",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.HelpFunc()(cmd, args)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <guest-binary>",
	Short: "Execute a guest binary, prove every segment and aggregate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}

		var opts []helixmipsvm.PipelineOption
		if emulateFlag {
			opts = append(opts, helixmipsvm.WithEmulatedPrecompiles())
		}
		pipeline, err := helixmipsvm.NewPipeline(cfg, opts...)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := pipeline.Run(ctx, helixmipsvm.Guest{Path: args[0]})
		if summary != nil {
			printSummary(summary)
		}
		return err
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <guest-binary> <aggregate-proof>",
	Short: "Verify an aggregate proof against the guest binary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := buildConfig(cmd)
		if err != nil {
			return err
		}
		if err := helixmipsvm.VerifyAggregateFile(args[1], helixmipsvm.Guest{Path: args[0]}, cfg.CommitmentHash); err != nil {
			return err
		}
		fmt.Println("aggregate proof OK")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the prover version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("helix-vm-prover %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&manifestPath, "manifest", "", "TOML run manifest")
	rootCmd.PersistentFlags().StringVar(&argsFlag, "args", "", "guest argument buffer")
	rootCmd.PersistentFlags().IntVar(&segSizeFlag, "seg-size", 0, "maximum steps per segment")
	rootCmd.PersistentFlags().StringVar(&outputFlag, "output", "", "proof artifact output directory")
	rootCmd.PersistentFlags().StringVar(&artifactFlag, "precompile-path", "", "compiled precompile circuit artifact")
	rootCmd.PersistentFlags().IntVar(&workersFlag, "workers", 0, "prover worker pool bound (0 = GOMAXPROCS)")
	rootCmd.PersistentFlags().StringVar(&hashFlag, "hash", "", "state commitment hash (keccak256, sha256 or mimc)")
	rootCmd.PersistentFlags().StringVar(&logFlag, "log-level", "", "log level (trace, debug, info, warn, error)")
	runCmd.Flags().BoolVar(&emulateFlag, "emulate-precompiles", false, "run precompile syscalls through plain emulation")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(versionCmd)
}

// buildConfig layers the three configuration sources: environment, then
// manifest, then explicit flags.
func buildConfig(cmd *cobra.Command) (*helixmipsvm.Config, error) {
	cfg, err := helixmipsvm.ConfigFromEnv()
	if err != nil {
		return nil, err
	}

	if manifestPath != "" {
		var m manifest
		if _, err := toml.DecodeFile(manifestPath, &m); err != nil {
			return nil, fmt.Errorf("reading manifest %s: %w", manifestPath, err)
		}
		if m.Args != "" {
			cfg.Args = []byte(m.Args)
		}
		if m.SegSize != 0 {
			cfg.SegSize = m.SegSize
		}
		if m.Output != "" {
			cfg.SegOutput = m.Output
		}
		if m.PrecompilePath != "" {
			cfg.PrecompilePath = m.PrecompilePath
		}
		if m.Workers != 0 {
			cfg.Workers = m.Workers
		}
		if m.Hash != "" {
			cfg.CommitmentHash = m.Hash
		}
		if m.LogLevel != "" {
			cfg.LogLevel = m.LogLevel
		}
	}

	if cmd.Flags().Changed("args") {
		cfg.Args = []byte(argsFlag)
	}
	if segSizeFlag > 0 {
		cfg.SegSize = segSizeFlag
	}
	if outputFlag != "" {
		cfg.SegOutput = outputFlag
	}
	if artifactFlag != "" {
		cfg.PrecompilePath = artifactFlag
	}
	if workersFlag > 0 {
		cfg.Workers = workersFlag
	}
	if hashFlag != "" {
		cfg.CommitmentHash = hashFlag
	}
	if logFlag != "" {
		cfg.LogLevel = logFlag
	}

	return cfg, nil
}

func printSummary(s *helixmipsvm.Summary) {
	if s.Faulted {
		fmt.Printf("guest faulted at step %d: %s\n", s.FaultStep, s.FaultReason)
	} else if s.Halted {
		fmt.Printf("guest exited with code %d\n", s.ExitCode)
	}
	fmt.Printf("segments: %d  steps: %d  wall time: %s\n", s.SegmentCount, s.TotalSteps, s.WallTime)
	if s.AggregatePath != "" {
		fmt.Printf("aggregate proof: %s\n", s.AggregatePath)
	}
	if len(s.PublicValues) > 0 {
		fmt.Printf("public values: %x\n", s.PublicValues)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
