package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agenttrust/agenttrust/internal/logstream"
	"github.com/agenttrust/agenttrust/internal/witness"
	"github.com/agenttrust/agenttrust/internal/wsconfig"
)

var witnessCmd = &cobra.Command{
	Use:   "witness",
	Short: "Run or inspect the witness daemon",
}

var witnessStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the witness daemon in the foreground until interrupted",
	Long: `Starts the file, process, and network monitors and appends every
observation to the witness stream until the process receives SIGINT or
SIGTERM.`,
	RunE: runWitnessStart,
}

var witnessDoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Sample the three monitors for a short window and report health",
	Long: `Starts the witness daemon, waits a few polling intervals, stops it, and
reports per-source event counts. A source with zero events after the
sampling window is flagged as possibly stalled — there is no persistent
daemon to attach to, so this is a point-in-time health check, not a
live status query.`,
	RunE: runWitnessDoctor,
}

func init() {
	witnessCmd.AddCommand(witnessStartCmd)
	witnessCmd.AddCommand(witnessDoctorCmd)
}

func buildWitnessDaemon(l wsconfig.Layout, cfg *wsconfig.Config) (*witness.Daemon, *logstream.Stream[*logstream.Witness], error) {
	stream, err := logstream.Open[*logstream.Witness](l.Witness, wsconfig.WitnessKind)
	if err != nil {
		return nil, nil, fmt.Errorf("opening witness stream: %w", err)
	}

	wcfg := witness.Config{
		Enabled:          cfg.Witness.Enabled,
		WatchPaths:       cfg.Witness.WatchPaths,
		ExcludePaths:     cfg.Witness.ExcludePaths,
		ProcessPollingMs: cfg.Witness.ProcessPollingMs,
		NetworkPollingMs: cfg.Witness.NetworkPollingMs,
		BufferSize:       cfg.Witness.BufferSize,
		FlushIntervalMs:  cfg.Witness.FlushIntervalMs,
		Gateway: witness.GatewayConfig{
			PidFile:     cfg.Witness.Gateway.PidFile,
			ProcessName: cfg.Witness.Gateway.ProcessName,
		},
	}

	d, err := witness.NewDaemon(wcfg, witness.NewLogstreamFlusher(stream))
	if err != nil {
		return nil, nil, fmt.Errorf("building daemon: %w", err)
	}
	return d, stream, nil
}

func runWitnessStart(cmd *cobra.Command, args []string) error {
	l := layout()
	if err := requireWorkspace(l); err != nil {
		return err
	}
	cfg, err := loadConfig(l)
	if err != nil {
		return fmt.Errorf("witness start: loading config: %w", err)
	}
	if !cfg.Witness.Enabled {
		fmt.Println("witness is disabled in config.yaml, nothing to do")
		return nil
	}

	d, stream, err := buildWitnessDaemon(l, cfg)
	if err != nil {
		return fmt.Errorf("witness start: %w", err)
	}
	defer stream.Close()

	if err := d.Start(); err != nil {
		return fmt.Errorf("witness start: %w", err)
	}
	fmt.Println("witness daemon started, press Ctrl-C to stop")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	d.Stop()
	counters := d.Counters()
	printCounters(counters)
	return nil
}

func runWitnessDoctor(cmd *cobra.Command, args []string) error {
	l := layout()
	if err := requireWorkspace(l); err != nil {
		return err
	}
	cfg, err := loadConfig(l)
	if err != nil {
		return fmt.Errorf("witness doctor: loading config: %w", err)
	}

	d, stream, err := buildWitnessDaemon(l, cfg)
	if err != nil {
		return fmt.Errorf("witness doctor: %w", err)
	}
	defer stream.Close()

	if err := d.Start(); err != nil {
		return fmt.Errorf("witness doctor: %w", err)
	}

	sampleWindow := 3 * time.Duration(maxInt(cfg.Witness.ProcessPollingMs, cfg.Witness.NetworkPollingMs, 1000)) * time.Millisecond
	time.Sleep(sampleWindow)

	d.Stop()
	counters := d.Counters()
	printCounters(counters)

	for _, src := range []string{logstream.SourceFilesystem, logstream.SourceProcess, logstream.SourceNetwork} {
		if counters.BySource[src].Count == 0 {
			fmt.Printf("warning: %s monitor reported no events during the sampling window\n", src)
		}
	}
	return nil
}

func printCounters(c witness.Counters) {
	fmt.Printf("witness session started at %s\n", c.StartedAt.Format(time.RFC3339))
	for _, src := range []string{logstream.SourceFilesystem, logstream.SourceProcess, logstream.SourceNetwork} {
		mc := c.BySource[src]
		last := "never"
		if !mc.LastEventAt.IsZero() {
			last = mc.LastEventAt.Format(time.RFC3339)
		}
		fmt.Printf("  %-12s count=%-6d last=%s\n", src, mc.Count, last)
	}
}

func maxInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}
