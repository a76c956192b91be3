// Package main provides the CLI entry point for the RF mesh sensor node
// host build.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/zveasy/ol-rf-mesh/internal/codec"
	"github.com/zveasy/ol-rf-mesh/internal/config"
	"github.com/zveasy/ol-rf-mesh/internal/logging"
	"github.com/zveasy/ol-rf-mesh/internal/metrics"
	"github.com/zveasy/ol-rf-mesh/internal/recovery"
	"github.com/zveasy/ol-rf-mesh/internal/sched"
	"github.com/zveasy/ol-rf-mesh/internal/seal"
	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
	"github.com/zveasy/ol-rf-mesh/internal/transport"
)

var (
	// Version is set at build time.
	Version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ol-rf-mesh",
		Short: "Low-power RF sensor node, host build",
		Long: `ol-rf-mesh runs the RF sensor node firmware model on a host:
periodic RF sampling, anomaly scoring, encrypted telemetry frames and
mesh routing, driven by the same task plan the device uses.`,
		Version: Version,
	}

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(vectorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sensor node",
		Long:  "Start the node scheduler with the specified configuration and run until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)

			opts := sched.Options{Logger: logger}
			if cfg.Metrics.Enabled {
				opts.Metrics = metrics.Default()
				go func() {
					defer recovery.RecoverWithLog(logger, "metrics-server")
					http.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(cfg.Metrics.Address, nil); err != nil {
						logger.Error("metrics server failed", logging.KeyError, err)
					}
				}()
				logger.Info("metrics listening", "address", cfg.Metrics.Address)
			}

			if cfg.Radio.UDPAddress != "" {
				mode, err := transport.ParseMode(cfg.Radio.Transport)
				if err != nil {
					return err
				}
				radio, err := transport.NewUDPRadio(cfg.Radio.UDPAddress, cfg.Radio.SendsPerSec, logger)
				if err != nil {
					return fmt.Errorf("udp radio: %w", err)
				}
				defer radio.Close()
				opts.Radio = transport.NewDriver(mode, radio)
			}

			node, err := sched.NewNode(cfg, opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := node.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to node configuration")

	return cmd
}

func statusCmd() *cobra.Command {
	var (
		configPath string
		ticks      int
		stepMS     uint32
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a snapshot of node metrics and routing",
		Long: `Drive the cooperative scheduler for a fixed number of ticks against a
loopback radio, then print the resulting node snapshot: heartbeats, mesh
metrics, fault counters and the routing table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}

			lb := &transport.Loopback{}
			node, err := sched.NewNode(cfg, sched.Options{Radio: lb})
			if err != nil {
				return err
			}

			now := uint32(0)
			for i := 0; i < ticks; i++ {
				node.RunCycle(now)
				now += stepMS
			}

			envs := lb.Envelopes()
			var total uint64
			for _, e := range envs {
				total += uint64(len(e))
			}

			st := node.Status()
			fmt.Printf("node %s: %d ticks at %d ms\n", cfg.Node.ID, ticks, stepMS)
			fmt.Printf("frames on air:     %d (%s)\n", len(envs), humanize.Bytes(total))
			fmt.Printf("sequence counter:  %d\n", st.SeqNo)
			fmt.Printf("queue depth:       %d\n", st.QueueLen)
			fmt.Printf("mesh metrics:      %+v\n", st.Mesh)
			fmt.Printf("fault counters:    %+v\n", st.Faults.Counters)

			routes := node.Mesh().Snapshot(now)
			if len(routes.Entries) == 0 {
				fmt.Println("routing table:     empty")
			} else {
				fmt.Printf("routing table (version %d, parent %s):\n",
					routes.Version, st.Parent.NeighborID)
				for _, e := range routes.Entries {
					fmt.Printf("  %-16s lq=%3d rssi=%4d dBm cost=%d\n",
						e.NeighborID, e.LinkQuality, e.RSSIDBm, e.Cost)
				}
			}

			fmt.Println("heartbeats:")
			for _, hb := range st.Heartbeats {
				fmt.Printf("  %-18s last beat %6d ms\n", hb.Name, hb.LastBeatMS)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to node configuration")
	cmd.Flags().IntVar(&ticks, "ticks", 48, "Scheduler ticks to drive before the snapshot")
	cmd.Flags().Uint32Var(&stepMS, "step-ms", 250, "Milliseconds per tick")

	return cmd
}

func vectorCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "vector",
		Short: "Emit a golden encrypted envelope as hex",
		Long:  "Encode and seal a fixed reference frame with the configured mesh key, for gateway interoperability tests.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}
			key, err := cfg.Key()
			if err != nil {
				return err
			}

			frame := goldenFrame()
			nonce := seal.DeriveNonce(frame.Header.SeqNo, frame.Header.SrcNodeID)
			frame.Security.Nonce = nonce

			plain, err := codec.Encode(frame)
			if err != nil {
				return err
			}
			env, err := seal.Encrypt(plain, key, nonce[:])
			if err != nil {
				return err
			}

			fmt.Printf("cleartext (%d bytes): %s\n", len(plain), hex.EncodeToString(plain))
			fmt.Printf("envelope  (%d bytes): %s\n", len(env), hex.EncodeToString(env))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to node configuration")

	return cmd
}

// goldenFrame is the reference frame shared with the gateway test suite.
func goldenFrame() *telemetry.MeshFrame {
	f := &telemetry.MeshFrame{}
	f.Header = telemetry.Header{
		Version:    1,
		MsgType:    telemetry.MsgTelemetry,
		TTL:        3,
		SeqNo:      7,
		SrcNodeID:  "node-gold",
		DestNodeID: "gw",
	}
	f.Security.Encrypted = true
	f.Counters = telemetry.Counters{TxCounter: 7, ReplayWindow: 1}
	f.Telemetry.RFEvent = telemetry.RFEvent{
		TimestampMS:  1234,
		CenterFreqHz: 915000000,
		Features:     telemetry.RfFeatures{AvgDBm: -55.5, PeakDBm: -42.0},
		AnomalyScore: 0.12,
		ModelVersion: 2,
	}
	f.Telemetry.Gps = telemetry.GpsStatus{
		TimestampMS: 1234, LatitudeDeg: 1.23, LongitudeDeg: 4.56, AltitudeM: 7.89,
		NumSats: 8, HDOP: 1.1, ValidFix: true, CN0DbHzAvg: 38.0,
	}
	f.Telemetry.Health = telemetry.HealthStatus{
		TimestampMS: 1234, BatteryV: 3.8, TempC: 26.0, IMUTiltDeg: 0.4,
	}
	f.Routing = telemetry.RoutingPayload{
		EpochMS: 1234,
		Version: 9,
		Entries: []telemetry.RouteEntry{
			{NeighborID: "p1", RSSIDBm: -60, LinkQuality: 180, Cost: 1},
		},
	}
	return f
}
