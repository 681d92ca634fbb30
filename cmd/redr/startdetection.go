package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/radkum/redr/cleaner"
	"github.com/radkum/redr/dcontext"
	"github.com/radkum/redr/detectloop"
	"github.com/radkum/redr/kernelchan"
	"github.com/radkum/redr/redrconfig"
	"github.com/radkum/redr/redrmetrics"
	"github.com/radkum/redr/scanner"
	"github.com/radkum/redr/sigstore"
)

var (
	startDetectionBundle string
	startDetectionConfig string
)

func init() {
	StartDetectionCmd.Flags().StringVarP(&startDetectionBundle, "set", "s", "", "compiled .sset bundle to evaluate against (required)")
	StartDetectionCmd.Flags().StringVarP(&startDetectionConfig, "config", "c", "", "YAML configuration file")
	_ = StartDetectionCmd.MarkFlagRequired("set")
}

// StartDetectionCmd runs the live kernel-event detection loop until a 'q'
// keystroke on stdin or a termination signal ends it.
var StartDetectionCmd = &cobra.Command{
	Use:   "start-detection",
	Short: "connect to the kernel event channel and run the detection loop",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadStartDetectionConfig()

		bundleFile, err := os.Open(startDetectionBundle)
		if err != nil {
			fatalf("start-detection: %v", err)
		}
		store, err := sigstore.LoadFromBundle(bundleFile)
		bundleFile.Close()
		if err != nil {
			fatalf("start-detection: %v", err)
		}
		redrmetrics.LoadedRules.WithLabelValues("all").Set(float64(store.RuleCount()))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		ctx = dcontext.WithLogrusEntry(ctx, logrus.NewEntry(logrus.StandardLogger()))

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sig
			cancel()
		}()

		go detectloop.WatchStdinShutdown(ctx, os.Stdin, cancel)

		if cfg.Detection.MetricsAddr != "" {
			go func() {
				server := &http.Server{Addr: cfg.Detection.MetricsAddr, Handler: redrmetrics.Handler()}
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logrus.Warnf("start-detection: metrics server: %v", err)
				}
			}()
		}

		channel, err := kernelchan.Dial(ctx, "tcp", cfg.Detection.KernelChannel)
		if err != nil {
			fatalf("start-detection: connecting to kernel channel: %v", err)
		}
		defer channel.Close()

		// The scanner outlives the loop's cancellation so in-flight
		// submissions drain instead of dropping; Close below is its only
		// shutdown path.
		scanCtx := dcontext.WithLogrusEntry(context.Background(), logrus.NewEntry(logrus.StandardLogger()))
		sc := scanner.New(store)
		go func() {
			if err := sc.Run(scanCtx); err != nil {
				logrus.Errorf("start-detection: scanner: %v", err)
			}
		}()

		openFile := func(path string) (scanner.ReadSeekerAt, int64, error) {
			f, err := os.Open(path)
			if err != nil {
				return nil, 0, err
			}
			info, err := f.Stat()
			if err != nil {
				f.Close()
				return nil, 0, err
			}
			return f, info.Size(), nil
		}

		loop := detectloop.New(channel, store, sc, cleaner.NewExecutor(), openFile)
		loop.SetSendTimeout(time.Duration(cfg.Detection.KernelSendTimeout))
		if err := loop.Run(ctx); err != nil {
			logrus.Errorf("start-detection: %v", err)
		}

		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		report, err := sc.Close(closeCtx)
		if err != nil {
			logrus.Warnf("start-detection: draining scanner: %v", err)
			return
		}
		logrus.Infof("start-detection: scanned %d clean, %d malicious", len(report.Clean), len(report.Malicious))
	},
}

func loadStartDetectionConfig() *redrconfig.Configuration {
	if startDetectionConfig == "" {
		// No file: start from an empty document so every REDR_ override
		// and the default send timeout still apply.
		cfg, err := redrconfig.Parse(nil)
		if err != nil {
			fatalf("start-detection: %v", err)
		}
		return cfg
	}
	cfg, err := redrconfig.ParseFile(startDetectionConfig)
	if err != nil {
		fatalf("start-detection: %v", err)
	}
	return cfg
}
