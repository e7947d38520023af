package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/minasoft/ris-listener/internal/config"
	"github.com/minasoft/ris-listener/internal/consumers"
	"github.com/minasoft/ris-listener/internal/db"
	"github.com/minasoft/ris-listener/internal/hl7"
	"github.com/minasoft/ris-listener/internal/ingest"
	"github.com/minasoft/ris-listener/internal/metrics"
	"github.com/minasoft/ris-listener/internal/nats"
	"github.com/minasoft/ris-listener/internal/notify"
	"github.com/minasoft/ris-listener/internal/web"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "ris-listener",
		Short:        "HL7 v2 MLLP listener for RIS orders and reports",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sendCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MLLP listener, notification dispatcher and ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("yapılandırma yüklenemedi: %w", err)
			}
			config.SetupLogger(cfg.LogLevel)
			if err := cfg.Validate(); err != nil {
				slog.Error("Yapılandırma geçersiz", "error", err)
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	natsServer, err := nats.NewEmbeddedServer(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("NATS sunucu başlatılamadı: %w", err)
	}
	defer natsServer.Shutdown()
	js := natsServer.JetStream()

	patients, studies, closeStore, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	ledger, err := nats.NewUnresolvedLedger(ctx, js)
	if err != nil {
		return err
	}
	stats, err := nats.NewStatsRecorder(ctx, js)
	if err != nil {
		return err
	}

	processor := ingest.NewProcessor(ingest.Dependencies{
		Patients:     patients,
		Studies:      studies,
		Notifier:     notify.NewJetStreamNotifier(js, nats.NotificationSubject),
		Unresolved:   ledger,
		Metrics:      m,
		StoreTimeout: cfg.StoreTimeout,
	})

	sep, _ := cfg.Separator()
	server := hl7.NewMLLPServer(hl7.ServerConfig{
		Port:             cfg.ListenPort,
		IdleTimeout:      cfg.IdleTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		MaxMessageSize:   cfg.MaxMessageBytes,
		SegmentSeparator: sep,
		Identity: hl7.Identity{
			Application: cfg.ReceivingApp,
			Facility:    cfg.ReceivingFacility,
		},
	}, processor, m, nats.NewAuditPublisher(js), stats)

	dispatcher := consumers.NewNotificationDispatcher(js, patients, notify.NewTemplateEngine(), notify.LogSMSSender{}, consumers.DispatcherConfig{
		PortalBaseURL: cfg.PortalBaseURL,
	})
	webServer := web.NewServer(js, ledger, reg, cfg.WebPort)

	if err := server.Start(ctx); err != nil {
		return err
	}
	defer server.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error { return webServer.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return server.Stop()
	})

	slog.Info("RIS listener başlatıldı",
		"mllpPort", cfg.ListenPort,
		"webPort", cfg.WebPort,
		"store", cfg.StoreDriver,
	)
	printStartupInfo(cfg)

	err = g.Wait()
	slog.Info("RIS listener kapatıldı")
	return err
}

// openStores returns the configured patient and study stores and a cleanup
// function.
func openStores(ctx context.Context, cfg *config.Config) (db.PatientStore, db.StudyStore, func(), error) {
	if cfg.StoreDriver != config.DriverPostgres {
		slog.Warn("Bellek içi depo kullanılıyor, veriler yeniden başlatmada kaybolur")
		return db.NewMemoryPatientStore(), db.NewMemoryStudyStore(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns), int32(cfg.DBMinConns))
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return db.NewPostgresPatientStore(pool), db.NewPostgresStudyStore(pool), pool.Close, nil
}

func sendCmd() *cobra.Command {
	var (
		addr    string
		timeout time.Duration
		ping    bool
	)
	cmd := &cobra.Command{
		Use:   "send [file]",
		Short: "Send an HL7 message file to an MLLP listener and print the ACK",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetupLogger("warn")
			client := hl7.NewMLLPClient(addr, timeout)
			if ping {
				if err := client.TestConnection(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s erişilebilir\n", addr)
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("mesaj dosyası gerekli")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("dosya okunamadı: %w", err)
			}
			// Files are usually edited with LF line endings.
			data = bytes.ReplaceAll(bytes.TrimSpace(data), []byte("\r\n"), []byte("\r"))
			data = bytes.ReplaceAll(data, []byte("\n"), []byte("\r"))

			result, err := client.SendMessage(cmd.Context(), data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", result.Code(), result.ControlID, result.Reason)
			if !result.Accepted {
				return fmt.Errorf("mesaj reddedildi: %s", result.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:2575", "MLLP listener address")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "dial and ACK timeout")
	cmd.Flags().BoolVar(&ping, "ping", false, "only check that the listener accepts connections")
	return cmd
}

func printStartupInfo(cfg *config.Config) {
	info := `
╔═══════════════════════════════════════════════════════════════╗
║                    RIS Listener Başlatıldı                    ║
╠═══════════════════════════════════════════════════════════════╣
║ MLLP Port            : %-39d ║
║ Ops API              : http://localhost:%-22d ║
║ Store                : %-39s ║
║ Idle Timeout         : %-39s ║
╚═══════════════════════════════════════════════════════════════╝
`
	fmt.Printf(info,
		cfg.ListenPort,
		cfg.WebPort,
		cfg.StoreDriver,
		cfg.IdleTimeout.String(),
	)
}
