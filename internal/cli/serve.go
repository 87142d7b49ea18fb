package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"riskgate/decision-api/internal/api"
	"riskgate/decision-api/internal/config"
	"riskgate/decision-api/internal/kafka"
	"riskgate/decision-api/internal/observability"
	"riskgate/decision-api/internal/scoring"
	"riskgate/decision-api/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP listen port (PORT env wins)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP decision service",
	Long:  "Serves POST /transaction, POST /transactions/batch, GET /config, GET /health and GET /metrics.\nAlerts go to ALERT_WEBHOOK_URL and every decision is streamed to KAFKA_BROKERS when set.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	rules, err := loadRules()
	if err != nil {
		return err
	}

	// PaaS platforms inject PORT; it takes precedence over the flag.
	port := servePort
	if _, ok := os.LookupEnv("PORT"); ok {
		port = settings.Port
	}

	svc := newService(settings, rules)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      svc.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"port", port,
			"rules", rulesOrDefault(rulesPath),
			"reject_at", rules.ScoreToDecision.RejectAt,
			"review_at", rules.ScoreToDecision.ReviewAt,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	svc.close(shutdownCtx)
	logger.Info("server stopped")
	return nil
}

// service is the wired HTTP stack plus the sinks it must drain on shutdown.
type service struct {
	router    http.Handler
	notifier  *webhook.Notifier
	publisher *kafka.Publisher
}

func newService(s config.Settings, rules config.Rules) *service {
	svc := &service{}

	var sinks []api.Sink
	if s.AlertWebhookURL != "" {
		svc.notifier = webhook.New(s.AlertWebhookURL, s.AlertMinDecision, logger)
		sinks = append(sinks, svc.notifier)
		logger.Info("decision alerts enabled", "min_decision", s.AlertMinDecision)
	}
	if len(s.KafkaBrokers) > 0 {
		svc.publisher = kafka.NewPublisher(s.KafkaBrokers, s.KafkaTopic, logger)
		sinks = append(sinks, svc.publisher)
		logger.Info("decision stream enabled", "brokers", s.KafkaBrokers, "topic", s.KafkaTopic)
	}

	h := api.NewHandler(scoring.New(rules), observability.NewMetrics(), sinks...).WithLogger(logger)
	svc.router = api.NewRouter(h)
	return svc
}

func (s *service) close(ctx context.Context) {
	if s.notifier != nil {
		if err := s.notifier.Close(ctx); err != nil {
			logger.Warn("pending alerts dropped", "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			logger.Warn("kafka close", "error", err)
		}
	}
}

func rulesOrDefault(path string) string {
	if path == "" {
		return "built-in"
	}
	return path
}
