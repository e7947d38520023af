package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/minasoft/ris-listener/internal/db"
	natsutil "github.com/minasoft/ris-listener/internal/nats"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// UnresolvedRegistry lists, counts and clears reports waiting for operator review.
type UnresolvedRegistry interface {
	List(ctx context.Context) ([]db.UnresolvedReference, error)
	Count(ctx context.Context) (int, error)
	Resolve(ctx context.Context, accession string) error
}

type Server struct {
	echo       *echo.Echo
	js         jetstream.JetStream
	unresolved UnresolvedRegistry
	port       int
}

func NewServer(js jetstream.JetStream, unresolved UnresolvedRegistry, gatherer prometheus.Gatherer, port int) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("HTTP istek", "method", v.Method, "uri", v.URI, "status", v.Status)
			return nil
		},
	}))

	s := &Server{
		echo:       e,
		js:         js,
		unresolved: unresolved,
		port:       port,
	}
	s.setupRoutes(gatherer)
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("Web sunucu başlatılıyor", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("web sunucu hatası: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	api := s.echo.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/stats", s.handleStats)
	api.GET("/unresolved", s.handleListUnresolved)
	api.DELETE("/unresolved/:accession", s.handleResolve)
	api.GET("/dlq", s.handleListDLQ)
	api.POST("/dlq/:id/retry", s.handleRetryNotification)
	api.GET("/streams", s.handleGetStreams)
	api.GET("/consumers", s.handleGetConsumers)

	if gatherer != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	components := make(map[string]string)
	overallStatus := "healthy"

	if _, err := s.js.AccountInfo(ctx); err != nil {
		components["nats"] = "unhealthy: " + err.Error()
		overallStatus = "unhealthy"
	} else {
		components["nats"] = "healthy"
	}

	for _, name := range []string{natsutil.InboundStream, natsutil.NotificationStream} {
		stream, err := s.js.Stream(ctx, name)
		if err != nil {
			components[name] = "unhealthy: stream not found"
			if overallStatus == "healthy" {
				overallStatus = "degraded"
			}
			continue
		}
		if info, err := stream.Info(ctx); err == nil {
			components[name] = fmt.Sprintf("healthy (messages: %d)", info.State.Msgs)
		} else {
			components[name] = "healthy"
		}
	}

	for _, bucket := range []string{natsutil.StatsBucket, natsutil.UnresolvedBucket, natsutil.DLQBucket} {
		kv, err := s.js.KeyValue(ctx, bucket)
		if err != nil {
			components[bucket] = "unhealthy"
			if overallStatus == "healthy" {
				overallStatus = "degraded"
			}
			continue
		}
		if status, err := kv.Status(ctx); err == nil {
			components[bucket] = fmt.Sprintf("healthy (values: %d)", status.Values())
		} else {
			components[bucket] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	return c.JSON(statusCode, map[string]interface{}{
		"status":     overallStatus,
		"timestamp":  time.Now(),
		"components": components,
	})
}

func (s *Server) handleStats(c echo.Context) error {
	ctx := c.Request().Context()

	statsKV, err := s.js.KeyValue(ctx, natsutil.StatsBucket)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Stats KV erişilemedi")
	}
	stats, err := natsutil.Snapshot(ctx, statsKV)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "İstatistikler okunamadı")
	}

	unresolved, err := s.unresolved.Count(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Kayıt sayısı okunamadı")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"counters":   stats,
		"unresolved": unresolved,
	})
}

func (s *Server) handleListUnresolved(c echo.Context) error {
	refs, err := s.unresolved.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Kayıtlar okunamadı")
	}
	return c.JSON(http.StatusOK, refs)
}

func (s *Server) handleResolve(c echo.Context) error {
	accession := c.Param("accession")
	err := s.unresolved.Resolve(c.Request().Context(), accession)
	if errors.Is(err, db.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Kayıt bulunamadı")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Kayıt silinemedi")
	}
	slog.Info("Çözümlenmemiş rapor kapatıldı", "accessionNumber", accession)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListDLQ(c echo.Context) error {
	ctx := c.Request().Context()
	requests := []db.NotificationRequest{}

	dlqKV, err := s.js.KeyValue(ctx, natsutil.DLQBucket)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "DLQ erişilemedi")
	}
	keys, err := dlqKV.Keys(ctx)
	if err != nil && !errors.Is(err, jetstream.ErrNoKeysFound) {
		return echo.NewHTTPError(http.StatusInternalServerError, "DLQ okunamadı")
	}
	for _, key := range keys {
		entry, err := dlqKV.Get(ctx, key)
		if err != nil {
			continue
		}
		var req db.NotificationRequest
		if err := json.Unmarshal(entry.Value(), &req); err == nil {
			requests = append(requests, req)
		}
	}

	sort.Slice(requests, func(i, j int) bool {
		return requests[i].RequestedAt.After(requests[j].RequestedAt)
	})
	return c.JSON(http.StatusOK, requests)
}

// handleRetryNotification moves a dead-lettered request back to the
// notification stream with its retry state cleared.
func (s *Server) handleRetryNotification(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	dlqKV, err := s.js.KeyValue(ctx, natsutil.DLQBucket)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "DLQ erişilemedi")
	}
	entry, err := dlqKV.Get(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Bildirim bulunamadı")
	}

	var req db.NotificationRequest
	if err := json.Unmarshal(entry.Value(), &req); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Bildirim okunamadı")
	}
	req.RetryCount = 0
	req.LastError = ""

	data, err := json.Marshal(req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Bildirim serialize edilemedi")
	}
	subject := natsutil.NotificationSubject + "." + string(req.Kind)
	if _, err := s.js.Publish(ctx, subject, data); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Bildirim yeniden gönderilemedi: "+err.Error())
	}

	if err := dlqKV.Delete(ctx, id); err != nil {
		slog.Error("DLQ'dan bildirim silinemedi", "id", id, "error", err)
	}
	slog.Info("Bildirim yeniden kuyruğa alındı", "id", id, "kind", req.Kind)

	return c.JSON(http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Bildirim yeniden kuyruğa alındı",
	})
}

func (s *Server) handleGetStreams(c echo.Context) error {
	ctx := c.Request().Context()
	streams := []db.StreamInfo{}

	for _, name := range []string{natsutil.InboundStream, natsutil.NotificationStream} {
		stream, err := s.js.Stream(ctx, name)
		if err != nil {
			continue
		}
		info, err := stream.Info(ctx)
		if err != nil {
			continue
		}
		streams = append(streams, db.StreamInfo{
			Name:          info.Config.Name,
			Messages:      info.State.Msgs,
			Bytes:         info.State.Bytes,
			FirstSequence: info.State.FirstSeq,
			LastSequence:  info.State.LastSeq,
		})
	}
	return c.JSON(http.StatusOK, streams)
}

func (s *Server) handleGetConsumers(c echo.Context) error {
	ctx := c.Request().Context()
	consumers := []db.ConsumerInfo{}

	stream, err := s.js.Stream(ctx, natsutil.NotificationStream)
	if err != nil {
		return c.JSON(http.StatusOK, consumers)
	}
	names := stream.ConsumerNames(ctx)
	for name := range names.Name() {
		consumer, err := stream.Consumer(ctx, name)
		if err != nil {
			continue
		}
		info, err := consumer.Info(ctx)
		if err != nil {
			continue
		}
		consumers = append(consumers, db.ConsumerInfo{
			Stream:          natsutil.NotificationStream,
			Name:            info.Name,
			Pending:         info.NumPending,
			Delivered:       info.Delivered.Consumer,
			AckPending:      uint64(info.NumAckPending),
			RedeliveryCount: uint64(info.NumRedelivered),
		})
	}
	return c.JSON(http.StatusOK, consumers)
}
