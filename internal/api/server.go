// Package api 只读 HTTP 接口：健康检查、消息查询、统计
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"

	"github.com/Firdavs28033/tg-monitoring-back/internal/analytics"
	"github.com/Firdavs28033/tg-monitoring-back/internal/ingest/models"
	"github.com/Firdavs28033/tg-monitoring-back/internal/logger"
)

// MessageReader 消息查询
type MessageReader interface {
	ListMessages(ctx context.Context, chatID int64, limit, offset int64) ([]*models.MessageRecord, error)
	CountMessages(ctx context.Context, chatID int64) (int64, error)
}

// Pinger 存储连通性检查
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsSource 词频统计
type StatsSource interface {
	Processed() int64
	Top(n int) []analytics.WordCount
}

// Config 服务配置
type Config struct {
	Addr     string
	StatsTop int
}

// Server 只读 API 服务
type Server struct {
	app  *fiber.App
	addr string
}

// New 创建服务并注册路由，stats 可为 nil
func New(cfg Config, reader MessageReader, pinger Pinger, stats StatsSource) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           30 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestLogger(500 * time.Millisecond))

	h := &handler{reader: reader, pinger: pinger, stats: stats, top: cfg.StatsTop}
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)

	v1 := app.Group("/api/v1")
	v1.Get("/messages", h.ListMessages)
	v1.Get("/stats", h.Stats)

	return &Server{app: app, addr: cfg.Addr}
}

// App 返回 fiber 应用
func (s *Server) App() *fiber.App {
	return s.app
}

// Start 开始监听（阻塞）
func (s *Server) Start() error {
	logger.L().Infof("HTTP API listening on %s", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(timeout time.Duration) error {
	return s.app.ShutdownWithTimeout(timeout)
}

// errorHandler 统一错误响应
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

// requestLogger 只记录失败或慢请求
func requestLogger(slow time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		if status >= fiber.StatusBadRequest || latency >= slow {
			logger.L().WithFields(logrus.Fields{
				"method":  c.Method(),
				"path":    c.Path(),
				"status":  status,
				"latency": latency.String(),
			}).Warn("HTTP request")
		}
		return err
	}
}
