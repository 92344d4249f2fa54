package health

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// Pinger 可探测连通性的依赖
type Pinger interface {
	Ping(ctx context.Context) error
}

// 存活检查的 goroutine 上限，超出视为泄漏
const goroutineThreshold = 10000

// Checker 健康检查器
//
// 存活检查只看进程自身；就绪检查探测目标库以及可选的外部进度存储。
type Checker struct {
	health  healthcheck.Handler
	timeout time.Duration
	logger  *zap.Logger
}

// NewChecker 创建健康检查器，destination 为目标库
func NewChecker(destination Pinger, timeout time.Duration, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	c := &Checker{
		health:  healthcheck.NewHandler(),
		timeout: timeout,
		logger:  logger,
	}
	c.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))
	c.AddReadiness("destination", destination)
	return c
}

// AddReadiness 增加一个就绪检查，例如 redis 进度存储
func (c *Checker) AddReadiness(name string, dep Pinger) {
	if dep == nil {
		return
	}
	c.health.AddReadinessCheck(name, healthcheck.Timeout(c.pingCheck(name, dep), c.timeout))
}

func (c *Checker) pingCheck(name string, dep Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := dep.Ping(ctx); err != nil {
			c.logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

// LiveHandler /health/live
func (c *Checker) LiveHandler() http.HandlerFunc {
	return c.health.LiveEndpoint
}

// ReadyHandler /health/ready
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return c.health.ReadyEndpoint
}
