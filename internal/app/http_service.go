package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/payhub-next/internal/logger"
)

const apiReadHeaderTimeout = 10 * time.Second

// HTTPService 对外支付 API 的监听服务
type HTTPService struct {
	server *http.Server
}

// NewHTTPService 创建 API 监听服务
func NewHTTPService(addr string, handler http.Handler) *HTTPService {
	return &HTTPService{
		server: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: apiReadHeaderTimeout,
		},
	}
}

// Name 服务名称
func (s *HTTPService) Name() string {
	return "api"
}

// Start 开始监听。正常关停返回 nil。
func (s *HTTPService) Start(ctx context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("api server not initialized")
	}
	logger.SW().Infow("api_listen", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop 优雅关停，等待存量请求完成或超时
func (s *HTTPService) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
