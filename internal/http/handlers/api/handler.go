package api

import "github.com/payhub-next/internal/provider"

// Handler 商户侧 API 处理器入口
type Handler struct {
	*provider.Container
}

// New 创建 API 处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
