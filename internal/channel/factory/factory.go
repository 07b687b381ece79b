package factory

import (
	"fmt"
	"strings"
	"time"

	"github.com/payhub-next/internal/channel"
	"github.com/payhub-next/internal/channel/epay"
	"github.com/payhub-next/internal/channel/wechatpay"
	"github.com/payhub-next/internal/constants"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/models"
)

// BuildRegistry 按启用的渠道配置构建适配器注册表。
// 单个渠道配置损坏只告警跳过，不拖垮整个进程启动。
func BuildRegistry(channels []models.PaymentChannel, timeout time.Duration) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	for i := range channels {
		ch := &channels[i]
		if !ch.IsActive {
			continue
		}
		adapter, err := buildAdapter(ch, timeout)
		if err != nil {
			logger.SW().Warnw("channel_adapter_build_failed",
				"channel_code", ch.Code,
				"provider_type", ch.ProviderType,
				"error", err)
			continue
		}
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		logger.SW().Infow("channel_adapter_registered",
			"channel_code", ch.Code,
			"provider_type", ch.ProviderType)
	}
	return registry, nil
}

func buildAdapter(ch *models.PaymentChannel, timeout time.Duration) (channel.Adapter, error) {
	raw := map[string]interface{}(ch.ConfigJSON)
	switch strings.ToLower(strings.TrimSpace(ch.ProviderType)) {
	case constants.ChannelProviderEpay:
		cfg, err := epay.ParseConfig(raw)
		if err != nil {
			return nil, err
		}
		return epay.New(ch.Code, cfg, timeout)
	case constants.ChannelProviderWechatpay:
		cfg, err := wechatpay.ParseConfig(raw)
		if err != nil {
			return nil, err
		}
		return wechatpay.New(ch.Code, cfg)
	default:
		return nil, fmt.Errorf("%w: provider %s", channel.ErrUnsupportedChannel, ch.ProviderType)
	}
}
