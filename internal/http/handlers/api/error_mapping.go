package api

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/payhub-next/internal/channel"
	"github.com/payhub-next/internal/http/response"
	"github.com/payhub-next/internal/logger"
	"github.com/payhub-next/internal/service"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			response.Error(c, rule.code, rule.msg)
			return
		}
	}
	logger.SW().Errorw("api_request_failed",
		"path", c.FullPath(),
		"error", err)
	response.Error(c, response.CodeInternal, fallbackMsg)
}

var orderCreateErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidAmount, code: response.CodeBadRequest, msg: "金额非法"},
	{target: service.ErrMerchantNotFound, code: response.CodeNotFound, msg: "商户不存在"},
	{target: service.ErrDuplicateMerchantRef, code: response.CodeConflict, msg: "商户订单号已存在"},
	{target: service.ErrChannelNotFound, code: response.CodeNotFound, msg: "支付渠道不存在"},
	{target: service.ErrChannelDisabled, code: response.CodeBadRequest, msg: "支付渠道已停用"},
	{target: channel.ErrUnsupportedChannel, code: response.CodeBadRequest, msg: "不支持的支付渠道"},
	{target: service.ErrRiskRejected, code: response.CodeBadRequest, msg: "风控拦截，下单被拒绝"},
}

var refundErrorRules = []mappedHandlerError{
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "订单不存在"},
	{target: service.ErrOrderNotRefundable, code: response.CodeBadRequest, msg: "订单状态不允许退款"},
	{target: service.ErrRefundExceedsAmount, code: response.CodeBadRequest, msg: "退款金额超过原订单金额"},
	{target: service.ErrInvalidAmount, code: response.CodeBadRequest, msg: "金额非法"},
	{target: service.ErrInvalidTransition, code: response.CodeBadRequest, msg: "订单状态不允许退款"},
	{target: channel.ErrUnsupportedChannel, code: response.CodeBadRequest, msg: "不支持的支付渠道"},
}

var withdrawalErrorRules = []mappedHandlerError{
	{target: service.ErrInsufficientBalance, code: response.CodeBadRequest, msg: "可用余额不足"},
	{target: service.ErrInvalidAmount, code: response.CodeBadRequest, msg: "金额非法"},
	{target: service.ErrUnsupportedEntityType, code: response.CodeBadRequest, msg: "不支持的实体类型"},
}

var settlementErrorRules = []mappedHandlerError{
	{target: service.ErrSettlementNotFound, code: response.CodeNotFound, msg: "结算批次不存在"},
	{target: service.ErrUnsupportedEntityType, code: response.CodeBadRequest, msg: "不支持的实体类型"},
	{target: service.ErrSettlementConflict, code: response.CodeConflict, msg: "结算正在进行中，请稍后重试"},
}
