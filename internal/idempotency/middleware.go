package idempotency

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/payhub-next/internal/logger"
)

// HeaderKey 幂等键请求头
const HeaderKey = "Idempotency-Key"

// bodyRecorder 捕获写出的响应体，用于落盘重放
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware 幂等保护中间件。
// 未携带幂等键的请求直接放行；重放请求原样返回首次响应；
// 同键并发请求返回 409。仅 5xx 失败释放占位键供客户端重试。
func Middleware(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderKey))
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		rec, err := store.Reserve(ctx, key)
		if err != nil {
			if errors.Is(err, ErrInFlight) {
				c.AbortWithStatusJSON(http.StatusConflict, gin.H{
					"status_code": http.StatusConflict,
					"msg":         "请求处理中，请勿重复提交",
				})
				return
			}
			logger.SW().Errorw("idempotency_reserve_failed", "key", key, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"status_code": http.StatusInternalServerError,
				"msg":         "服务器内部错误",
			})
			return
		}
		if rec != nil {
			contentType := rec.ContentType
			if contentType == "" {
				contentType = "application/json; charset=utf-8"
			}
			logger.SW().Infow("idempotency_replayed", "key", key, "status", rec.Status)
			c.Data(rec.Status, contentType, rec.Body)
			c.Abort()
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			if err := store.Cancel(ctx, key); err != nil {
				logger.SW().Warnw("idempotency_cancel_failed", "key", key, "error", err)
			}
			return
		}
		if err := store.Finalize(ctx, key, Record{
			Status:      status,
			ContentType: recorder.Header().Get("Content-Type"),
			Body:        recorder.buf.Bytes(),
		}); err != nil {
			logger.SW().Warnw("idempotency_finalize_failed", "key", key, "error", err)
		}
	}
}
