package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/BaSui01/parliament/agent/deliberation"
	"github.com/BaSui01/parliament/api"
	"github.com/BaSui01/parliament/types"
	"go.uber.org/zap"
)

// UnavailableMessage 是审议失败时返回给客户端的唯一提示，内部原因只进日志
const UnavailableMessage = "The assistant is currently unavailable. Please try again."

// DefaultDeliberationTimeout 单次审议的总预算
const DefaultDeliberationTimeout = 60 * time.Second

// Deliberator 运行一次审议，*deliberation.Engine 实现该接口
type Deliberator interface {
	Run(ctx context.Context, request string, sessionID *string, reporter deliberation.Reporter) (*deliberation.Result, error)
}

// =============================================================================
// 🏛️ 审议 Handler
// =============================================================================

// DeliberationHandler 处理 POST /v1/deliberations
type DeliberationHandler struct {
	deliberator Deliberator
	timeout     time.Duration
	logger      *zap.Logger
}

// NewDeliberationHandler 创建审议处理器，timeout <= 0 时使用 DefaultDeliberationTimeout
func NewDeliberationHandler(d Deliberator, timeout time.Duration, logger *zap.Logger) *DeliberationHandler {
	if timeout <= 0 {
		timeout = DefaultDeliberationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeliberationHandler{
		deliberator: d,
		timeout:     timeout,
		logger:      logger.With(zap.String("handler", "deliberation")),
	}
}

// HandleDeliberate 解析请求并按 stream 字段选择 JSON 或 NDJSON 输出
// @Summary 发起审议
// @Tags 审议
// @Accept json
// @Produce json
// @Param request body api.DeliberationRequest true "审议请求"
// @Success 200 {object} Response "审议结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 503 {object} Response "服务不可用"
// @Router /v1/deliberations [post]
func (h *DeliberationHandler) HandleDeliberate(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.DeliberationRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	req.Normalize()

	if req.Prompt == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "prompt is required", h.logger)
		return
	}
	if len(req.Prompt) > api.MaxPromptBytes {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "prompt is too long", h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if req.Stream {
		h.stream(ctx, w, r, req)
		return
	}

	start := time.Now()
	res, err := h.deliberator.Run(ctx, req.Prompt, req.SessionID, nil)
	if err != nil {
		WriteError(w, r, h.classify(ctx, err), h.logger)
		return
	}
	WriteSuccess(w, r, api.NewDeliberationResponse(res, time.Since(start)))
}

// stream 以 NDJSON 输出进度事件，最后一行为 result 或 error。
// 头部一经写出状态码固定为 200，失败只能通过 error 行表达。
func (h *DeliberationHandler) stream(ctx context.Context, w http.ResponseWriter, r *http.Request, req api.DeliberationRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	var mu sync.Mutex
	write := func(line api.StreamLine) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(line); err != nil {
			h.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			h.logger.Debug("stream flush failed", zap.Error(err))
		}
	}

	reporter := deliberation.ReporterFunc(func(e deliberation.Event) {
		// 掉线事件带人格名，只留在日志和指标里
		if e.Stage == deliberation.StagePersonaDropped {
			return
		}
		write(api.StreamLine{Type: api.LineProgress, Event: &e})
	})

	start := time.Now()
	res, err := h.deliberator.Run(ctx, req.Prompt, req.SessionID, reporter)
	if err != nil {
		apiErr := h.classify(ctx, err)
		h.logger.Error("streamed deliberation failed",
			zap.String("code", string(apiErr.Code)),
			zap.String("request_id", requestID(r)),
			zap.Error(err))
		write(api.StreamLine{Type: api.LineError, Error: &api.StreamError{
			Code:    string(apiErr.Code),
			Message: apiErr.Message,
		}})
		return
	}

	out := api.NewDeliberationResponse(res, time.Since(start))
	write(api.StreamLine{Type: api.LineResult, Result: &out})
}

// classify 把引擎错误映射为对外错误，消息统一为 UnavailableMessage
func (h *DeliberationHandler) classify(ctx context.Context, err error) *types.Error {
	var (
		code   types.ErrorCode
		status int
	)
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		code, status = types.ErrUpstreamTimeout, http.StatusGatewayTimeout
	case deliberation.IsNoActivePersonas(err), deliberation.IsSynthesisError(err):
		code, status = types.ErrServiceUnavailable, http.StatusServiceUnavailable
	default:
		code, status = types.ErrInternalError, http.StatusInternalServerError
	}
	return types.NewError(code, UnavailableMessage).
		WithCause(err).
		WithHTTPStatus(status).
		WithRetryable(true)
}
