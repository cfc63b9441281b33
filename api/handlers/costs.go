package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BaSui01/parliament/ledger"
	"github.com/BaSui01/parliament/types"
	"go.uber.org/zap"
)

// CostHandler 处理 GET /v1/sessions/{id}/costs
type CostHandler struct {
	summarizer ledger.Summarizer
	logger     *zap.Logger
}

// NewCostHandler 创建会话成本处理器
func NewCostHandler(s ledger.Summarizer, logger *zap.Logger) *CostHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostHandler{summarizer: s, logger: logger.With(zap.String("handler", "costs"))}
}

// CostResponse 会话成本摘要，Context 为可直接拼入提示词的文本块
type CostResponse struct {
	*ledger.Summary
	Context string `json:"context"`
}

// HandleSessionCosts 返回会话的累计花费
// @Summary 会话成本
// @Tags 成本
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} Response "成本摘要"
// @Router /v1/sessions/{id}/costs [get]
func (h *CostHandler) HandleSessionCosts(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "session id is required", h.logger)
		return
	}

	sum, err := h.summarizer.Summarize(r.Context(), id)
	if err != nil {
		if errors.Is(err, ledger.ErrNoTotals) {
			WriteErrorMessage(w, r, http.StatusNotFound, types.ErrNotFound, "no spend recorded for session", h.logger)
			return
		}
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "cost ledger is unavailable").
			WithCause(err).
			WithRetryable(true), h.logger)
		return
	}

	WriteSuccess(w, r, CostResponse{Summary: sum, Context: sum.String()})
}
