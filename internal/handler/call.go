package handlers

import (
	"errors"
	"net/http"

	"github.com/code-100-precent/LingDial/internal/call"
	"github.com/code-100-precent/LingDial/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// 错误原因码，客户端据此做程序化处理
const (
	ReasonSessionBusy         = "session_busy"
	ReasonInvalidState        = "invalid_state"
	ReasonNoIncomingCall      = "no_incoming_call"
	ReasonInvalidDigits       = "invalid_digits"
	ReasonInvalidDestination  = "invalid_destination"
	ReasonNotFound            = "not_found"
	ReasonResourceUnavailable = "resource_unavailable"
)

// failFromError 将呼叫层错误映射为原因码和HTTP状态码
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, call.ErrSessionBusy):
		response.FailWithReason(c, http.StatusConflict, ReasonSessionBusy, err.Error())
	case errors.Is(err, call.ErrNoIncomingCall):
		response.FailWithReason(c, http.StatusConflict, ReasonNoIncomingCall, err.Error())
	case errors.Is(err, call.ErrInvalidState):
		response.FailWithReason(c, http.StatusConflict, ReasonInvalidState, err.Error())
	case errors.Is(err, call.ErrInvalidDigits):
		response.FailWithReason(c, http.StatusBadRequest, ReasonInvalidDigits, err.Error())
	case errors.Is(err, call.ErrInvalidDestination):
		response.FailWithReason(c, http.StatusBadRequest, ReasonInvalidDestination, err.Error())
	case errors.Is(err, call.ErrEngineUnavailable):
		response.FailWithReason(c, http.StatusServiceUnavailable, ReasonResourceUnavailable, err.Error())
	default:
		logrus.WithError(err).Error("Call operation failed")
		response.Fail(c, err.Error(), nil)
	}
}

// MakeCallRequest 发起呼叫请求
type MakeCallRequest struct {
	Destination string `json:"destination" binding:"required"` // 目标地址，SIP URI或分机号
}

// MakeCall 发起外呼
// @Summary 发起外呼
// @Description 向指定目标发起呼叫，同一时刻只允许一路活动通话
// @Tags Call
// @Accept json
// @Produce json
// @Param request body MakeCallRequest true "呼叫请求"
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/call/make [post]
func (h *Handlers) MakeCall(c *gin.Context) {
	var req MakeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithReason(c, http.StatusBadRequest, ReasonInvalidDestination, "Invalid request: "+err.Error())
		return
	}

	snap, err := h.registry.Dial(c.Request.Context(), req.Destination)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, "Call initiated", snap)
}

// AnswerCall 接听来电
// @Summary 接听来电
// @Description 接听当前振铃中的来电
// @Tags Call
// @Produce json
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Failure 409 {object} response.Response
// @Router /api/call/answer [post]
func (h *Handlers) AnswerCall(c *gin.Context) {
	snap, err := h.registry.Answer()
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, "Call answered", snap)
}

// HangupCall 挂断通话
// @Summary 挂断通话
// @Description 挂断当前通话，没有活动通话时为幂等空操作
// @Tags Call
// @Produce json
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Router /api/call/hangup [post]
func (h *Handlers) HangupCall(c *gin.Context) {
	snap, err := h.registry.Hangup()
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, "Call ended", snap)
}

// HoldCall 保持通话
// @Summary 保持通话
// @Description 将当前通话置为保持状态
// @Tags Call
// @Produce json
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Failure 409 {object} response.Response
// @Router /api/call/hold [post]
func (h *Handlers) HoldCall(c *gin.Context) {
	snap, err := h.registry.Hold()
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, "Call held", snap)
}

// ResumeCall 恢复通话
// @Summary 恢复通话
// @Description 恢复处于保持状态的通话
// @Tags Call
// @Produce json
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Failure 409 {object} response.Response
// @Router /api/call/resume [post]
func (h *Handlers) ResumeCall(c *gin.Context) {
	snap, err := h.registry.Resume()
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, "Call resumed", snap)
}

// MuteCall 静音
// @Summary 静音本端麦克风
// @Tags Call
// @Produce json
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Failure 409 {object} response.Response
// @Router /api/call/mute [post]
func (h *Handlers) MuteCall(c *gin.Context) {
	snap, err := h.registry.SetMuted(true)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, "Call muted", snap)
}

// UnmuteCall 取消静音
// @Summary 取消静音
// @Tags Call
// @Produce json
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Failure 409 {object} response.Response
// @Router /api/call/unmute [post]
func (h *Handlers) UnmuteCall(c *gin.Context) {
	snap, err := h.registry.SetMuted(false)
	if err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, "Call unmuted", snap)
}

// SendDTMFRequest DTMF发送请求
type SendDTMFRequest struct {
	Digits string `json:"digits" binding:"required"` // DTMF按键串，[0-9A-D*#]
}

// SendDTMF 发送DTMF按键
// @Summary 发送DTMF按键
// @Description 在接通的通话中发送DTMF按键串
// @Tags Call
// @Accept json
// @Produce json
// @Param request body SendDTMFRequest true "按键请求"
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/call/dtmf [post]
func (h *Handlers) SendDTMF(c *gin.Context) {
	var req SendDTMFRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FailWithReason(c, http.StatusBadRequest, ReasonInvalidDigits, "Invalid request: "+err.Error())
		return
	}

	if err := h.registry.SendDTMF(req.Digits); err != nil {
		failFromError(c, err)
		return
	}
	response.Success(c, "DTMF sent", h.registry.Status())
}

// CallStatus 查询通话状态
// @Summary 查询通话状态
// @Description 返回当前或最近一路通话的快照，从未有过通话时data为空
// @Tags Call
// @Produce json
// @Success 200 {object} response.Response{data=call.Snapshot}
// @Router /api/call/status [get]
func (h *Handlers) CallStatus(c *gin.Context) {
	snap := h.registry.Status()
	if snap == nil {
		response.Success(c, "No call yet", nil)
		return
	}
	response.Success(c, "Call status", snap)
}
