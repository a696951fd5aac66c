package handlers

import (
	"github.com/code-100-precent/LingDial/internal/call"
	"github.com/code-100-precent/LingDial/pkg/config"
	"github.com/code-100-precent/LingDial/pkg/logger"
	"github.com/code-100-precent/LingDial/pkg/middleware"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handlers struct {
	db         *gorm.DB
	registry   *call.Registry
	engineName string
}

func NewHandlers(db *gorm.DB, registry *call.Registry, engineName string) *Handlers {
	return &Handlers{
		db:         db,
		registry:   registry,
		engineName: engineName,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.Use(middleware.LoggerMiddleware(logger.Get()))

	r := engine.Group(config.GlobalConfig.APIPrefix)

	// 通话控制
	callGroup := r.Group("/call")
	{
		callGroup.POST("/make", h.MakeCall)
		callGroup.POST("/answer", h.AnswerCall)
		callGroup.POST("/hangup", h.HangupCall)
		callGroup.POST("/hold", h.HoldCall)
		callGroup.POST("/resume", h.ResumeCall)
		callGroup.POST("/mute", h.MuteCall)
		callGroup.POST("/unmute", h.UnmuteCall)
		callGroup.POST("/dtmf", h.SendDTMF)
		callGroup.GET("/status", h.CallStatus)
	}

	// 通话历史
	historyGroup := r.Group("/history")
	{
		historyGroup.GET("", h.ListHistory)
		historyGroup.GET("/:id", h.GetHistory)
		historyGroup.GET("/:id/recording", h.GetHistoryRecording)
	}

	// 联系人
	contactGroup := r.Group("/contacts")
	{
		contactGroup.GET("", h.ListContacts)
		contactGroup.POST("", h.CreateContact)
		contactGroup.GET("/:id", h.GetContact)
		contactGroup.PUT("/:id", h.UpdateContact)
		contactGroup.DELETE("/:id", h.DeleteContact)
	}

	// 系统
	r.GET("/system/health", h.HealthCheck)
}
