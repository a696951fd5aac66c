package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/code-100-precent/LingDial/internal/models"
	"github.com/code-100-precent/LingDial/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ListHistoryResponse 通话历史列表响应
type ListHistoryResponse struct {
	Total int64                `json:"total"` // 记录总数
	Items []models.CallHistory `json:"items"` // 当前页记录
}

// ListHistory 查询通话历史列表
// @Summary 查询通话历史列表
// @Description 按开始时间倒序分页返回通话历史
// @Tags History
// @Produce json
// @Param limit query int false "每页条数，默认20，最大100"
// @Param offset query int false "偏移量，默认0"
// @Success 200 {object} response.Response{data=ListHistoryResponse}
// @Router /api/history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	items, total, err := models.ListCallHistories(h.db, limit, offset)
	if err != nil {
		logrus.WithError(err).Error("Failed to list call histories")
		response.Fail(c, "Failed to list call histories", nil)
		return
	}
	response.Success(c, "Call histories", ListHistoryResponse{Total: total, Items: items})
}

// GetHistory 查询单条通话历史
// @Summary 查询单条通话历史
// @Tags History
// @Produce json
// @Param id path int true "记录ID"
// @Success 200 {object} response.Response{data=models.CallHistory}
// @Failure 404 {object} response.Response
// @Router /api/history/{id} [get]
func (h *Handlers) GetHistory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Call history not found")
		return
	}

	history, err := models.GetCallHistoryByID(h.db, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Call history not found")
			return
		}
		logrus.WithError(err).Error("Failed to get call history")
		response.Fail(c, "Failed to get call history", nil)
		return
	}
	response.Success(c, "Call history", history)
}

// GetHistoryRecording 下载通话录音
// @Summary 下载通话录音
// @Description 返回该条历史对应的录音文件
// @Tags History
// @Produce audio/wav
// @Param id path int true "记录ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Response
// @Router /api/history/{id}/recording [get]
func (h *Handlers) GetHistoryRecording(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Call history not found")
		return
	}

	history, err := models.GetCallHistoryByID(h.db, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Call history not found")
			return
		}
		logrus.WithError(err).Error("Failed to get call history")
		response.Fail(c, "Failed to get call history", nil)
		return
	}

	if history.RecordingPath == "" {
		response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Call has no recording")
		return
	}
	if _, err := os.Stat(history.RecordingPath); err != nil {
		response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Recording file is missing")
		return
	}
	c.File(history.RecordingPath)
}
