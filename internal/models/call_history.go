package models

import (
	"time"

	"gorm.io/gorm"
)

// CallStatus 通话状态
type CallStatus string

const (
	CallStatusCalling  CallStatus = "calling"  // 呼叫中
	CallStatusRinging  CallStatus = "ringing"  // 响铃中
	CallStatusAnswered CallStatus = "answered" // 已接通
	CallStatusEnded    CallStatus = "ended"    // 已结束
	CallStatusFailed   CallStatus = "failed"   // 失败
)

// CallDirection 通话方向
type CallDirection string

const (
	CallDirectionInbound  CallDirection = "inbound"  // 呼入
	CallDirectionOutbound CallDirection = "outbound" // 呼出
)

// CallHistory 通话历史记录表
type CallHistory struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt *time.Time `json:"-" gorm:"index"`

	// 通话基本信息
	CallID    string        `json:"callId" gorm:"size:128;index;not null"` // 引擎通话ID
	RemoteURI string        `json:"remoteUri" gorm:"size:256"`             // 对端URI
	Direction CallDirection `json:"direction" gorm:"size:20;index"`        // 通话方向
	Status    CallStatus    `json:"status" gorm:"size:20;index"`           // 通话状态

	// 时间信息
	StartTime   time.Time  `json:"startTime" gorm:"index"`    // 开始时间
	ConnectTime *time.Time `json:"connectTime,omitempty"`     // 接通时间
	EndTime     *time.Time `json:"endTime,omitempty"`         // 结束时间
	Duration    int        `json:"duration" gorm:"default:0"` // 通话时长（秒），未接通为0

	// 录音与AI分析结果，未产生时均为空
	RecordingPath  string  `json:"recordingPath,omitempty" gorm:"size:500"` // 录音文件路径
	Transcript     string  `json:"transcript,omitempty" gorm:"type:text"`   // 转写文本
	Sentiment      string  `json:"sentiment,omitempty" gorm:"size:64"`      // 情感标签
	SentimentScore float64 `json:"sentimentScore,omitempty"`                // 情感置信度
	Summary        string  `json:"summary,omitempty" gorm:"type:text"`      // 通话摘要

	Notes string `json:"notes,omitempty" gorm:"type:text"` // 备注
}

// TableName 指定表名
func (CallHistory) TableName() string {
	return "call_histories"
}

// CreateCallHistory 创建通话历史记录
func CreateCallHistory(db *gorm.DB, record *CallHistory) error {
	return db.Create(record).Error
}

// GetCallHistoryByID 根据ID获取通话记录
func GetCallHistoryByID(db *gorm.DB, id uint) (*CallHistory, error) {
	var record CallHistory
	err := db.First(&record, id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetCallHistoryByCallID 根据引擎CallID获取通话记录
func GetCallHistoryByCallID(db *gorm.DB, callID string) (*CallHistory, error) {
	var record CallHistory
	err := db.Where("call_id = ?", callID).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateCallHistory 更新通话历史记录
func UpdateCallHistory(db *gorm.DB, record *CallHistory) error {
	return db.Save(record).Error
}

// UpdateCallHistoryFields 按字段更新通话历史记录，各分析阶段独立落库时使用
func UpdateCallHistoryFields(db *gorm.DB, id uint, fields map[string]any) error {
	return db.Model(&CallHistory{}).Where("id = ?", id).Updates(fields).Error
}

// ListCallHistories 分页获取通话记录列表，按开始时间倒序
func ListCallHistories(db *gorm.DB, limit, offset int) ([]CallHistory, int64, error) {
	var records []CallHistory
	var total int64
	if err := db.Model(&CallHistory{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query := db.Order("start_time DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	err := query.Find(&records).Error
	return records, total, err
}
