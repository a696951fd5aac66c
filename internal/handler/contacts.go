package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/code-100-precent/LingDial/internal/models"
	"github.com/code-100-precent/LingDial/pkg/response"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ContactRequest 联系人创建/更新请求
type ContactRequest struct {
	Name        string `json:"name" binding:"required"`   // 联系人名称
	SipURI      string `json:"sipUri" binding:"required"` // SIP地址，唯一
	PhoneNumber string `json:"phoneNumber,omitempty"`     // 电话号码
	Email       string `json:"email,omitempty"`           // 邮箱
	Notes       string `json:"notes,omitempty"`           // 备注
}

// ListContacts 查询联系人列表
// @Summary 查询联系人列表
// @Tags Contacts
// @Produce json
// @Success 200 {object} response.Response{data=[]models.Contact}
// @Router /api/contacts [get]
func (h *Handlers) ListContacts(c *gin.Context) {
	contacts, err := models.ListContacts(h.db)
	if err != nil {
		logrus.WithError(err).Error("Failed to list contacts")
		response.Fail(c, "Failed to list contacts", nil)
		return
	}
	response.Success(c, "Contacts", contacts)
}

// CreateContact 创建联系人
// @Summary 创建联系人
// @Tags Contacts
// @Accept json
// @Produce json
// @Param request body ContactRequest true "联系人"
// @Success 200 {object} response.Response{data=models.Contact}
// @Failure 400 {object} response.Response
// @Router /api/contacts [post]
func (h *Handlers) CreateContact(c *gin.Context) {
	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "Invalid request: "+err.Error(), nil)
		return
	}

	contact := &models.Contact{
		Name:        req.Name,
		SipURI:      req.SipURI,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Notes:       req.Notes,
	}
	if err := models.CreateContact(h.db, contact); err != nil {
		if isUniqueViolation(err) {
			response.Fail(c, "Contact with this SIP URI already exists", nil)
			return
		}
		logrus.WithError(err).Error("Failed to create contact")
		response.Fail(c, "Failed to create contact", nil)
		return
	}
	response.Success(c, "Contact created", contact)
}

// GetContact 查询单个联系人
// @Summary 查询单个联系人
// @Tags Contacts
// @Produce json
// @Param id path int true "联系人ID"
// @Success 200 {object} response.Response{data=models.Contact}
// @Failure 404 {object} response.Response
// @Router /api/contacts/{id} [get]
func (h *Handlers) GetContact(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Contact not found")
		return
	}

	contact, err := models.GetContactByID(h.db, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Contact not found")
			return
		}
		logrus.WithError(err).Error("Failed to get contact")
		response.Fail(c, "Failed to get contact", nil)
		return
	}
	response.Success(c, "Contact", contact)
}

// UpdateContact 更新联系人
// @Summary 更新联系人
// @Tags Contacts
// @Accept json
// @Produce json
// @Param id path int true "联系人ID"
// @Param request body ContactRequest true "联系人"
// @Success 200 {object} response.Response{data=models.Contact}
// @Failure 404 {object} response.Response
// @Router /api/contacts/{id} [put]
func (h *Handlers) UpdateContact(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Contact not found")
		return
	}

	contact, err := models.GetContactByID(h.db, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Contact not found")
			return
		}
		logrus.WithError(err).Error("Failed to get contact")
		response.Fail(c, "Failed to get contact", nil)
		return
	}

	var req ContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, "Invalid request: "+err.Error(), nil)
		return
	}

	contact.Name = req.Name
	contact.SipURI = req.SipURI
	contact.PhoneNumber = req.PhoneNumber
	contact.Email = req.Email
	contact.Notes = req.Notes
	if err := models.UpdateContact(h.db, contact); err != nil {
		if isUniqueViolation(err) {
			response.Fail(c, "Contact with this SIP URI already exists", nil)
			return
		}
		logrus.WithError(err).Error("Failed to update contact")
		response.Fail(c, "Failed to update contact", nil)
		return
	}
	response.Success(c, "Contact updated", contact)
}

// DeleteContact 删除联系人
// @Summary 删除联系人
// @Tags Contacts
// @Produce json
// @Param id path int true "联系人ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/contacts/{id} [delete]
func (h *Handlers) DeleteContact(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Contact not found")
		return
	}

	if _, err := models.GetContactByID(h.db, uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.FailWithReason(c, http.StatusNotFound, ReasonNotFound, "Contact not found")
			return
		}
		logrus.WithError(err).Error("Failed to get contact")
		response.Fail(c, "Failed to get contact", nil)
		return
	}

	if err := models.DeleteContact(h.db, uint(id)); err != nil {
		logrus.WithError(err).Error("Failed to delete contact")
		response.Fail(c, "Failed to delete contact", nil)
		return
	}
	response.Success(c, "Contact deleted", nil)
}

// isUniqueViolation 判断是否唯一索引冲突，不同驱动返回的错误文本不同
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
