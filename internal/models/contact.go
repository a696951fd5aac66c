package models

import (
	"time"

	"gorm.io/gorm"
)

// Contact 联系人表
type Contact struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
	DeletedAt *time.Time `json:"-" gorm:"index"`

	Name        string `json:"name" gorm:"size:128;not null"`           // 联系人姓名
	SipURI      string `json:"sipUri" gorm:"size:256;uniqueIndex"`      // SIP地址，唯一
	PhoneNumber string `json:"phoneNumber,omitempty" gorm:"size:64"`    // 电话号码
	Email       string `json:"email,omitempty" gorm:"size:128"`         // 邮箱
	Notes       string `json:"notes,omitempty" gorm:"type:text"`        // 备注
}

// TableName 指定表名
func (Contact) TableName() string {
	return "contacts"
}

// CreateContact 创建联系人
func CreateContact(db *gorm.DB, contact *Contact) error {
	return db.Create(contact).Error
}

// GetContactByID 根据ID获取联系人
func GetContactByID(db *gorm.DB, id uint) (*Contact, error) {
	var contact Contact
	err := db.First(&contact, id).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetContactBySipURI 根据SIP地址获取联系人
func GetContactBySipURI(db *gorm.DB, sipURI string) (*Contact, error) {
	var contact Contact
	err := db.Where("sip_uri = ?", sipURI).First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// ListContacts 获取联系人列表，按姓名排序
func ListContacts(db *gorm.DB) ([]Contact, error) {
	var contacts []Contact
	err := db.Order("name ASC").Find(&contacts).Error
	return contacts, err
}

// UpdateContact 更新联系人
func UpdateContact(db *gorm.DB, contact *Contact) error {
	return db.Save(contact).Error
}

// DeleteContact 删除联系人
func DeleteContact(db *gorm.DB, id uint) error {
	return db.Delete(&Contact{}, id).Error
}
