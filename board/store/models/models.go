package models

import (
	"time"

	"gorm.io/gorm"

	"hamboard/pkg/helper/gormx"
)

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Message{})
}

type Message struct {
	ID      string    `gorm:"primaryKey;size:22;check:id <> ''"`
	Created time.Time `gorm:"not null;index"`
	Author  string    `gorm:"not null;size:64;index;check:author <> ''" validate:"required,max=64"`
	Content string    `gorm:"type:text;not null;check:content <> ''" validate:"required,max=1000"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.Created.IsZero() {
		m.Created = time.Now().UTC()
	}

	return gormx.GenerateID(&m.ID)
}
