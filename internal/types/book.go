package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Book struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	TitleSource string         `gorm:"column:title_source;not null" json:"title_source"`
	TitleTarget string         `gorm:"column:title_target" json:"title_target"`
	Author      string         `gorm:"column:author" json:"author"`
	Year        int            `gorm:"column:year" json:"year"`
	FilePath    string         `gorm:"column:file_path" json:"file_path"`
	FileType    string         `gorm:"column:file_type" json:"file_type"`
	Status      string         `gorm:"column:status;not null;default:'uploaded'" json:"status"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Book) TableName() string { return "book" }
