package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the minimal editor identity referenced by overrides and style memory
// approvals. Authentication lives outside this service.
type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Username  string         `gorm:"column:username;uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"column:email;uniqueIndex;not null" json:"email"`
	FullName  string         `gorm:"column:full_name" json:"full_name"`
	IsActive  bool           `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }
