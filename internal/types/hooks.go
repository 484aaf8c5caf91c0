package types

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// App-side UUIDs keep inserts portable across postgres and the sqlite test
// harness; the database default remains as a backstop.

func (u *User) BeforeCreate(*gorm.DB) error             { ensureID(&u.ID); return nil }
func (b *Book) BeforeCreate(*gorm.DB) error             { ensureID(&b.ID); return nil }
func (s *Segment) BeforeCreate(*gorm.DB) error          { ensureID(&s.ID); return nil }
func (e *StyleMemoryEntry) BeforeCreate(*gorm.DB) error { ensureID(&e.ID); return nil }
func (o *Override) BeforeCreate(*gorm.DB) error         { ensureID(&o.ID); return nil }
func (r *TrainingRun) BeforeCreate(*gorm.DB) error      { ensureID(&r.ID); return nil }
func (m *MetricsSnapshot) BeforeCreate(*gorm.DB) error  { ensureID(&m.ID); return nil }

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
