package models

import (
	"time"
)

const (
	StatusWantToRead = "want_to_read"
	StatusReading    = "reading"
	StatusCompleted  = "completed"
)

func ValidStatus(status string) bool {
	switch status {
	case StatusWantToRead, StatusReading, StatusCompleted:
		return true
	}
	return false
}

type Book struct {
	ID           uint   `gorm:"primaryKey"`
	BookUid      string `gorm:"type:uuid;uniqueIndex;not null"`
	Title        string `gorm:"size:200;not null"`
	Author       string `gorm:"size:200;not null"`
	ISBN         string `gorm:"size:13"`
	TotalPages   int    `gorm:"not null;check:total_pages > 0"`
	CurrentPage  int    `gorm:"not null;default:0"`
	Status       string `gorm:"size:20;not null;default:'want_to_read'"`
	DateAdded    time.Time
	DateStarted  *time.Time
	DateFinished *time.Time
	Rating       *int `gorm:"check:rating >= 1 AND rating <= 5"`
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ReadingSession struct {
	ID         uint      `gorm:"primaryKey"`
	SessionUid string    `gorm:"type:uuid;uniqueIndex;not null"`
	BookID     uint      `gorm:"not null;index"`
	StartTime  time.Time `gorm:"not null"`
	EndTime    *time.Time
	PagesRead  int `gorm:"not null;default:0;check:pages_read >= 0"`
	Notes      string
	CreatedAt  time.Time

	Book Book `gorm:"foreignKey:BookID;constraint:OnDelete:CASCADE"`
}

// DurationMinutes is only defined once the session has ended.
func (s *ReadingSession) DurationMinutes() *int {
	if s.EndTime == nil {
		return nil
	}
	minutes := int(s.EndTime.Sub(s.StartTime).Minutes())
	return &minutes
}

// IsActive reports whether the session is still ongoing.
func (s *ReadingSession) IsActive() bool {
	return s.EndTime == nil
}
