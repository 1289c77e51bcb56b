package model

import "time"

// Place is one configured place of worship. It is immutable once created.
type Place struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UniqueID  string    `gorm:"uniqueIndex;size:255;not null"`
	Slug      string    `gorm:"uniqueIndex;size:255;not null"`
	APIKey    string    `gorm:"column:api_key;not null"`
	Days      int       `gorm:"not null"`
	Title     string    `gorm:"size:255;not null"`
	CreatedAt time.Time `gorm:"not null"`
}
