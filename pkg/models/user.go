package models

import (
	"time"
)

type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"email"`
	FirstName string    `gorm:"type:varchar(150)" json:"first_name"`
	LastName  string    `gorm:"type:varchar(150)" json:"last_name"`
	Password  string    `gorm:"type:varchar(255);not null" json:"-"` // bcrypt hash
	IsActive  bool      `gorm:"not null" json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (User) TableName() string {
	return "users"
}
