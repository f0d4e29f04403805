package models

import "time"

// Временные метки принадлежат основному хранилищу, поэтому gorm их не трогает.

// Event представляет событие в системе
type Event struct {
	ID          string     `json:"id" gorm:"primaryKey;type:text" validate:"required"`
	Name        string     `json:"name" gorm:"not null" validate:"required,max=255"`
	Description string     `json:"description"`
	CategoryID  string     `json:"category_id" gorm:"index" validate:"required"`
	Date        string     `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time        string     `json:"time" validate:"omitempty,datetime=15:04"`
	Location    string     `json:"location"`
	Price       float32    `json:"price" validate:"gte=0"`
	Image       string     `json:"image"`
	Source      string     `json:"source"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" gorm:"autoUpdateTime:false"`
}

func (e Event) GetID() string { return e.ID }

func (Event) TableName() string { return "events" }

// Category представляет категорию событий
type Category struct {
	ID        string    `json:"id" gorm:"primaryKey;type:text" validate:"required"`
	Name      string    `json:"name" gorm:"not null;uniqueIndex" validate:"required,max=100"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`
}

func (c Category) GetID() string { return c.ID }

func (Category) TableName() string { return "categories" }

const (
	EntityEvent    = "events"
	EntityCategory = "categories"
)
