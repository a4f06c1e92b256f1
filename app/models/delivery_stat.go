package models

import "time"

// DeliveryStat aggregates per-route delivery counters flushed from redis.
type DeliveryStat struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Route     string    `gorm:"type:varchar(30);not null;uniqueIndex" json:"route"`
	Delivered int64     `gorm:"not null;default:0" json:"delivered"`
	Failed    int64     `gorm:"not null;default:0" json:"failed"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
