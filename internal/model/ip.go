package model

import "time"

// IPRecord stores the last observed public IP address so the monitor can
// detect changes across restarts.
type IPRecord struct {
	ID      uint `gorm:"primaryKey"`
	Address string
	SeenAt  time.Time
}
