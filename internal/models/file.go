package models

import "time"

type File struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Filename         string    `json:"filename"`
	Locator          string    `json:"-"`
	SizeBytes        int64     `json:"size_bytes"`
	UploadTime       time.Time `json:"upload_time"`
	ExpiryTime       time.Time `json:"expiry_time"`
	NotificationSent bool      `json:"notification_sent"`
}

func (f *File) IsExpired(now time.Time) bool {
	return now.After(f.ExpiryTime)
}

func (f *File) HoursUntilExpiry(now time.Time) float64 {
	if f.IsExpired(now) {
		return 0
	}
	return f.ExpiryTime.Sub(now).Hours()
}
