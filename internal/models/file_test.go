package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileIsExpired(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	expired := &File{ExpiryTime: now.Add(-time.Second)}
	require.True(t, expired.IsExpired(now))

	active := &File{ExpiryTime: now.Add(time.Second)}
	require.False(t, active.IsExpired(now))

	// Dokładnie w momencie wygaśnięcia plik jeszcze żyje
	exact := &File{ExpiryTime: now}
	require.False(t, exact.IsExpired(now))
}

func TestFileHoursUntilExpiry(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	file := &File{ExpiryTime: now.Add(36 * time.Hour)}
	require.InDelta(t, 36.0, file.HoursUntilExpiry(now), 0.001)

	// Wygasły plik nigdy nie raportuje ujemnych godzin
	expired := &File{ExpiryTime: now.Add(-5 * time.Hour)}
	require.Equal(t, 0.0, expired.HoursUntilExpiry(now))
}
