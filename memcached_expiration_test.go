package storesession

import (
	"testing"
	"time"
)

func TestCalculateMemcachedExpiration(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Sessions written by a controller expire GCLifetime after the write.
	policy := func(minutes int) time.Time {
		return now.Add(Config{ExpirationMinutes: minutes}.GCLifetime())
	}

	tests := []struct {
		name      string
		expiresAt time.Time
		ttl       time.Duration
		want      int32
	}{
		{name: "no expiration policy", expiresAt: policy(0), want: 1440},
		{name: "20 minute policy", expiresAt: policy(20), want: 20 * 60},
		{name: "30 day policy stays relative", expiresAt: policy(30 * 24 * 60), want: 30 * 24 * 3600},
		{name: "45 day policy becomes absolute", expiresAt: policy(45 * 24 * 60), want: int32(policy(45 * 24 * 60).Unix())},
		{name: "store TTL without session expiry", ttl: 2 * time.Hour, want: 7200},
		{name: "long store TTL becomes absolute", ttl: 31 * 24 * time.Hour, want: int32(now.Add(31 * 24 * time.Hour).Unix())},
		{name: "session expiry wins over store TTL", expiresAt: policy(20), ttl: 24 * time.Hour, want: 20 * 60},
		{name: "sub-second remainder rounds up", expiresAt: now.Add(500 * time.Millisecond), want: 1},
		{name: "already expired", expiresAt: now.Add(-time.Second), want: -1},
		{name: "no expiry at all", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calculateMemcachedExpiration(now, tt.expiresAt, tt.ttl)
			if got != tt.want {
				t.Errorf("calculateMemcachedExpiration() = %d, want %d", got, tt.want)
			}
		})
	}
}
