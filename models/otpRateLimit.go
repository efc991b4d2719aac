package models

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	otpHourWindow = time.Hour
	otpDayWindow  = 24 * time.Hour
)

// OtpRateLimiter counts OTP requests per phone over a rolling hour and a
// rolling day. Each phone keeps a log of accepted request times: a redis
// sorted set, or an in-process log while redis is unavailable.
type OtpRateLimiter struct {
	MaxPerHour int
	MaxPerDay  int
	// Now is the clock; nil means time.Now.
	Now func() time.Time

	fallback *requestLog
}

func NewOtpRateLimiter() *OtpRateLimiter {
	return &OtpRateLimiter{
		MaxPerHour: config.IntFromEnv("OTP_MAX_PER_HOUR", 3),
		MaxPerDay:  config.IntFromEnv("OTP_MAX_PER_DAY", 6),
		fallback:   newRequestLog(),
	}
}

// KEYS[1] log key; ARGV: now ms, hour ms, day ms, max/hour, max/day, member.
// Entries older than a day are trimmed; a denied request is not recorded.
var otpRateLimitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local hour = tonumber(ARGV[2])
local day = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - day)
local inHour = redis.call('ZCOUNT', KEYS[1], '(' .. (now - hour), '+inf')
local inDay = redis.call('ZCARD', KEYS[1])
if inHour >= tonumber(ARGV[4]) or inDay >= tonumber(ARGV[5]) then
	return 0
end
redis.call('ZADD', KEYS[1], now, ARGV[6])
redis.call('PEXPIRE', KEYS[1], day)
return 1
`)

func otpRateLimitKey(phone string) string {
	return "otp:rl:" + phone
}

// Allow reports whether phone is within both windows and, if so, records
// the request.
func (l *OtpRateLimiter) Allow(ctx context.Context, phone string) bool {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		n, err := otpRateLimitScript.Run(ctx, rdb, []string{otpRateLimitKey(phone)},
			now.UnixMilli(),
			otpHourWindow.Milliseconds(),
			otpDayWindow.Milliseconds(),
			l.MaxPerHour,
			l.MaxPerDay,
			uuid.NewString(),
		).Int64()
		if err == nil {
			return n == 1
		}
		config.GetLogger().WithField("phone", phone).Warnf("otp rate limit: redis unavailable, using local log: %v", err)
	}
	if l.fallback == nil {
		l.fallback = newRequestLog()
	}
	return l.fallback.Allow(phone, now, l.MaxPerHour, l.MaxPerDay)
}

type requestLog struct {
	mu    sync.Mutex
	times map[string][]time.Time
}

func newRequestLog() *requestLog {
	return &requestLog{times: make(map[string][]time.Time)}
}

func (r *requestLog) Allow(key string, now time.Time, maxPerHour, maxPerDay int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	dayCut := now.Add(-otpDayWindow)
	for k, ts := range r.times {
		kept := ts[:0]
		for _, t := range ts {
			if t.After(dayCut) {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(r.times, k)
			continue
		}
		r.times[k] = kept
	}

	hourCut := now.Add(-otpHourWindow)
	inHour := 0
	for _, t := range r.times[key] {
		if t.After(hourCut) {
			inHour++
		}
	}
	if inHour >= maxPerHour || len(r.times[key]) >= maxPerDay {
		return false
	}
	r.times[key] = append(r.times[key], now)
	return true
}
