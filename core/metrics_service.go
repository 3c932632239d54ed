package core

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis counter keys for the auth metrics.
const (
	metricLoginSuccessKey = "metrics:login_success_total"
	metricLoginFailureKey = "metrics:login_failure_total"
	metricSignupKey       = "metrics:signup_total"
)

// AuthMetrics は認証まわりの集計値を表す。
type AuthMetrics struct {
	LoginSuccessTotal int64 `json:"login_success_total"`
	LoginFailureTotal int64 `json:"login_failure_total"`
	SignupTotal       int64 `json:"signup_total"`
	ActiveSessions    int64 `json:"active_sessions"`
}

// MetricsService は Redis からログイン/サインアップ件数とアクティブセッション数を取得する。
type MetricsService struct {
	redis RedisClientRaw
}

func NewMetricsService(redis RedisClientRaw) *MetricsService {
	return &MetricsService{redis: redis}
}

// RecordLogin increments the success or failure counter. Best-effort:
// metrics never fail a login.
func (s *MetricsService) RecordLogin(ctx context.Context, ok bool) {
	key := metricLoginFailureKey
	if ok {
		key = metricLoginSuccessKey
	}
	_ = s.redis.Incr(ctx, key).Err()
}

// RecordSignup increments the signup counter.
func (s *MetricsService) RecordSignup(ctx context.Context) {
	_ = s.redis.Incr(ctx, metricSignupKey).Err()
}

// Overview はカウンタとアクティブセッション数をまとめて返す。
func (s *MetricsService) Overview(ctx context.Context) (AuthMetrics, error) {
	var m AuthMetrics
	var err error
	if m.LoginSuccessTotal, err = s.counter(ctx, metricLoginSuccessKey); err != nil {
		return AuthMetrics{}, err
	}
	if m.LoginFailureTotal, err = s.counter(ctx, metricLoginFailureKey); err != nil {
		return AuthMetrics{}, err
	}
	if m.SignupTotal, err = s.counter(ctx, metricSignupKey); err != nil {
		return AuthMetrics{}, err
	}
	if m.ActiveSessions, err = s.ActiveSessions(ctx); err != nil {
		return AuthMetrics{}, err
	}
	return m, nil
}

// ActiveSessions は Redis に残っているセッションキーを数える。
func (s *MetricsService) ActiveSessions(ctx context.Context) (int64, error) {
	iter := s.redis.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	var count int64
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *MetricsService) counter(ctx context.Context, key string) (int64, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, nil
	}
	return n, nil
}
