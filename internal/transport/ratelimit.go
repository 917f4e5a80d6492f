package transport

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiter はホストごとのレートリミッターとアクセス時刻を保持する。
type hostLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// HostLimiter は同一ホストへのリクエスト間隔を制限する。
// 巡回対象が同じサイトの複数フィードを含む場合に、相手サーバーへの負荷を抑える。
type HostLimiter struct {
	rate  rate.Limit
	burst int
	ttl   time.Duration

	mu       sync.Mutex
	limiters map[string]*hostLimiter

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHostLimiter はperSecond回/秒のHostLimiterを生成する。
// perSecondが0以下の場合は制限しない。
// バックグラウンドで一定時間アクセスのないホストのエントリを削除する。
func NewHostLimiter(perSecond float64, cleanupInterval time.Duration) *HostLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}

	hl := &HostLimiter{
		rate:     limit,
		burst:    1,
		ttl:      cleanupInterval * 2,
		limiters: make(map[string]*hostLimiter),
		stopCh:   make(chan struct{}),
	}

	go hl.cleanupLoop(cleanupInterval)

	return hl
}

// Wait はhostへのリクエストが許可されるまで待つ。ctxがキャンセルされた場合はエラーを返す。
func (hl *HostLimiter) Wait(ctx context.Context, host string) error {
	return hl.get(host).Wait(ctx)
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (hl *HostLimiter) Stop() {
	hl.stopOnce.Do(func() { close(hl.stopCh) })
}

// Len は現在管理しているホスト数を返す。
func (hl *HostLimiter) Len() int {
	hl.mu.Lock()
	defer hl.mu.Unlock()
	return len(hl.limiters)
}

func (hl *HostLimiter) get(host string) *rate.Limiter {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	if hl.limiters[host] == nil {
		hl.limiters[host] = &hostLimiter{limiter: rate.NewLimiter(hl.rate, hl.burst)}
	}
	entry := hl.limiters[host]
	entry.lastAccess = time.Now()
	return entry.limiter
}

func (hl *HostLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hl.cleanup(time.Now())
		case <-hl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからttlを超えたエントリを削除する。
func (hl *HostLimiter) cleanup(now time.Time) {
	hl.mu.Lock()
	defer hl.mu.Unlock()

	for host, entry := range hl.limiters {
		if now.Sub(entry.lastAccess) > hl.ttl {
			delete(hl.limiters, host)
		}
	}
}
