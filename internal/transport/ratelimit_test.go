package transport

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiter_SeparatesHosts(t *testing.T) {
	hl := NewHostLimiter(1, time.Minute)
	defer hl.Stop()

	ctx := context.Background()
	if err := hl.Wait(ctx, "a.example"); err != nil {
		t.Fatalf("Wait がエラーを返した: %v", err)
	}
	// 別ホストは独立したトークンを持つため待たない
	start := time.Now()
	if err := hl.Wait(ctx, "b.example"); err != nil {
		t.Fatalf("Wait がエラーを返した: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("別ホストのWaitで待たされた: %v", elapsed)
	}
	if hl.Len() != 2 {
		t.Errorf("ホスト数: got %d, want 2", hl.Len())
	}
}

func TestHostLimiter_WaitHonorsContext(t *testing.T) {
	hl := NewHostLimiter(0.001, time.Minute)
	defer hl.Stop()

	if err := hl.Wait(context.Background(), "a.example"); err != nil {
		t.Fatalf("1回目のWait がエラーを返した: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := hl.Wait(ctx, "a.example"); err == nil {
		t.Error("トークン不足のWaitがコンテキスト期限内に成功した")
	}
}

func TestHostLimiter_Unlimited(t *testing.T) {
	hl := NewHostLimiter(0, time.Minute)
	defer hl.Stop()

	for i := 0; i < 100; i++ {
		if err := hl.Wait(context.Background(), "a.example"); err != nil {
			t.Fatalf("Wait がエラーを返した: %v", err)
		}
	}
}

func TestHostLimiter_Cleanup(t *testing.T) {
	hl := NewHostLimiter(1, time.Minute)
	defer hl.Stop()

	hl.Wait(context.Background(), "a.example")
	hl.cleanup(time.Now())
	if hl.Len() != 1 {
		t.Fatalf("アクセス直後のエントリが削除された")
	}

	hl.cleanup(time.Now().Add(3 * time.Minute))
	if hl.Len() != 0 {
		t.Errorf("期限切れエントリが残っている: %d", hl.Len())
	}
}

func TestHostLimiter_StopIsIdempotent(t *testing.T) {
	hl := NewHostLimiter(1, time.Minute)
	hl.Stop()
	hl.Stop()
}
