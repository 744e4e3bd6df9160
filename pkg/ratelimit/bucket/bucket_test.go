package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/vnykmshr/cardflow/internal/testutil"
	cferrors "github.com/vnykmshr/cardflow/pkg/common/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		rate    Limit
		burst   int
		wantErr bool
	}{
		{"valid parameters", 10, 5, false},
		{"infinite rate", Inf, 5, false},
		{"zero rate", 0, 5, true},
		{"negative rate", -1, 5, true},
		{"zero burst", 10, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limiter, err := New(Config{Rate: tt.rate, Burst: tt.burst})
			if tt.wantErr {
				testutil.AssertError(t, err)
				testutil.AssertEqual(t, cferrors.IsValidationError(err), true)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, limiter.Limit(), tt.rate)
			testutil.AssertEqual(t, limiter.Burst(), tt.burst)
			testutil.AssertEqual(t, limiter.Tokens(), float64(tt.burst))
		})
	}
}

func TestAllowRefills(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	limiter, err := New(Config{Rate: 2, Burst: 2, Clock: clock})
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, limiter.Allow(), true)
	testutil.AssertEqual(t, limiter.Allow(), true)
	testutil.AssertEqual(t, limiter.Allow(), false)

	clock.Advance(500 * time.Millisecond)
	testutil.AssertEqual(t, limiter.Allow(), true)
	testutil.AssertEqual(t, limiter.Allow(), false)

	clock.Advance(time.Hour)
	testutil.AssertEqual(t, limiter.Tokens(), float64(2))
}

func TestInfAlwaysAllows(t *testing.T) {
	limiter, err := New(Config{Rate: Inf, Burst: 1})
	testutil.AssertNoError(t, err)
	for i := 0; i < 100; i++ {
		if !limiter.Allow() {
			t.Fatalf("event %d denied", i)
		}
	}
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	limiter, err := New(Config{Rate: Every(30 * time.Millisecond), Burst: 1})
	testutil.AssertNoError(t, err)

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	testutil.AssertNoError(t, limiter.Wait(ctx))
	start := time.Now()
	testutil.AssertNoError(t, limiter.Wait(ctx))
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("second wait returned after %v", elapsed)
	}
}

func TestWaitCanceledGivesTokenBack(t *testing.T) {
	clock := testutil.NewMockClock(time.Time{})
	limiter, err := New(Config{Rate: Every(time.Hour), Burst: 1, Clock: clock})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, limiter.Allow(), true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	testutil.AssertError(t, limiter.Wait(ctx))

	testutil.AssertEqual(t, limiter.Tokens(), float64(0))
}

func TestEvery(t *testing.T) {
	testutil.AssertEqual(t, Every(100*time.Millisecond), Limit(10))
	testutil.AssertEqual(t, Every(0), Inf)
}
