package code

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSettleFirst(t *testing.T) {
	got, err := settleFirst(context.Background(), func() (Completion, error) {
		return Completion{Value: "v", Returned: true}, nil
	})
	if err != nil || got.Value != "v" {
		t.Errorf("settleFirst() = %+v, %v", got, err)
	}

	wantErr := errors.New("fail")
	_, err = settleFirst(context.Background(), func() (Completion, error) {
		return Completion{}, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("settleFirst() error = %v, want %v", err, wantErr)
	}
}

func TestSettleFirst_DeadlineWins(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	defer close(release)

	_, err := settleFirst(ctx, func() (Completion, error) {
		<-release
		return Completion{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("settleFirst() error = %v, want DeadlineExceeded", err)
	}
}
