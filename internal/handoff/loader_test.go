package handoff

import (
	"context"
	"errors"
	"testing"
)

func TestContextLoaderPassesThroughSuccess(t *testing.T) {
	resp, err, cancelled := ContextLoader{}.Run(context.Background(), func(context.Context) (ModelResponse, error) {
		return ModelResponse{Text: "ok"}, nil
	})
	if cancelled || err != nil || resp.Text != "ok" {
		t.Fatalf("unexpected result: %+v %v %v", resp, err, cancelled)
	}
}

func TestContextLoaderReportsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err, cancelled := ContextLoader{}.Run(ctx, func(ctx context.Context) (ModelResponse, error) {
		return ModelResponse{}, context.Canceled
	})
	if !cancelled || err != nil {
		t.Fatalf("expected cancelled=true err=nil, got cancelled=%v err=%v", cancelled, err)
	}
}

func TestContextLoaderPassesThroughOtherErrors(t *testing.T) {
	want := errors.New("boom")
	_, err, cancelled := ContextLoader{}.Run(context.Background(), func(context.Context) (ModelResponse, error) {
		return ModelResponse{}, want
	})
	if cancelled || !errors.Is(err, want) {
		t.Fatalf("expected passthrough error, got cancelled=%v err=%v", cancelled, err)
	}
}
