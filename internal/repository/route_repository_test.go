package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trainseat/matrix/internal/railapi"
)

type countingFetcher struct {
	calls int
	data  *railapi.TrainData
	err   error
}

func (f *countingFetcher) FetchTrainData(ctx context.Context, trainModel, apiDate string) (*railapi.TrainData, error) {
	f.calls++
	return f.data, f.err
}

func routeData() *railapi.TrainData {
	return &railapi.TrainData{
		TrainName: "SUNDARBAN EXPRESS",
		Days:      []string{"Tue"},
		Routes:    []railapi.RouteStop{{City: "Dhaka"}, {City: "Khulna"}},
	}
}

func TestCacheHitShortCircuitsUpstream(t *testing.T) {
	up := &countingFetcher{data: routeData()}
	repo, err := NewRouteRepository(up, nil, 16, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		got, err := repo.FetchTrainData(ctx, "726", "2025-07-01")
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if got.TrainName != "SUNDARBAN EXPRESS" {
			t.Fatalf("fetch %d: train_name = %q", i, got.TrainName)
		}
	}
	if up.calls != 1 {
		t.Errorf("upstream calls = %d, want 1", up.calls)
	}
}

func TestDistinctKeysFetchSeparately(t *testing.T) {
	up := &countingFetcher{data: routeData()}
	repo, _ := NewRouteRepository(up, nil, 16, time.Minute)

	ctx := context.Background()
	repo.FetchTrainData(ctx, "726", "2025-07-01")
	repo.FetchTrainData(ctx, "726", "2025-07-02")
	repo.FetchTrainData(ctx, "725", "2025-07-01")

	if up.calls != 3 {
		t.Errorf("upstream calls = %d, want 3", up.calls)
	}
}

func TestStaleEntryRefetches(t *testing.T) {
	up := &countingFetcher{data: routeData()}
	repo, _ := NewRouteRepository(up, nil, 16, 20*time.Millisecond)

	ctx := context.Background()
	repo.FetchTrainData(ctx, "726", "2025-07-01")
	time.Sleep(30 * time.Millisecond)
	repo.FetchTrainData(ctx, "726", "2025-07-01")

	if up.calls != 2 {
		t.Errorf("upstream calls = %d, want 2 after TTL expiry", up.calls)
	}
}

func TestUpstreamErrorPropagatesUncached(t *testing.T) {
	boom := errors.New("upstream down")
	up := &countingFetcher{err: boom}
	repo, _ := NewRouteRepository(up, nil, 16, time.Minute)

	ctx := context.Background()
	if _, err := repo.FetchTrainData(ctx, "726", "2025-07-01"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want upstream error", err)
	}
	if _, err := repo.FetchTrainData(ctx, "726", "2025-07-01"); !errors.Is(err, boom) {
		t.Fatalf("second err = %v, want upstream error", err)
	}
	if up.calls != 2 {
		t.Errorf("upstream calls = %d, want 2 (errors are not cached)", up.calls)
	}
}

func TestNilDataNotCached(t *testing.T) {
	up := &countingFetcher{data: nil}
	repo, _ := NewRouteRepository(up, nil, 16, time.Minute)

	ctx := context.Background()
	repo.FetchTrainData(ctx, "726", "2025-07-01")
	repo.FetchTrainData(ctx, "726", "2025-07-01")

	if up.calls != 2 {
		t.Errorf("upstream calls = %d, want 2 (empty responses are not cached)", up.calls)
	}
}
