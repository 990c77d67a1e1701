package parallel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_TypedResults(t *testing.T) {
	ctx := context.Background()

	addr := func(ctx context.Context) (string, error) {
		return ":8080", nil
	}
	port := func(ctx context.Context) (int, error) {
		return 8081, nil
	}

	results := NewBuilder().
		Add("addr", func(ctx context.Context) (any, error) { return addr(ctx) }).
		Add("port", func(ctx context.Context) (any, error) { return port(ctx) }).
		Run(ctx)

	gotAddr, err := Get(results, "addr", addr)
	assert.NoError(t, err)
	assert.Equal(t, ":8080", gotAddr)

	gotPort, err := Get(results, "port", port)
	assert.NoError(t, err)
	assert.Equal(t, 8081, gotPort)

	assert.NoError(t, results.Err())
}

func TestBuilder_ErrorsAreJoinedInKeyOrder(t *testing.T) {
	results := NewBuilder().
		Add("widget", func(ctx context.Context) (any, error) { return nil, errors.New("address in use") }).
		Add("mock_api", func(ctx context.Context) (any, error) { return nil, errors.New("redis down") }).
		Add("ok", func(ctx context.Context) (any, error) { return "fine", nil }).
		Run(context.Background())

	err := results.Err()
	require.Error(t, err)
	assert.Equal(t, "mock_api: redis down\nwidget: address in use", err.Error())

	_, err = Get(results, "widget", func(ctx context.Context) (any, error) { return nil, nil })
	assert.ErrorContains(t, err, "address in use")
}

func TestBuilder_CancelOnError(t *testing.T) {
	start := time.Now()

	results := NewBuilder().
		CancelOnError().
		Add("listener", func(ctx context.Context) (any, error) {
			select {
			case <-ctx.Done():
				return nil, nil
			case <-time.After(5 * time.Second):
				return nil, errors.New("not cancelled")
			}
		}).
		Add("broken", func(ctx context.Context) (any, error) {
			return nil, errors.New("bind failed")
		}).
		Run(context.Background())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.NoError(t, results["listener"].Error)
	assert.EqualError(t, results.Err(), "broken: bind failed")
}

func TestBuilder_ParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Results)
	go func() {
		done <- NewBuilder().
			Add("a", func(ctx context.Context) (any, error) { <-ctx.Done(); return "a", nil }).
			Add("b", func(ctx context.Context) (any, error) { <-ctx.Done(); return "b", nil }).
			Run(ctx)
	}()

	cancel()
	select {
	case results := <-done:
		assert.Len(t, results, 2)
		assert.NoError(t, results.Err())
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not stop")
	}
}

func TestBuilder_Concurrency(t *testing.T) {
	start := time.Now()

	slow := func(ctx context.Context) (any, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, nil
	}
	NewBuilder().Add("one", slow).Add("two", slow).Run(context.Background())

	assert.Less(t, time.Since(start), 190*time.Millisecond)
}

func TestBuilder_PanicBecomesError(t *testing.T) {
	results := NewBuilder().
		Add("boom", func(ctx context.Context) (any, error) { panic("nil handler") }).
		Run(context.Background())

	assert.ErrorContains(t, results["boom"].Error, "task panicked: nil handler")
}

func TestGet_Failures(t *testing.T) {
	fetcher := func(ctx context.Context) (string, error) {
		return "test", nil
	}

	_, err := Get(Results{}, "missing", fetcher)
	assert.EqualError(t, err, "no result found for key: missing")

	result, err := Get(Results{"key": {Value: 42}}, "key", fetcher)
	assert.Equal(t, "", result)
	assert.ErrorContains(t, err, "type assertion failed")
}

func TestBuilder_Empty(t *testing.T) {
	results := NewBuilder().Run(context.Background())
	assert.Empty(t, results)
	assert.NoError(t, results.Err())
}
