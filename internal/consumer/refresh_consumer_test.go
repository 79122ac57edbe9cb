package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"badgewatch/internal/aggregator"
	"badgewatch/internal/streams"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeStreamClient models one consumer of a group: Read delivers new
// entries and adds them to the pending list, Ack removes them.
type fakeStreamClient struct {
	mu           sync.Mutex
	groupErr     error
	batches      [][]streams.Message
	readErrs     []error
	pending      []streams.Message
	acked        []string
	readCalls    int
	pendingCalls int
	onDrained    func()
}

func (f *fakeStreamClient) EnsureGroup(ctx context.Context, stream, group string) error {
	return f.groupErr
}

func (f *fakeStreamClient) Read(ctx context.Context, stream, group, consumer string, count int64) ([]streams.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	if len(f.readErrs) > 0 {
		err := f.readErrs[0]
		f.readErrs = f.readErrs[1:]
		return nil, err
	}
	if len(f.batches) > 0 {
		batch := f.batches[0]
		f.batches = f.batches[1:]
		f.pending = append(f.pending, batch...)
		return batch, nil
	}
	if f.onDrained != nil {
		f.onDrained()
	}
	return nil, nil
}

func (f *fakeStreamClient) ReadPending(ctx context.Context, stream, group, consumer string, count int64) ([]streams.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pendingCalls++
	n := len(f.pending)
	if count > 0 && int64(n) > count {
		n = int(count)
	}
	return append([]streams.Message(nil), f.pending[:n]...), nil
}

func (f *fakeStreamClient) Ack(ctx context.Context, stream, group string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	for _, id := range ids {
		for i := range f.pending {
			if f.pending[i].ID == id {
				f.pending = append(f.pending[:i], f.pending[i+1:]...)
				break
			}
		}
	}
	return nil
}

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) RefreshAll(ctx context.Context, trigger string) error {
	args := m.Called(trigger)
	return args.Error(0)
}

func (m *mockRefresher) RefreshMonth(ctx context.Context, trigger, monthKey string) error {
	args := m.Called(trigger, monthKey)
	return args.Error(0)
}

func newTestConsumer(client StreamClient, refresher Refresher) *RefreshConsumer {
	c := NewRefreshConsumer(client, refresher, zap.NewNop(), "badgewatch:refresh", "g", "c", 10)
	c.sleep = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }
	return c
}

func TestParseRefreshRequest(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]interface{}
		want    RefreshRequest
		wantErr bool
	}{
		{
			name:   "data field",
			values: map[string]interface{}{"data": `{"month_key":"2024-02","request_id":"r1"}`},
			want:   RefreshRequest{MonthKey: "2024-02", RequestID: "r1"},
		},
		{
			name:   "flat fields",
			values: map[string]interface{}{"month_key": "2024-01", "request_id": "r2"},
			want:   RefreshRequest{MonthKey: "2024-01", RequestID: "r2"},
		},
		{
			name:   "empty data means all months",
			values: map[string]interface{}{"data": `{}`},
			want:   RefreshRequest{},
		},
		{
			name:    "bad json",
			values:  map[string]interface{}{"data": `{not json`},
			wantErr: true,
		},
		{
			name:    "no usable fields",
			values:  map[string]interface{}{"other": "x"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRefreshRequest(streams.Message{ID: "1-0", Values: tt.values})
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, errInvalidRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, *req)
		})
	}
}

func TestConsumeBatch_Dispatch(t *testing.T) {
	client := &fakeStreamClient{
		batches: [][]streams.Message{{
			{ID: "1-0", Values: map[string]interface{}{"data": `{"month_key":"2024-02"}`}},
			{ID: "2-0", Values: map[string]interface{}{"data": `{"request_id":"all"}`}},
		}},
	}
	refresher := &mockRefresher{}
	refresher.On("RefreshMonth", TriggerEvents, "2024-02").Return(nil).Once()
	refresher.On("RefreshAll", TriggerEvents).Return(nil).Once()

	c := newTestConsumer(client, refresher)
	require.NoError(t, c.consumeBatch(context.Background()))

	refresher.AssertExpectations(t)
	assert.Equal(t, []string{"1-0", "2-0"}, client.acked)
}

func TestConsumeBatch_AckPolicy(t *testing.T) {
	client := &fakeStreamClient{
		batches: [][]streams.Message{{
			{ID: "1-0", Values: map[string]interface{}{"month_key": "2024-13"}},
			{ID: "2-0", Values: map[string]interface{}{"month_key": "2024-01"}},
			{ID: "3-0", Values: map[string]interface{}{"data": "garbage"}},
		}},
	}
	refresher := &mockRefresher{}
	refresher.On("RefreshMonth", TriggerEvents, "2024-13").
		Return(aggregator.ErrInvalidMonthKey).Once()
	refresher.On("RefreshMonth", TriggerEvents, "2024-01").
		Return(errors.New("redis down")).Once()

	c := newTestConsumer(client, refresher)
	err := c.consumeBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 refresh requests failed")

	// invalid requests are dropped, transient failures stay pending
	assert.Equal(t, []string{"1-0", "3-0"}, client.acked)
	require.Len(t, client.pending, 1)
	assert.Equal(t, "2-0", client.pending[0].ID)
	refresher.AssertExpectations(t)
}

func TestStart_GroupError(t *testing.T) {
	client := &fakeStreamClient{groupErr: errors.New("NOAUTH")}
	c := newTestConsumer(client, &mockRefresher{})

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create consumer group")
}

func TestStart_RetriesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeStreamClient{
		readErrs: []error{errors.New("timeout"), errors.New("timeout")},
		batches: [][]streams.Message{{
			{ID: "1-0", Values: map[string]interface{}{"month_key": "2024-02"}},
		}},
		onDrained: cancel,
	}
	refresher := &mockRefresher{}
	refresher.On("RefreshMonth", TriggerEvents, "2024-02").Return(nil).Once()

	c := newTestConsumer(client, refresher)
	require.NoError(t, c.Start(ctx))

	assert.Equal(t, []string{"1-0"}, client.acked)
	assert.GreaterOrEqual(t, client.readCalls, 4)
	refresher.AssertExpectations(t)
}

func TestStart_RedeliversFailedRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &fakeStreamClient{
		batches: [][]streams.Message{{
			{ID: "1-0", Values: map[string]interface{}{"data": `{"month_key":"2024-02","request_id":"r1"}`}},
		}},
		onDrained: cancel,
	}
	refresher := &mockRefresher{}
	refresher.On("RefreshMonth", TriggerEvents, "2024-02").
		Return(errors.New("export failed")).Once()
	refresher.On("RefreshMonth", TriggerEvents, "2024-02").
		Return(nil).Once()

	c := newTestConsumer(client, refresher)
	require.NoError(t, c.Start(ctx))

	refresher.AssertNumberOfCalls(t, "RefreshMonth", 2)
	assert.Equal(t, []string{"1-0"}, client.acked)
	assert.Empty(t, client.pending)
	assert.GreaterOrEqual(t, client.pendingCalls, 3)
}

func TestConsumeBatch_PendingPassEndsWhenEmpty(t *testing.T) {
	client := &fakeStreamClient{}
	c := newTestConsumer(client, &mockRefresher{})
	c.recoverPending = true

	require.NoError(t, c.consumeBatch(context.Background()))

	assert.False(t, c.recoverPending)
	assert.Equal(t, 1, client.pendingCalls)
	assert.Zero(t, client.readCalls)
}

func TestNextBackoff(t *testing.T) {
	d := initialBackoff
	var seen []time.Duration
	for i := 0; i < 7; i++ {
		d = nextBackoff(d)
		seen = append(seen, d)
	}
	assert.Equal(t, 2*time.Second, seen[0])
	assert.Equal(t, 16*time.Second, seen[3])
	assert.Equal(t, maxBackoff, seen[len(seen)-1])
}
