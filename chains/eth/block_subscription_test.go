package eth

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/txconfirm/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type subscribeCall struct {
	ch  chan<- *ethtypes.Header
	sub *MockSubscription
}

func newTestSubscription(client EthClient) (*blockSubscription, chan *ethtypes.Header) {
	headCh := make(chan *ethtypes.Header)
	cfg := config.Chain{
		Chain:             "ganache1",
		RestartBackoffMin: 5,
		RestartBackoffMax: 20,
	}

	return newBlockSubscription(cfg, headCh, client), headCh
}

func waitForSubscribe(t *testing.T, calls chan *subscribeCall) *subscribeCall {
	select {
	case call := <-calls:
		return call
	case <-time.After(time.Second * 2):
		t.Fatal("no subscription")
	}

	return nil
}

func TestBlockSubscription(t *testing.T) {
	t.Run("forward_heads_in_order", func(t *testing.T) {
		calls := make(chan *subscribeCall, 1)
		client := &MockEthClient{
			SubscribeNewHeadFunc: func(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
				sub := NewMockSubscription()
				calls <- &subscribeCall{ch: ch, sub: sub}
				return sub, nil
			},
		}

		s, headCh := newTestSubscription(client)
		s.start()
		defer s.stop()

		call := waitForSubscribe(t, calls)
		require.Eventually(t, func() bool {
			return s.getState() == SubscriptionRunning
		}, time.Second*2, time.Millisecond*5)

		go func() {
			for i := int64(1); i <= 3; i++ {
				call.ch <- &ethtypes.Header{Number: big.NewInt(i)}
			}
		}()

		for i := int64(1); i <= 3; i++ {
			select {
			case head := <-headCh:
				require.Equal(t, i, head.Number.Int64())
			case <-time.After(time.Second * 2):
				t.Fatal("head not forwarded")
			}
		}
	})

	t.Run("restart_after_stream_error", func(t *testing.T) {
		calls := make(chan *subscribeCall, 2)
		client := &MockEthClient{
			SubscribeNewHeadFunc: func(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
				sub := NewMockSubscription()
				calls <- &subscribeCall{ch: ch, sub: sub}
				return sub, nil
			},
		}

		s, headCh := newTestSubscription(client)
		s.start()
		defer s.stop()

		first := waitForSubscribe(t, calls)
		first.sub.ErrCh <- errors.New("connection reset")

		second := waitForSubscribe(t, calls)
		require.Equal(t, int32(1), first.sub.UnsubscribeCount.Load())
		require.Eventually(t, func() bool {
			return s.getState() == SubscriptionRunning
		}, time.Second*2, time.Millisecond*5)

		go func() {
			second.ch <- &ethtypes.Header{Number: big.NewInt(7)}
		}()
		select {
		case head := <-headCh:
			require.Equal(t, int64(7), head.Number.Int64())
		case <-time.After(time.Second * 2):
			t.Fatal("head not forwarded after restart")
		}
	})

	t.Run("retry_failed_subscribe", func(t *testing.T) {
		count := atomic.NewInt32(0)
		client := &MockEthClient{
			SubscribeNewHeadFunc: func(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
				if count.Inc() <= 2 {
					return nil, errors.New("dial failure")
				}
				return NewMockSubscription(), nil
			},
		}

		s, _ := newTestSubscription(client)
		s.start()
		defer s.stop()

		require.Eventually(t, func() bool {
			return s.getState() == SubscriptionRunning
		}, time.Second*2, time.Millisecond*5)
		require.Equal(t, int32(3), count.Load())
	})

	t.Run("faulted_while_node_is_down", func(t *testing.T) {
		client := &MockEthClient{
			SubscribeNewHeadFunc: func(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
				return nil, errors.New("dial failure")
			},
		}

		s, _ := newTestSubscription(client)
		s.start()

		require.Eventually(t, func() bool {
			return s.getState() == SubscriptionFaulted
		}, time.Second*2, time.Millisecond*5)

		s.stop()
		require.Equal(t, SubscriptionStopped, s.getState())
	})

	t.Run("start_stop_idempotent", func(t *testing.T) {
		calls := make(chan *subscribeCall, 3)
		client := &MockEthClient{
			SubscribeNewHeadFunc: func(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
				sub := NewMockSubscription()
				calls <- &subscribeCall{ch: ch, sub: sub}
				return sub, nil
			},
		}

		s, _ := newTestSubscription(client)
		s.stop()
		require.Equal(t, SubscriptionStopped, s.getState())

		s.start()
		first := waitForSubscribe(t, calls)

		// Starting again tears down the running subscription first.
		s.start()
		waitForSubscribe(t, calls)
		require.Equal(t, int32(1), first.sub.UnsubscribeCount.Load())

		s.stop()
		s.stop()
		require.Equal(t, SubscriptionStopped, s.getState())
		require.Equal(t, 0, len(calls))
	})
}

func TestSubscriptionState_String(t *testing.T) {
	require.Equal(t, "stopped", SubscriptionStopped.String())
	require.Equal(t, "running", SubscriptionRunning.String())
	require.Equal(t, "faulted", SubscriptionFaulted.String())
}
