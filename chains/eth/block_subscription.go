package eth

import (
	"context"
	"errors"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/txconfirm/config"
	"go.uber.org/atomic"
)

type SubscriptionState int32

const (
	SubscriptionStopped SubscriptionState = iota
	SubscriptionRunning
	SubscriptionFaulted
)

func (s SubscriptionState) String() string {
	switch s {
	case SubscriptionStopped:
		return "stopped"
	case SubscriptionRunning:
		return "running"
	case SubscriptionFaulted:
		return "faulted"
	}

	return "unknown"
}

var errSubscriptionClosed = errors.New("block subscription closed by the node")

// blockSubscription delivers new block headers from the node to headCh, one at a time and in
// the order the node announces them. A stream error moves it to the faulted state; it then
// subscribes again after a backoff delay.
type blockSubscription struct {
	chain   string
	client  EthClient
	headCh  chan<- *ethtypes.Header
	backoff Backoff
	state   *atomic.Int32

	lock   *sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newBlockSubscription(cfg config.Chain, headCh chan<- *ethtypes.Header, client EthClient) *blockSubscription {
	return &blockSubscription{
		chain:   cfg.Chain,
		client:  client,
		headCh:  headCh,
		backoff: newBackoff(cfg),
		state:   atomic.NewInt32(int32(SubscriptionStopped)),
		lock:    &sync.Mutex{},
	}
}

// start (re)establishes the subscription. A running subscription is torn down first.
func (s *blockSubscription) start() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	log.Info("Starting the block subscription for chain ", s.chain)
	go s.run(ctx, s.done)
}

func (s *blockSubscription) stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.stopLocked()
}

func (s *blockSubscription) stopLocked() {
	if s.cancel == nil {
		return
	}

	s.cancel()
	<-s.done

	s.cancel = nil
	s.done = nil
	s.state.Store(int32(SubscriptionStopped))
	log.Info("Block subscription stopped for chain ", s.chain)
}

func (s *blockSubscription) getState() SubscriptionState {
	return SubscriptionState(s.state.Load())
}

func (s *blockSubscription) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	attempt := 0
	for {
		if attempt > 0 {
			delay := s.backoff.Next(attempt)
			log.Infof("Restarting the block subscription for chain %s in %s", s.chain, delay)
			if !sleepCtx(ctx, delay) {
				return
			}
		}

		err := s.subscribe(ctx, &attempt)
		if ctx.Err() != nil {
			return
		}

		s.state.Store(int32(SubscriptionFaulted))
		log.Errorf("error captured in the block subscription for chain %s, restarting. err = %v", s.chain, err)
		attempt++
	}
}

// subscribe forwards heads until the stream fails or ctx is cancelled. attempt is reset once
// a head gets through.
func (s *blockSubscription) subscribe(ctx context.Context, attempt *int) error {
	heads := make(chan *ethtypes.Header)
	sub, err := s.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	s.state.Store(int32(SubscriptionRunning))

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-sub.Err():
			if err == nil {
				err = errSubscriptionClosed
			}
			return err

		case head := <-heads:
			*attempt = 0
			log.Verbose(s.chain, " New head = ", head.Number)

			select {
			case s.headCh <- head:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
