package client

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sisu-network/lib/log"
	"github.com/sisu-network/txconfirm/types"
	"go.uber.org/atomic"
)

const (
	RETRY_TIME = 10 * time.Second
	RpcTimeout = 10 * time.Second
)

// A client that posts resolutions to the downstream consumer.
type Client interface {
	TryDial()
	GetVersion() (string, error)
	PostTrackUpdate(update *types.TrackUpdate) error
}

var (
	ErrNotifierNotConnected = errors.New("notifier is not connected")
)

type DefaultClient struct {
	client    *rpc.Client
	url       string
	connected *atomic.Bool
}

func NewClient(url string) Client {
	return &DefaultClient{
		url:       url,
		connected: atomic.NewBool(false),
	}
}

func (c *DefaultClient) TryDial() {
	log.Info("Trying to dial the notifier")

	for {
		log.Info("Dialing...", c.url)
		var err error
		c.client, err = rpc.DialContext(context.Background(), c.url)
		if err != nil {
			log.Error("Cannot connect to the notifier err = ", err)
			time.Sleep(RETRY_TIME)
			continue
		}

		_, err = c.GetVersion()
		if err != nil {
			log.Error("Cannot get notifier version err = ", err)
			time.Sleep(RETRY_TIME)
			continue
		}

		c.connected.Store(true)
		break
	}

	log.Info("Notifier is connected")
}

func (c *DefaultClient) GetVersion() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), RpcTimeout)
	defer cancel()

	var version string
	err := c.client.CallContext(ctx, &version, "confirmer_version")
	return version, err
}

func (c *DefaultClient) PostTrackUpdate(update *types.TrackUpdate) error {
	if !c.connected.Load() {
		return ErrNotifierNotConnected
	}

	log.Verbose("Posting track update to the notifier, hash = ", update.Hash)

	ctx, cancel := context.WithTimeout(context.Background(), RpcTimeout)
	defer cancel()

	var r string
	err := c.client.CallContext(ctx, &r, "confirmer_postTrackUpdate", update)
	if err != nil {
		log.Error("Cannot post track update, tx hash = ", update.Hash, " err = ", err)
		return err
	}

	return nil
}
