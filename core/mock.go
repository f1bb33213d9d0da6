package core

import "github.com/sisu-network/txconfirm/types"

type MockClient struct {
	TryDialFunc         func()
	GetVersionFunc      func() (string, error)
	PostTrackUpdateFunc func(update *types.TrackUpdate) error
}

func (c *MockClient) TryDial() {
	if c.TryDialFunc != nil {
		c.TryDialFunc()
	}
}

func (c *MockClient) GetVersion() (string, error) {
	if c.GetVersionFunc != nil {
		return c.GetVersionFunc()
	}

	return "", nil
}

func (c *MockClient) PostTrackUpdate(update *types.TrackUpdate) error {
	if c.PostTrackUpdateFunc != nil {
		return c.PostTrackUpdateFunc(update)
	}

	return nil
}
