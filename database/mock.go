package database

import "github.com/sisu-network/txconfirm/types"

type MockDb struct {
	InitFunc           func() error
	SaveResolutionFunc func(update *types.TrackUpdate)
	LoadResolutionFunc func(chain, txHash string) (*types.TrackUpdate, error)
}

func (mock *MockDb) Init() error {
	if mock.InitFunc != nil {
		return mock.InitFunc()
	}

	return nil
}

func (mock *MockDb) Close() error {
	return nil
}

func (mock *MockDb) SaveResolution(update *types.TrackUpdate) {
	if mock.SaveResolutionFunc != nil {
		mock.SaveResolutionFunc(update)
	}
}

func (mock *MockDb) LoadResolution(chain, txHash string) (*types.TrackUpdate, error) {
	if mock.LoadResolutionFunc != nil {
		return mock.LoadResolutionFunc(chain, txHash)
	}

	return nil, nil
}
