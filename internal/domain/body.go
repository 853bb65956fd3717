package domain

import (
	"context"
	"slices"
)

// WeightCapacity is the number of weight samples a Body retains.
const WeightCapacity = 10

// Body is the measurement record stored for a single account.
type Body struct {
	Age     uint8     `json:"age"`
	Height  uint8     `json:"height"`
	Weights []float32 `json:"weights"`
}

// NewBody returns a record holding a single initial weight sample.
func NewBody(age, height uint8, weight float32) Body {
	return Body{
		Age:     age,
		Height:  height,
		Weights: []float32{weight},
	}
}

// AppendWeight adds a sample to the end of the window. Once the window is
// full the oldest sample is dropped first.
func (b *Body) AppendWeight(weight float32) {
	if len(b.Weights) >= WeightCapacity {
		b.Weights = slices.Delete(b.Weights, 0, 1)
	}
	b.Weights = append(b.Weights, weight)
}

// Latest returns the most recent sample, if any.
func (b Body) Latest() (float32, bool) {
	if len(b.Weights) == 0 {
		return 0, false
	}
	return b.Weights[len(b.Weights)-1], true
}

// AccountRepository is the port for the persistent account-to-record map.
type AccountRepository interface {
	// GetAccount returns nil, nil when no record exists.
	GetAccount(ctx context.Context, accountID string) (*Body, error)
	HasAccount(ctx context.Context, accountID string) (bool, error)
	// PutAccount stores body under accountID. With overwrite false an
	// existing record is left untouched and stored reports false.
	PutAccount(ctx context.Context, accountID string, body Body, overwrite bool) (stored bool, err error)
	// UpdateAccount loads the record, hands it to fn and writes it back as a
	// single atomic step. fn receives nil when the record is absent; any
	// error from fn aborts the update without writing.
	UpdateAccount(ctx context.Context, accountID string, fn func(*Body) error) (*Body, error)
	CountAccounts(ctx context.Context) (int, error)
}
