package batch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPromise_CompleteThenResult(t *testing.T) {
	p := NewPromise[int]()
	assert.False(t, p.Settled())
	assert.False(t, p.IsSuccess())

	p.Complete(42)
	assert.True(t, p.Settled())
	assert.True(t, p.IsSuccess())

	v, err := p.Result()
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestPromise_FailThenResult(t *testing.T) {
	p := NewPromise[int]()
	boom := errors.New("boom")
	p.Fail(boom)

	assert.True(t, p.Settled())
	assert.False(t, p.IsSuccess())

	_, err := p.Result()
	assert.Equal(t, boom, err)
}

func TestPromise_OnlyFirstSettlementWins(t *testing.T) {
	p := NewPromise[int]()
	p.Complete(1)
	p.Complete(2)
	p.Fail(errors.New("ignored"))

	v, err := p.Result()
	assert.NoError(t, err)
	assert.Equal(t, 1, v, "the first Complete call should win")
}
