package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollect_MockModel(t *testing.T) {
	m := NewMockModel("mock", "test")
	m.AddResponse("hi", "hello there")

	out, _, err := Collect(context.Background(), m, Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)

	out, _, err = Collect(context.Background(), m, Request{Messages: []Message{{Role: "user", Content: "other"}}, Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", out)
	assert.Len(t, m.Requests(), 2)
}

func TestCollect_Errors(t *testing.T) {
	m := NewMockModel("mock", "test")

	_, _, err := Collect(context.Background(), m, Request{})
	assert.Error(t, err)

	boom := errors.New("boom")
	m.SetError(boom)
	_, _, err = Collect(context.Background(), m, Request{Messages: []Message{{Role: "user", Content: "x"}}})
	assert.ErrorIs(t, err, boom)
}

func TestCollect_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocking := blockingModel{}
	_, _, err := Collect(ctx, blocking, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

type blockingModel struct{}

func (blockingModel) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	return make(chan Response), make(chan error)
}

func (blockingModel) Info() Info { return Info{Name: "blocking"} }
