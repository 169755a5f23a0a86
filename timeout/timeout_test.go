package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgesync/edgesync/edgeerr"
)

func TestCallSucceedsWithinLimit(t *testing.T) {
	got, err := Call(context.Background(), 50*time.Millisecond, nil, func(ctx context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestCallPropagatesRemoteError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Call(context.Background(), 50*time.Millisecond, nil, func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.Same(t, boom, err)
}

func TestCallTimesOut(t *testing.T) {
	_, err := Call(context.Background(), 5*time.Millisecond, []any{"arg"}, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		return "late", nil
	})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeTimeout))
	var te *Error
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, []any{"arg"}, te.Args)
}
