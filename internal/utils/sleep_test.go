package utils_test

import (
	"context"
	"testing"
	"time"

	"github.com/jrsteele09/portscribe/internal/utils"
	"github.com/stretchr/testify/require"
)

func TestSleep(t *testing.T) {
	require.NoError(t, utils.Sleep(context.Background(), time.Millisecond))
	require.NoError(t, utils.Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, utils.Sleep(ctx, time.Hour), context.Canceled)
	require.ErrorIs(t, utils.Sleep(ctx, 0), context.Canceled)
}
