package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moebius-network/moebius/common/logging"
)

func TestGroup_StartStop(t *testing.T) {
	fast := func(name string) *Keeper {
		task := simpleTask(name, common.HexToAddress("0x02"))
		task.Period = 5 * time.Millisecond
		task.RetryDelay = 5 * time.Millisecond
		return New(task, &flakyDispatcher{}, WithLogger(logging.Discard()))
	}
	g := NewGroup(logging.Discard(), fast("a"), fast("b"))

	go g.Start(context.Background())

	assert.Eventually(t, func() bool {
		for _, s := range g.Statuses() {
			if s.Cycles < 2 {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	g.Stop()

	statuses := g.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, "a", statuses[0].Task)
	assert.Equal(t, "b", statuses[1].Task)
	for _, s := range statuses {
		assert.NotZero(t, s.Failures)
		assert.False(t, s.LastSuccess.IsZero())
	}
}

func TestGroup_RunReturnsNilOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g := NewGroup(nil, New(simpleTask("a", common.Address{}), &flakyDispatcher{}, WithLogger(logging.Discard())))
	assert.NoError(t, g.Run(ctx))
}
