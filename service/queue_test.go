package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"blind-voting/ledger"
)

func TestQueueProcessor(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig(t)
	cfg.Voters = make([]string, 16)
	for i := range cfg.Voters {
		cfg.Voters[i] = fmt.Sprintf("voter-%d", i)
	}
	vs, err := NewVotingService(cfg)
	require.NoError(t, err)
	defer vs.Close()

	qp := NewQueueProcessor(vs, 64)
	qp.Start(context.Background())

	ctx := context.Background()
	for _, v := range cfg.Voters {
		result, err := Await(ctx, qp.QueueRegistration(ctx, v))
		require.NoError(t, err)
		assert.Equal(t, v, result.Registration.VoterID)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2*len(cfg.Voters))
	for i, v := range cfg.Voters {
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(slot int, v string) {
				defer wg.Done()
				_, errs[slot] = Await(ctx, qp.QueueVote(ctx, v, 1))
			}(2*i+j, v)
		}
	}
	wg.Wait()

	var ok, doubles int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ledger.ErrDoubleVote):
			doubles++
		}
	}
	assert.Equal(t, len(cfg.Voters), ok)
	assert.Equal(t, len(cfg.Voters), doubles)

	require.NoError(t, qp.Stop())
	require.NoError(t, qp.Stop())

	_, err = Await(ctx, qp.QueueVote(ctx, "voter-0", 1))
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueueFull(t *testing.T) {
	vs := newTestService(t)
	// Not started, so nothing drains the queue.
	qp := NewQueueProcessor(vs, 1)
	ctx := context.Background()

	first := qp.QueueVote(ctx, "v1", 1)
	_, err := Await(ctx, qp.QueueVote(ctx, "v2", 1))
	assert.ErrorIs(t, err, ErrQueueFull)

	require.NoError(t, qp.Stop())
	_, err = Await(ctx, first)
	assert.ErrorIs(t, err, ErrQueueStopped)
}

func TestQueueStopAnswersEveryRequest(t *testing.T) {
	defer goleak.VerifyNone(t)
	vs := newTestService(t)

	for round := 0; round < 20; round++ {
		qp := NewQueueProcessor(vs, 4)
		qp.Start(context.Background())

		var wg sync.WaitGroup
		errs := make([]error, 32)
		start := make(chan struct{})
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if i%2 == 0 {
					_, errs[i] = Await(ctx, qp.QueueVote(ctx, fmt.Sprintf("voter-%d", i), 1))
				} else {
					_, errs[i] = Await(ctx, qp.QueueRegistration(ctx, fmt.Sprintf("voter-%d", i)))
				}
			}(i)
		}
		close(start)
		require.NoError(t, qp.Stop())
		wg.Wait()

		for i, err := range errs {
			assert.NotErrorIs(t, err, context.DeadlineExceeded, "round %d request %d was never answered", round, i)
		}
	}
}

func TestAwaitCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Await(ctx, make(chan *ProcessingResult))
	assert.ErrorIs(t, err, context.Canceled)
}
