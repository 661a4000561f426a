package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"blind-voting/log"
	"blind-voting/models"
)

// ErrQueueFull is returned when a request cannot be queued without blocking.
var ErrQueueFull = errors.New("queue is full")

// ErrQueueStopped is returned for requests submitted after Stop.
var ErrQueueStopped = errors.New("queue processor stopped")

// QueueProcessor funnels registrations and votes through one worker
// each, so the service sees a single writer per concern.
type QueueProcessor struct {
	votingService  *VotingService
	registrationCh chan *RegistrationRequest
	voteCh         chan *VoteRequest
	group          *errgroup.Group
	cancel         context.CancelFunc
	stopOnce       sync.Once

	// mu orders enqueues against Stop: once stopped is set no request
	// can enter a channel, so drain sees every pending one.
	mu      sync.Mutex
	stopped bool
}

// RegistrationRequest represents a queued voter registration request
type RegistrationRequest struct {
	ctx      context.Context
	VoterID  string
	ResultCh chan<- *ProcessingResult
}

// VoteRequest represents a queued vote casting request
type VoteRequest struct {
	ctx      context.Context
	VoterID  string
	Code     uint32
	ResultCh chan<- *ProcessingResult
}

// ProcessingResult contains the result of an asynchronous operation
type ProcessingResult struct {
	Registration *models.VoterRegistration
	Record       *models.VoteRecord
	Err          error
	Timestamp    int64
}

func NewQueueProcessor(votingService *VotingService, queueSize int) *QueueProcessor {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &QueueProcessor{
		votingService:  votingService,
		registrationCh: make(chan *RegistrationRequest, queueSize),
		voteCh:         make(chan *VoteRequest, queueSize),
	}
}

// Start launches the workers. They run until Stop is called or ctx is done.
func (qp *QueueProcessor) Start(ctx context.Context) {
	ctx, qp.cancel = context.WithCancel(ctx)
	qp.group, ctx = errgroup.WithContext(ctx)
	qp.group.Go(func() error { return qp.registrationWorker(ctx) })
	qp.group.Go(func() error { return qp.voteWorker(ctx) })
}

// Stop shuts the workers down and waits for them. Requests still in the
// queues are answered with ErrQueueStopped.
func (qp *QueueProcessor) Stop() error {
	var err error
	qp.stopOnce.Do(func() {
		qp.mu.Lock()
		qp.stopped = true
		qp.mu.Unlock()

		if qp.group != nil {
			qp.cancel()
			err = qp.group.Wait()
		}
		qp.drain()
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (qp *QueueProcessor) drain() {
	for {
		select {
		case req := <-qp.registrationCh:
			req.ResultCh <- &ProcessingResult{Err: ErrQueueStopped}
			close(req.ResultCh)
		case req := <-qp.voteCh:
			req.ResultCh <- &ProcessingResult{Err: ErrQueueStopped}
			close(req.ResultCh)
		default:
			return
		}
	}
}

func failed(err error) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)
	resultCh <- &ProcessingResult{Err: err}
	close(resultCh)
	return resultCh
}

// QueueRegistration adds a voter registration request to the processing queue
func (qp *QueueProcessor) QueueRegistration(ctx context.Context, voterID string) <-chan *ProcessingResult {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.stopped {
		return failed(ErrQueueStopped)
	}
	resultCh := make(chan *ProcessingResult, 1)
	select {
	case qp.registrationCh <- &RegistrationRequest{ctx: ctx, VoterID: voterID, ResultCh: resultCh}:
		return resultCh
	default:
		return failed(ErrQueueFull)
	}
}

// QueueVote adds a vote casting request to the processing queue
func (qp *QueueProcessor) QueueVote(ctx context.Context, voterID string, code uint32) <-chan *ProcessingResult {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	if qp.stopped {
		return failed(ErrQueueStopped)
	}
	resultCh := make(chan *ProcessingResult, 1)
	select {
	case qp.voteCh <- &VoteRequest{ctx: ctx, VoterID: voterID, Code: code, ResultCh: resultCh}:
		return resultCh
	default:
		return failed(ErrQueueFull)
	}
}

func (qp *QueueProcessor) registrationWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-qp.registrationCh:
			result := &ProcessingResult{Timestamp: time.Now().Unix()}
			if err := req.ctx.Err(); err != nil {
				result.Err = err
			} else {
				result.Registration, result.Err = qp.votingService.RegisterVoter(req.ctx, req.VoterID)
			}
			req.ResultCh <- result
			close(req.ResultCh)
		}
	}
}

func (qp *QueueProcessor) voteWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-qp.voteCh:
			result := &ProcessingResult{Timestamp: time.Now().Unix()}
			// A request abandoned by its caller is skipped before it
			// touches the gate.
			if err := req.ctx.Err(); err != nil {
				result.Err = err
				log.Debugf("skipping abandoned vote request")
			} else {
				record, err := qp.votingService.CastVote(req.ctx, req.VoterID, req.Code)
				if err == nil {
					result.Record = &record
				}
				result.Err = err
			}
			req.ResultCh <- result
			close(req.ResultCh)
		}
	}
}

// Await waits for the result of a queued request or for ctx.
func Await(ctx context.Context, resultCh <-chan *ProcessingResult) (*ProcessingResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		return result, result.Err
	}
}
