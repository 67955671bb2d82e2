package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
)

type Task func(ctx context.Context) error

// Pool runs submitted tasks on at most n goroutines and collects their errors.
// A Pool is used for one batch: Submit tasks, then Wait.
type Pool struct {
	wg   sync.WaitGroup
	sem  chan struct{}
	mu   sync.Mutex
	errs *multierror.Error
}

func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{sem: make(chan struct{}, workers)}
}

// Submit blocks until a worker slot is free or ctx is done.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.sem
			p.wg.Done()
		}()
		if err := task(ctx); err != nil {
			p.mu.Lock()
			p.errs = multierror.Append(p.errs, err)
			p.mu.Unlock()
		}
	}()
	return nil
}

// Wait blocks until every submitted task has returned.
func (p *Pool) Wait() error {
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs.ErrorOrNil()
}
