package pool

import "sync"

// Pool runs submitted funcs on a fixed number of goroutines.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

func New(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{
		jobs: make(chan func(), n*2),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer p.wg.Done()
			for f := range p.jobs {
				if f != nil {
					f()
				}
			}
		}()
	}
	return p
}

// Submit blocks while every worker is busy and the queue is full.
func (p *Pool) Submit(f func()) {
	p.jobs <- f
}

// Wait stops accepting work and returns once queued funcs have run.
func (p *Pool) Wait() {
	close(p.jobs)
	p.wg.Wait()
}
