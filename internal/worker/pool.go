package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/internal/pkg/queue"
)

const defaultPopTimeout = 5 * time.Second

// Pool 多个 worker 并发消费事件队列
type Pool struct {
	queue      *queue.Queue
	processor  *Processor
	workers    int
	popTimeout time.Duration
	log        zerolog.Logger
}

func NewPool(q *queue.Queue, processor *Processor, workers int, log zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{
		queue:      q,
		processor:  processor,
		workers:    workers,
		popTimeout: defaultPopTimeout,
		log:        log.With().Str("component", "worker").Logger(),
	}
}

// Run 阻塞直到 ctx 取消且所有 worker 退出
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			p.loop(ctx, workerID)
		}(i)
	}

	p.log.Info().Int("workers", p.workers).Msg("worker pool started")
	wg.Wait()
	p.log.Info().Msg("worker pool stopped")
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	log := p.log.With().Int("worker_id", workerID).Logger()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := p.queue.Pop(ctx, p.popTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("failed to pop event")
			continue
		}

		if env == nil {
			continue // 超时，继续等待
		}

		if err := p.processor.Process(ctx, env); err != nil {
			log.Error().Err(err).Str("kind", string(env.Kind)).Msg("event failed")
		}
	}
}
