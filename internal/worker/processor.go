package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/qs3c/quota_relay/internal/bot"
	"github.com/qs3c/quota_relay/internal/model/dto"
	"github.com/qs3c/quota_relay/internal/pkg/queue"
	"github.com/qs3c/quota_relay/internal/service"
)

// EventRouter 处理入站事件，*bot.Router 实现
type EventRouter interface {
	HandleCommand(ctx context.Context, ev *dto.CommandEvent) (*bot.Result, error)
	HandleCallback(ctx context.Context, cb *dto.CallbackEvent) (*bot.Result, error)
}

// Processor 处理队列中的一条事件
type Processor struct {
	router  EventRouter
	timeout time.Duration
	log     zerolog.Logger
}

const defaultProcessTimeout = 3 * time.Second

// NewProcessor timeout 为单条事件的处理上限，通常取 database.query_timeout
func NewProcessor(router EventRouter, timeout time.Duration, log zerolog.Logger) *Processor {
	if timeout <= 0 {
		timeout = defaultProcessTimeout
	}
	return &Processor{
		router:  router,
		timeout: timeout,
		log:     log.With().Str("component", "processor").Logger(),
	}
}

// Process 分发事件。通知已由 Router 投递，这里不重试，只返回存储类错误
func (p *Processor) Process(ctx context.Context, env *queue.Envelope) error {
	// 关停只停止取新事件，已取出的事件在时限内处理完
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	var (
		res *bot.Result
		err error
	)

	switch env.Kind {
	case queue.KindCommand:
		res, err = p.router.HandleCommand(ctx, env.Command)
	case queue.KindCallback:
		res, err = p.router.HandleCallback(ctx, env.Callback)
	default:
		return fmt.Errorf("unknown event kind %q", env.Kind)
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, service.ErrStorageFailure) {
			err = fmt.Errorf("%w: %w", service.ErrStorageFailure, err)
		}
		if errors.Is(err, service.ErrStorageFailure) {
			return err
		}
		// 权限、参数等错误已作为提示发给用户
		p.log.Debug().Err(err).Str("kind", string(env.Kind)).Msg("event rejected")
		return nil
	}

	p.log.Debug().
		Str("kind", string(env.Kind)).
		Str("command", res.Command).
		Str("outcome", string(res.Outcome)).
		Msg("event processed")
	return nil
}
