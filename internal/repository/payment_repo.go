package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/qs3c/quota_relay/internal/model"
)

const (
	paymentKeyPrefix  = "payment:request:"
	paymentPendingKey = "payment:pending"
)

// PaymentRepository 待处理购买请求存于 Redis，按创建时间建有序索引
type PaymentRepository struct {
	client *redis.Client
}

func NewPaymentRepository(client *redis.Client) *PaymentRepository {
	return &PaymentRepository{client: client}
}

func paymentKey(id string) string {
	return paymentKeyPrefix + id
}

// Put 写入请求并加入待处理索引
func (r *PaymentRepository) Put(ctx context.Context, req *model.PaymentRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal payment request: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, paymentKey(req.ID), data, 0)
		pipe.ZAdd(ctx, paymentPendingKey, &redis.Z{
			Score:  float64(req.CreatedAt.Unix()),
			Member: req.ID,
		})
		return nil
	})
	return err
}

// Get 读取请求，不存在时返回 nil, nil
func (r *PaymentRepository) Get(ctx context.Context, id string) (*model.PaymentRequest, error) {
	data, err := r.client.Get(ctx, paymentKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodePayment(data)
}

// Take 原子地取出并删除请求，同一请求只有一个调用方能拿到
func (r *PaymentRepository) Take(ctx context.Context, id string) (*model.PaymentRequest, error) {
	var getDel *redis.StringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getDel = pipe.GetDel(ctx, paymentKey(id))
		pipe.ZRem(ctx, paymentPendingKey, id)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	data, err := getDel.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	return decodePayment(data)
}

// List 按创建时间升序返回所有待处理请求
func (r *PaymentRepository) List(ctx context.Context) ([]*model.PaymentRequest, error) {
	ids, err := r.client.ZRange(ctx, paymentPendingKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return r.load(ctx, ids)
}

// ListOlderThan 返回创建时间不晚于 cutoff 的请求 ID
func (r *PaymentRepository) ListOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	return r.client.ZRangeByScore(ctx, paymentPendingKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
}

func (r *PaymentRepository) Count(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, paymentPendingKey).Result()
}

func (r *PaymentRepository) load(ctx context.Context, ids []string) ([]*model.PaymentRequest, error) {
	if len(ids) == 0 {
		return []*model.PaymentRequest{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = paymentKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	requests := make([]*model.PaymentRequest, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // 索引残留，请求已被处理
		}
		req, err := decodePayment([]byte(s))
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func decodePayment(data []byte) (*model.PaymentRequest, error) {
	var req model.PaymentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment request: %w", err)
	}
	return &req, nil
}
