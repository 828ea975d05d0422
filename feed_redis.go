/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisChannelPrefix = "footyarena:"

var (
	_ Feed = (*memoryFeed)(nil)
	_ Feed = (*redisFeed)(nil)
)

// redisFeed fans changes out through Redis pub/sub so several server
// processes sharing one database see each other's writes.
type redisFeed struct {
	client *redis.Client
}

func openRedisFeed(ctx context.Context, url string) (*redisFeed, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("redis: --redis-url is required")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	c := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &redisFeed{client: c}, nil
}

func (f *redisFeed) Publish(ctx context.Context, c Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}

	return f.client.Publish(ctx, redisChannelPrefix+c.Topic, payload).Err()
}

func (f *redisFeed) Subscribe(ctx context.Context, topic string) (<-chan Change, func(), error) {
	ps := f.client.Subscribe(ctx, redisChannelPrefix+topic)

	// Wait for the subscription to be confirmed so no publish after this
	// call returns is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %s: %w", topic, err)
	}

	out := make(chan Change, subscriberBuffer)
	done := make(chan struct{})

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}

	go func() {
		defer close(out)

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					logErr(fmt.Errorf("redis: decode change on %s: %w", msg.Channel, err))
					continue
				}

				select {
				case out <- c:
				default:
					// Subscriber is slow/full - drop them.
					cancel()
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

func (f *redisFeed) Close() error {
	return f.client.Close()
}
