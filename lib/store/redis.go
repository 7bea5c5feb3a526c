// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/gotmc/labdrivers"
)

// RedisOptions configures a Redis publisher.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	// Channel receives every reading as JSON.
	Channel string
	// History is the length of each instrument's reading list; 0 means 1000.
	History int
}

// Redis publishes readings on a pub/sub channel and keeps a bounded list of
// recent readings per instrument.
type Redis struct {
	client  *redis.Client
	channel string
	history int64
	log     *logrus.Logger
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, o RedisOptions, log *logrus.Logger) (*Redis, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if o.Channel == "" {
		o.Channel = "labdrivers:readings"
	}
	if o.History <= 0 {
		o.History = 1000
	}
	client := redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
		PoolSize: o.PoolSize,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connect redis %s", o.Addr)
	}
	log.WithField("addr", o.Addr).Info("redis connected")
	return &Redis{client: client, channel: o.Channel, history: int64(o.History), log: log}, nil
}

// Channel returns the pub/sub channel name.
func (r *Redis) Channel() string { return r.channel }

// ListKey is the list holding recent readings of one instrument.
func ListKey(instrument string) string {
	return fmt.Sprintf("instrument:%s:readings", instrument)
}

// Publish sends one reading.
func (r *Redis) Publish(ctx context.Context, rd labdrivers.Reading) error {
	return r.Write(ctx, []labdrivers.Reading{rd})
}

// Write publishes readings in one pipeline.
func (r *Redis) Write(ctx context.Context, rs []labdrivers.Reading) error {
	pipe := r.client.Pipeline()
	for _, rd := range rs {
		b, err := json.Marshal(rd)
		if err != nil {
			r.log.Errorf("encode reading %s/%s: %v", rd.Instrument, rd.Param, err)
			continue
		}
		key := ListKey(rd.Instrument)
		pipe.Publish(ctx, r.channel, b)
		pipe.LPush(ctx, key, b)
		pipe.LTrim(ctx, key, 0, r.history-1)
	}
	_, err := pipe.Exec(ctx)
	return errors.Wrap(err, "redis publish")
}

// Recent returns up to n stored readings of instrument, newest first.
func (r *Redis) Recent(ctx context.Context, instrument string, n int) ([]labdrivers.Reading, error) {
	vals, err := r.client.LRange(ctx, ListKey(instrument), 0, int64(n)-1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis recent")
	}
	out := make([]labdrivers.Reading, 0, len(vals))
	for _, v := range vals {
		var rd labdrivers.Reading
		if err := json.Unmarshal([]byte(v), &rd); err != nil {
			return nil, errors.Wrapf(err, "decode %s", ListKey(instrument))
		}
		out = append(out, rd)
	}
	return out, nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }
