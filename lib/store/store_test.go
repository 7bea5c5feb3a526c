// Copyright (c) 2020–2026 The labdrivers developers. All rights reserved.
// Project site: https://github.com/gotmc/labdrivers
// Use of this source code is governed by a MIT-style license that
// can be found in the LICENSE.txt file for the project.

package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/gotmc/labdrivers"
)

func readings(n int) []labdrivers.Reading {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	rs := make([]labdrivers.Reading, n)
	for i := range rs {
		rs[i] = labdrivers.Reading{
			Instrument: "lockin",
			Param:      "frequency",
			Text:       "1000",
			Value:      1000 + float64(i),
			Time:       t0.Add(time.Duration(i) * time.Second),
		}
	}
	return rs
}

func Test_SQLiteReadings(t *testing.T) {
	log, _ := test.NewNullLogger()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "lab.db"), log)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	rs := readings(3)
	rs[2].Err = "timeout"
	if err := s.Write(ctx, rs); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, []labdrivers.Reading{{Instrument: "smu", Param: "output", Text: "on", Value: 1, Time: time.Now()}}); err != nil {
		t.Fatal(err)
	}

	got, err := s.Readings(ctx, "lockin", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 readings, got %d", len(got))
	}
	if got[0].Value != 1002 || got[0].Err != "timeout" || !got[0].Time.Equal(rs[2].Time) {
		t.Errorf("newest reading wrong: %+v", got[0])
	}
	all, err := s.Readings(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].Instrument != "smu" {
		t.Errorf("want 4 readings starting with smu, got %+v", all)
	}
}

func Test_SQLiteDataset(t *testing.T) {
	log, hook := test.NewNullLogger()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "lab.db"), log)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	ctx := context.Background()

	ds := labdrivers.NewDataset("VOLT", "CURR")
	if err := ds.Append([][]float64{{0, 0.5, 1}, {0, 1e-3, 2e-3}}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := s.SaveDataset(ctx, "iv", ds); err != nil {
			t.Fatal(err)
		}
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logrus.InfoLevel {
		t.Error("save should log at info")
	}
	got, err := s.Dataset(ctx, "iv")
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 3 || got.Columns[1] != "CURR" || got.Column("curr")[2] != 2e-3 {
		t.Errorf("round trip lost data: %+v", got)
	}
	if _, err := s.Dataset(ctx, "missing"); err == nil {
		t.Error("missing run should fail")
	}
}

func Test_Redis(t *testing.T) {
	m := miniredis.RunT(t)
	ctx := context.Background()
	log, _ := test.NewNullLogger()

	r, err := NewRedis(ctx, RedisOptions{Addr: m.Addr(), Channel: "readings", History: 2}, log)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	sub := redis.NewClient(&redis.Options{Addr: m.Addr()}).Subscribe(ctx, r.Channel())
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatal(err)
	}

	rs := readings(3)
	if err := r.Write(ctx, rs[:2]); err != nil {
		t.Fatal(err)
	}
	if err := r.Publish(ctx, rs[2]); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-sub.Channel():
		var rd labdrivers.Reading
		if err := json.Unmarshal([]byte(msg.Payload), &rd); err != nil {
			t.Fatal(err)
		}
		if rd.Value != 1000 {
			t.Errorf("first published value: want 1000, got %g", rd.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message published")
	}

	recent, err := r.Recent(ctx, "lockin", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].Value != 1002 || recent[1].Value != 1001 {
		t.Errorf("list should hold the 2 newest readings, got %+v", recent)
	}
}

func Test_RedisUnreachable(t *testing.T) {
	m := miniredis.RunT(t)
	addr := m.Addr()
	m.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, RedisOptions{Addr: addr}, nil); err == nil {
		t.Error("connecting to a stopped server should fail")
	}
}
