// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
)

// fakePusher records pushes and serves the active-schema query. The schema
// becomes active after readyAfter polls, modeling asynchronous processing.
type fakePusher struct {
	mu         sync.Mutex
	pushed     []string
	namespaces []string
	polls      int
	readyAfter int
}

func (f *fakePusher) PushSchema(_ context.Context, schema string, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushed = append(f.pushed, schema)
	f.namespaces = append(f.namespaces, namespace)
	return nil
}

func (f *fakePusher) Admin(_ context.Context, _ string, _ map[string]any, _ string) (*dgraph.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++

	active := ""
	if f.polls > f.readyAfter {
		active = "type Node { id: ID! }"
	}
	data, _ := json.Marshal(map[string]any{
		"getGQLSchema": map[string]string{"schema": active},
	})
	return &dgraph.Response{Data: data}, nil
}

func writeSchemaFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestManagerSchema(t *testing.T) {
	t.Run("returns trimmed file contents", func(t *testing.T) {
		path := writeSchemaFile(t, "\ntype Node { id: ID! }\n")
		m, err := NewManager(&fakePusher{}, Config{Path: path})
		require.NoError(t, err)

		text, err := m.Schema(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "type Node { id: ID! }", text)
	})

	t.Run("empty file rejected", func(t *testing.T) {
		path := writeSchemaFile(t, "  \n")
		m, err := NewManager(&fakePusher{}, Config{Path: path})
		require.NoError(t, err)

		_, err = m.Schema(context.Background())
		assert.Error(t, err)
	})

	t.Run("missing path rejected", func(t *testing.T) {
		_, err := NewManager(&fakePusher{}, Config{})
		assert.Error(t, err)
	})
}

func TestManagerPush(t *testing.T) {
	t.Run("pushes then waits until active", func(t *testing.T) {
		path := writeSchemaFile(t, "type Node { id: ID! }")
		pusher := &fakePusher{readyAfter: 2}
		m, err := NewManager(pusher, Config{
			Path:         path,
			WaitInterval: 5 * time.Millisecond,
			WaitTimeout:  time.Second,
		})
		require.NoError(t, err)

		require.NoError(t, m.Push(context.Background(), "0x2"))
		assert.Equal(t, []string{"type Node { id: ID! }"}, pusher.pushed)
		assert.Equal(t, []string{"0x2"}, pusher.namespaces)
		assert.GreaterOrEqual(t, pusher.polls, 3)
	})

	t.Run("wait times out when never active", func(t *testing.T) {
		path := writeSchemaFile(t, "type Node { id: ID! }")
		pusher := &fakePusher{readyAfter: 1 << 30}
		m, err := NewManager(pusher, Config{
			Path:         path,
			WaitInterval: 5 * time.Millisecond,
			WaitTimeout:  50 * time.Millisecond,
		})
		require.NoError(t, err)

		err = m.Push(context.Background(), "0x2")
		assert.ErrorIs(t, err, ErrSchemaNotReady)
	})
}

func TestWatcherPushesOnChange(t *testing.T) {
	path := writeSchemaFile(t, "type Node { id: ID! }")

	pushed := make(chan struct{}, 4)
	w, err := NewWatcher(path, func(context.Context) {
		pushed <- struct{}{}
	}, &WatcherOptions{DebounceWindow: 20 * time.Millisecond})
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, w.Start(context.Background()))

	// Two rapid writes should collapse into one debounced push.
	require.NoError(t, os.WriteFile(path, []byte("type Node { id: ID! name: String }"), 0600))
	require.NoError(t, os.WriteFile(path, []byte("type Node { id: ID! name: String! }"), 0600))

	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("no push after schema file change")
	}
}
