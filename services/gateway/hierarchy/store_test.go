// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
)

// scriptedClient is a namespace-bound handle serving one canned response.
type scriptedClient struct {
	data string
	err  error

	lastQuery string
	lastVars  map[string]any
}

func (c *scriptedClient) Query(_ context.Context, query string, vars map[string]any) (*dgraph.Response, error) {
	c.lastQuery = query
	c.lastVars = vars
	if c.err != nil {
		return nil, c.err
	}
	return &dgraph.Response{Data: []byte(c.data)}, nil
}

func (c *scriptedClient) Mutate(context.Context, string, map[string]any) (*dgraph.Response, error) {
	return nil, errors.New("store must not mutate")
}

func (c *scriptedClient) TenantID() string  { return "acme" }
func (c *scriptedClient) Namespace() string { return "0x2" }

func TestGraphStore_Hierarchy(t *testing.T) {
	client := &scriptedClient{data: `{"getHierarchy":{"id":"h1","name":"taxonomy"}}`}
	store := NewGraphStore(client)

	h, err := store.Hierarchy(context.Background(), "h1")
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "taxonomy", h.Name)
	assert.Equal(t, map[string]any{"id": "h1"}, client.lastVars)
}

func TestGraphStore_Hierarchy_Missing(t *testing.T) {
	client := &scriptedClient{data: `{"getHierarchy":null}`}
	store := NewGraphStore(client)

	h, err := store.Hierarchy(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestGraphStore_Level_FlattensTypes(t *testing.T) {
	client := &scriptedClient{data: `{"getHierarchyLevel":{
		"id":"l2","levelNumber":2,"label":"child",
		"hierarchy":{"id":"h1"},
		"levelTypes":[{"typeName":"concept"},{"typeName":"topic"}]}}`}
	store := NewGraphStore(client)

	level, err := store.Level(context.Background(), "l2")
	require.NoError(t, err)
	require.NotNil(t, level)
	assert.Equal(t, "h1", level.HierarchyID)
	assert.Equal(t, 2, level.LevelNumber)
	assert.Equal(t, []string{"concept", "topic"}, level.AllowedTypes)
}

func TestGraphStore_LevelByNumber(t *testing.T) {
	client := &scriptedClient{data: `{"getHierarchy":{"id":"h1",
		"levels":[{"id":"l3","levelNumber":3,"label":"leaf","levelTypes":[]}]}}`}
	store := NewGraphStore(client)

	level, err := store.LevelByNumber(context.Background(), "h1", 3)
	require.NoError(t, err)
	require.NotNil(t, level)
	assert.Equal(t, "l3", level.ID)
	// The hierarchy id comes from the envelope, not the level record.
	assert.Equal(t, "h1", level.HierarchyID)
	assert.Empty(t, level.AllowedTypes)
}

func TestGraphStore_LevelByNumber_NoSuchLevel(t *testing.T) {
	client := &scriptedClient{data: `{"getHierarchy":{"id":"h1","levels":[]}}`}
	store := NewGraphStore(client)

	level, err := store.LevelByNumber(context.Background(), "h1", 9)
	require.NoError(t, err)
	assert.Nil(t, level)
}

func TestGraphStore_Assignment_FiltersByHierarchy(t *testing.T) {
	client := &scriptedClient{data: `{"getNode":{"id":"n1","assignments":[
		{"id":"a1","hierarchy":{"id":"other"},"level":{"id":"lx","levelNumber":5}},
		{"id":"a2","hierarchy":{"id":"h1"},"level":{"id":"l1","levelNumber":1}}]}}`}
	store := NewGraphStore(client)

	assignment, err := store.Assignment(context.Background(), "n1", "h1")
	require.NoError(t, err)
	require.NotNil(t, assignment)
	assert.Equal(t, "a2", assignment.ID)
	assert.Equal(t, "l1", assignment.LevelID)
	assert.Equal(t, 1, assignment.LevelNumber)
}

func TestGraphStore_Assignment_NoMatch(t *testing.T) {
	client := &scriptedClient{data: `{"getNode":{"id":"n1","assignments":[]}}`}
	store := NewGraphStore(client)

	assignment, err := store.Assignment(context.Background(), "n1", "h1")
	require.NoError(t, err)
	assert.Nil(t, assignment)
}

func TestGraphStore_TransportErrorPropagates(t *testing.T) {
	client := &scriptedClient{err: &dgraph.TransportError{Op: "POST", Err: errors.New("refused")}}
	store := NewGraphStore(client)

	_, err := store.Hierarchy(context.Background(), "h1")
	require.Error(t, err)
	assert.True(t, dgraph.IsTransportError(err))
}
