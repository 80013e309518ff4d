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
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/AleutianGraph/services/gateway/tenant"
)

// Store looks up hierarchy metadata for placement resolution.
//
// Lookups return (nil, nil) when no record matches; the resolver turns
// missing records into the appropriate reference error. A non-nil error is
// a transport or decoding failure.
type Store interface {
	// Hierarchy resolves a hierarchy by id.
	Hierarchy(ctx context.Context, id string) (*Hierarchy, error)

	// Level resolves a level by id, including its owning hierarchy and
	// permitted types.
	Level(ctx context.Context, id string) (*Level, error)

	// LevelByNumber resolves the level with the given number inside one
	// hierarchy.
	LevelByNumber(ctx context.Context, hierarchyID string, levelNumber int) (*Level, error)

	// Assignment resolves a node's assignment within one hierarchy.
	Assignment(ctx context.Context, nodeID, hierarchyID string) (*Assignment, error)
}

// -----------------------------------------------------------------------------
// GraphQL-backed Store
// -----------------------------------------------------------------------------

const (
	getHierarchyQuery = `query Hierarchy($id: ID!) {
  getHierarchy(id: $id) {
    id
    name
  }
}`

	getLevelQuery = `query Level($id: ID!) {
  getHierarchyLevel(id: $id) {
    id
    levelNumber
    label
    hierarchy {
      id
    }
    levelTypes {
      typeName
    }
  }
}`

	levelByNumberQuery = `query LevelByNumber($hierarchyID: ID!, $levelNumber: Int!) {
  getHierarchy(id: $hierarchyID) {
    id
    levels(filter: { levelNumber: { eq: $levelNumber } }, first: 1) {
      id
      levelNumber
      label
      levelTypes {
        typeName
      }
    }
  }
}`

	assignmentQuery = `query Assignment($nodeID: ID!) {
  getNode(id: $nodeID) {
    id
    assignments {
      id
      hierarchy {
        id
      }
      level {
        id
        levelNumber
      }
    }
  }
}`
)

// GraphStore reads hierarchy metadata through a namespace-bound handle.
// A GraphStore is scoped to the handle's namespace; construct one per
// request.
type GraphStore struct {
	client tenant.Client
}

// NewGraphStore creates a Store over the given execution handle.
func NewGraphStore(client tenant.Client) *GraphStore {
	return &GraphStore{client: client}
}

// Wire shapes for the lookup queries. Permitted types sit on separate
// level-type records in the schema and are flattened into Level.AllowedTypes
// here.
type (
	wireLevelType struct {
		TypeName string `json:"typeName"`
	}

	wireLevel struct {
		ID          string `json:"id"`
		LevelNumber int    `json:"levelNumber"`
		Label       string `json:"label"`
		Hierarchy   *struct {
			ID string `json:"id"`
		} `json:"hierarchy,omitempty"`
		LevelTypes []wireLevelType `json:"levelTypes"`
	}

	wireAssignment struct {
		ID        string `json:"id"`
		Hierarchy struct {
			ID string `json:"id"`
		} `json:"hierarchy"`
		Level struct {
			ID          string `json:"id"`
			LevelNumber int    `json:"levelNumber"`
		} `json:"level"`
	}
)

func (w *wireLevel) toLevel(hierarchyID string) *Level {
	level := &Level{
		ID:          w.ID,
		HierarchyID: hierarchyID,
		LevelNumber: w.LevelNumber,
		Label:       w.Label,
	}
	if w.Hierarchy != nil {
		level.HierarchyID = w.Hierarchy.ID
	}
	for _, lt := range w.LevelTypes {
		level.AllowedTypes = append(level.AllowedTypes, lt.TypeName)
	}
	return level
}

func (s *GraphStore) Hierarchy(ctx context.Context, id string) (*Hierarchy, error) {
	resp, err := s.client.Query(ctx, getHierarchyQuery, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("look up hierarchy %q: %w", id, err)
	}

	var data struct {
		GetHierarchy *Hierarchy `json:"getHierarchy"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode hierarchy %q: %w", id, err)
	}
	return data.GetHierarchy, nil
}

func (s *GraphStore) Level(ctx context.Context, id string) (*Level, error) {
	resp, err := s.client.Query(ctx, getLevelQuery, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("look up level %q: %w", id, err)
	}

	var data struct {
		GetHierarchyLevel *wireLevel `json:"getHierarchyLevel"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode level %q: %w", id, err)
	}
	if data.GetHierarchyLevel == nil {
		return nil, nil
	}
	return data.GetHierarchyLevel.toLevel(""), nil
}

func (s *GraphStore) LevelByNumber(ctx context.Context, hierarchyID string, levelNumber int) (*Level, error) {
	resp, err := s.client.Query(ctx, levelByNumberQuery, map[string]any{
		"hierarchyID": hierarchyID,
		"levelNumber": levelNumber,
	})
	if err != nil {
		return nil, fmt.Errorf("look up level %d of hierarchy %q: %w", levelNumber, hierarchyID, err)
	}

	var data struct {
		GetHierarchy *struct {
			ID     string      `json:"id"`
			Levels []wireLevel `json:"levels"`
		} `json:"getHierarchy"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode level %d of hierarchy %q: %w", levelNumber, hierarchyID, err)
	}
	if data.GetHierarchy == nil || len(data.GetHierarchy.Levels) == 0 {
		return nil, nil
	}
	return data.GetHierarchy.Levels[0].toLevel(data.GetHierarchy.ID), nil
}

func (s *GraphStore) Assignment(ctx context.Context, nodeID, hierarchyID string) (*Assignment, error) {
	resp, err := s.client.Query(ctx, assignmentQuery, map[string]any{"nodeID": nodeID})
	if err != nil {
		return nil, fmt.Errorf("look up assignments of node %q: %w", nodeID, err)
	}

	var data struct {
		GetNode *struct {
			ID          string           `json:"id"`
			Assignments []wireAssignment `json:"assignments"`
		} `json:"getNode"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode assignments of node %q: %w", nodeID, err)
	}
	if data.GetNode == nil {
		return nil, nil
	}
	for _, a := range data.GetNode.Assignments {
		if a.Hierarchy.ID == hierarchyID {
			return &Assignment{
				ID:          a.ID,
				NodeID:      data.GetNode.ID,
				HierarchyID: a.Hierarchy.ID,
				LevelID:     a.Level.ID,
				LevelNumber: a.Level.LevelNumber,
			}, nil
		}
	}
	return nil, nil
}
