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
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Resolver evaluates the placement decision chain over a Store.
//
// The chain is strict and ordered; the first matching branch wins:
//
//  1. Explicit assignment: hierarchy and level both supplied.
//  2. Explicit level: only a level supplied; the hierarchy is derived
//     from the level itself.
//  3. Parent derived: a parent node supplied; the target is one level
//     below the parent's assignment in the named hierarchy.
//  4. None: no hints supplied; the node gets no assignment.
//
// Thread Safety: Safe for concurrent use.
type Resolver struct {
	store  Store
	logger *slog.Logger
}

// NewResolver creates a Resolver over the given store.
func NewResolver(store Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:  store,
		logger: logger.With(slog.String("component", "hierarchy_resolver")),
	}
}

// Resolve computes and validates the placement for one creation request.
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Placement, error) {
	ctx, span := otel.Tracer("hierarchy").Start(ctx, "resolver.Resolve")
	defer span.End()

	placement, err := r.resolve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "placement rejected")
		return nil, err
	}

	span.SetAttributes(attribute.String("placement.branch", placement.Branch.String()))
	span.SetStatus(codes.Ok, "")
	r.logger.Debug("placement resolved",
		slog.String("branch", placement.Branch.String()),
		slog.String("hierarchy_id", placement.HierarchyID),
		slog.Int("level_number", placement.LevelNumber))
	return placement, nil
}

func (r *Resolver) resolve(ctx context.Context, req Request) (*Placement, error) {
	switch {
	case req.HierarchyID != "" && req.LevelID != "":
		return r.explicitAssignment(ctx, req)
	case req.LevelID != "":
		return r.explicitLevel(ctx, req)
	case req.ParentID != "":
		return r.parentDerived(ctx, req)
	case req.HierarchyID != "":
		// A named hierarchy with nothing to place by is a malformed hint,
		// not an unhinted request.
		return nil, fmt.Errorf("%w: hierarchy %q", ErrIncompletePlacementHint, req.HierarchyID)
	default:
		return &Placement{Branch: BranchNone}, nil
	}
}

func (r *Resolver) explicitAssignment(ctx context.Context, req Request) (*Placement, error) {
	h, err := r.store.Hierarchy(ctx, req.HierarchyID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: hierarchy %q", ErrInvalidHierarchyReference, req.HierarchyID)
	}

	level, err := r.store.Level(ctx, req.LevelID)
	if err != nil {
		return nil, err
	}
	if level == nil {
		return nil, fmt.Errorf("%w: level %q", ErrInvalidLevelReference, req.LevelID)
	}
	if level.HierarchyID != h.ID {
		return nil, fmt.Errorf("%w: level %q does not belong to hierarchy %q",
			ErrInvalidLevelReference, req.LevelID, req.HierarchyID)
	}

	if err := checkType(h, level, req.NodeType); err != nil {
		return nil, err
	}
	return &Placement{
		Branch:      BranchExplicitAssignment,
		Assigned:    true,
		HierarchyID: h.ID,
		LevelID:     level.ID,
		LevelNumber: level.LevelNumber,
	}, nil
}

func (r *Resolver) explicitLevel(ctx context.Context, req Request) (*Placement, error) {
	level, err := r.store.Level(ctx, req.LevelID)
	if err != nil {
		return nil, err
	}
	if level == nil {
		return nil, fmt.Errorf("%w: level %q", ErrInvalidLevelReference, req.LevelID)
	}

	h, err := r.store.Hierarchy(ctx, level.HierarchyID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: level %q points at hierarchy %q",
			ErrInvalidHierarchyReference, req.LevelID, level.HierarchyID)
	}

	if err := checkType(h, level, req.NodeType); err != nil {
		return nil, err
	}
	return &Placement{
		Branch:      BranchExplicitLevel,
		Assigned:    true,
		HierarchyID: h.ID,
		LevelID:     level.ID,
		LevelNumber: level.LevelNumber,
	}, nil
}

func (r *Resolver) parentDerived(ctx context.Context, req Request) (*Placement, error) {
	if req.HierarchyID == "" {
		return nil, fmt.Errorf("%w: parent %q", ErrMissingHierarchyContext, req.ParentID)
	}

	h, err := r.store.Hierarchy(ctx, req.HierarchyID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("%w: hierarchy %q", ErrInvalidHierarchyReference, req.HierarchyID)
	}

	parent, err := r.store.Assignment(ctx, req.ParentID, h.ID)
	if err != nil {
		return nil, err
	}
	if parent == nil {
		return nil, fmt.Errorf("%w: parent %q, hierarchy %q", ErrParentUnassigned, req.ParentID, h.ID)
	}

	target := parent.LevelNumber + 1
	level, err := r.store.LevelByNumber(ctx, h.ID, target)
	if err != nil {
		return nil, err
	}
	if level == nil {
		return nil, fmt.Errorf("%w: hierarchy %q has no level %d below parent %q (level %d)",
			ErrInvalidLevelReference, h.ID, target, req.ParentID, parent.LevelNumber)
	}

	if err := checkType(h, level, req.NodeType); err != nil {
		return nil, err
	}
	return &Placement{
		Branch:      BranchParentDerived,
		Assigned:    true,
		HierarchyID: h.ID,
		LevelID:     level.ID,
		LevelNumber: level.LevelNumber,
	}, nil
}

func checkType(h *Hierarchy, level *Level, nodeType string) error {
	if level.Allows(nodeType) {
		return nil
	}
	return &TypeNotAllowedError{
		HierarchyName: h.Name,
		LevelLabel:    level.Label,
		LevelNumber:   level.LevelNumber,
		NodeType:      nodeType,
	}
}
