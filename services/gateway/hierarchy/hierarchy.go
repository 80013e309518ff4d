// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hierarchy computes where a newly created node belongs inside a
// user-defined classification structure.
//
// A hierarchy is a named scheme of ordered levels. Each level carries a level
// number (unique within its hierarchy) and a set of permitted node types; an
// empty set means unrestricted. An assignment links a node to one position
// (hierarchy, level); a node holds at most one assignment per hierarchy.
//
// Placement is decided by a strict, ordered chain per creation request. The
// first matching branch wins and terminates the chain. Unresolved references
// and disallowed types are rejected outright, never silently defaulted to
// another hierarchy or level.
package hierarchy

import (
	"errors"
	"fmt"
	"slices"
)

// -----------------------------------------------------------------------------
// Records
// -----------------------------------------------------------------------------

// Hierarchy is a named classification scheme composed of ordered levels.
type Hierarchy struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Level is one rung of a hierarchy.
type Level struct {
	ID          string `json:"id"`
	HierarchyID string `json:"hierarchy_id"`
	LevelNumber int    `json:"level_number"`
	Label       string `json:"label"`

	// AllowedTypes is the set of node types permitted at this level.
	// Empty means unrestricted.
	AllowedTypes []string `json:"allowed_types,omitempty"`
}

// Allows reports whether a node of the given type may sit at this level.
func (l *Level) Allows(nodeType string) bool {
	if len(l.AllowedTypes) == 0 {
		return true
	}
	return slices.Contains(l.AllowedTypes, nodeType)
}

// Assignment links a node to its position in one hierarchy.
type Assignment struct {
	ID          string `json:"id"`
	NodeID      string `json:"node_id"`
	HierarchyID string `json:"hierarchy_id"`
	LevelID     string `json:"level_id"`
	LevelNumber int    `json:"level_number"`
}

// -----------------------------------------------------------------------------
// Placement Decision
// -----------------------------------------------------------------------------

// Branch identifies which step of the decision chain produced a placement.
type Branch int

const (
	// BranchNone means no hierarchy hint was supplied. The node is created
	// without an assignment; this is a valid terminal state, not an error.
	BranchNone Branch = iota

	// BranchExplicitAssignment means the caller supplied a concrete
	// (hierarchy, level) pair.
	BranchExplicitAssignment

	// BranchExplicitLevel means the caller supplied only a level; the
	// owning hierarchy was derived from the level itself.
	BranchExplicitLevel

	// BranchParentDerived means the placement was derived from a parent
	// node's assignment, one level below it.
	BranchParentDerived
)

func (b Branch) String() string {
	switch b {
	case BranchNone:
		return "none"
	case BranchExplicitAssignment:
		return "explicit_assignment"
	case BranchExplicitLevel:
		return "explicit_level"
	case BranchParentDerived:
		return "parent_derived"
	default:
		return "unknown"
	}
}

// Request carries the placement hints from a node creation request. All
// fields are optional; which ones are set decides the branch taken.
type Request struct {
	// NodeType is the type of the node being created, checked against the
	// target level's permitted set.
	NodeType string

	// HierarchyID names the hierarchy context. Required for parent-derived
	// placement, optional alongside LevelID.
	HierarchyID string

	// LevelID names a concrete target level.
	LevelID string

	// ParentID references an existing node whose assignment anchors a
	// parent-derived placement.
	ParentID string
}

// Placement is the resolved outcome. When Assigned is false the remaining
// fields are zero and the node is created without an assignment.
type Placement struct {
	Branch      Branch `json:"branch"`
	Assigned    bool   `json:"assigned"`
	HierarchyID string `json:"hierarchy_id,omitempty"`
	LevelID     string `json:"level_id,omitempty"`
	LevelNumber int    `json:"level_number,omitempty"`
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Sentinel errors for placement resolution. All of them are client-input
// faults.
var (
	// ErrInvalidHierarchyReference indicates a referenced hierarchy id does
	// not resolve to an existing record.
	ErrInvalidHierarchyReference = errors.New("hierarchy reference does not resolve")

	// ErrInvalidLevelReference indicates a referenced or derived level does
	// not resolve to an existing record.
	ErrInvalidLevelReference = errors.New("level reference does not resolve")

	// ErrMissingHierarchyContext indicates a parent-derived placement was
	// requested without naming the hierarchy to derive within.
	ErrMissingHierarchyContext = errors.New("hierarchy context required for parent-derived placement")

	// ErrParentUnassigned indicates the referenced parent node holds no
	// assignment in the target hierarchy.
	ErrParentUnassigned = errors.New("parent node has no assignment in the target hierarchy")

	// ErrIncompletePlacementHint indicates a hierarchy was named without a
	// level or parent to place by. Hints are never silently ignored.
	ErrIncompletePlacementHint = errors.New("hierarchy given without a level or parent reference")
)

// TypeNotAllowedError indicates the node's type is not in the target level's
// permitted set.
type TypeNotAllowedError struct {
	HierarchyName string
	LevelLabel    string
	LevelNumber   int
	NodeType      string
}

func (e *TypeNotAllowedError) Error() string {
	return fmt.Sprintf("type %q is not allowed at level %d (%s) of hierarchy %q",
		e.NodeType, e.LevelNumber, e.LevelLabel, e.HierarchyName)
}
