// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianGraph/services/gateway/capability"
	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
)

const (
	recordPrefix = "tenant/record/"
	sequenceKey  = "tenant/namespace_seq"

	// namespaceOffset keeps allocated namespaces clear of the reserved
	// 0x0 and 0x1 slots.
	namespaceOffset = 2

	// sequenceBandwidth is how many ids a badger Sequence leases at once.
	sequenceBandwidth = 16
)

// AdminStore is the slice of the Dgraph client the registry drives for
// namespace-scoped schema initialization and destructive cleanup.
type AdminStore interface {
	PushSchema(ctx context.Context, schema string, namespace string) error
	DropAll(ctx context.Context) error
	DropData(ctx context.Context, namespace string) error
	Query(ctx context.Context, query string, vars map[string]any, namespace string) (*dgraph.Response, error)
	Mutate(ctx context.Context, mutation string, vars map[string]any, namespace string) (*dgraph.Response, error)
}

// CapabilitySource supplies the current capability snapshot.
type CapabilitySource interface {
	Detect(ctx context.Context) capability.Snapshot
}

// SchemaSource supplies the GraphQL schema pushed into new namespaces.
type SchemaSource interface {
	Schema(ctx context.Context) (string, error)
}

// SchemaSourceFunc adapts a function to the SchemaSource interface.
type SchemaSourceFunc func(ctx context.Context) (string, error)

// Schema implements SchemaSource.
func (f SchemaSourceFunc) Schema(ctx context.Context) (string, error) { return f(ctx) }

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// ClearBatchSize bounds per-mutation delete batches in
	// ClearNamespaceData.
	// Default: 100
	ClearBatchSize int

	// Logger for registry operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// DefaultRegistryConfig returns sensible defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		ClearBatchSize: 100,
		Logger:         slog.Default(),
	}
}

func (c *RegistryConfig) applyDefaults() {
	defaults := DefaultRegistryConfig()
	if c.ClearBatchSize == 0 {
		c.ClearBatchSize = defaults.ClearBatchSize
	}
	if c.Logger == nil {
		c.Logger = defaults.Logger
	}
}

// Registry allocates, records, and destroys tenant-to-namespace mappings.
//
// Records live in a local BadgerDB store; the backing deployment only sees
// the side effects (schema pushes and namespace wipes). A per-tenant keyed
// mutex serializes create/delete/wipe on the same id; different ids proceed
// independently.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	db     *badger.DB
	seq    *badger.Sequence
	store  AdminStore
	caps   CapabilitySource
	schema SchemaSource
	locks  *keyedMutex

	batchSize int
	logger    *slog.Logger
}

// NewRegistry creates a Registry over an opened store.
func NewRegistry(db *badger.DB, store AdminStore, caps CapabilitySource, schema SchemaSource, config RegistryConfig) (*Registry, error) {
	config.applyDefaults()

	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("open namespace sequence: %w", err)
	}

	return &Registry{
		db:        db,
		seq:       seq,
		store:     store,
		caps:      caps,
		schema:    schema,
		locks:     newKeyedMutex(),
		batchSize: config.ClearBatchSize,
		logger:    config.Logger.With(slog.String("component", "tenant_registry")),
	}, nil
}

// Close releases the namespace sequence. The BadgerDB handle stays open; it
// belongs to the caller.
func (r *Registry) Close() error {
	return r.seq.Release()
}

// CreateTenant allocates a namespace for tenantID, initializes its schema,
// and records the mapping.
//
// Creation is not idempotent: an existing tenant id (including the reserved
// ids, which always exist) fails with ErrAlreadyExists. The schema push into
// the new namespace happens before the record is persisted, so a failed
// initialization leaves no tenant behind.
func (r *Registry) CreateTenant(ctx context.Context, tenantID string) (string, error) {
	if err := ValidateID(tenantID); err != nil {
		return "", err
	}

	r.locks.lock(tenantID)
	defer r.locks.unlock(tenantID)

	if IsReserved(tenantID) {
		return "", fmt.Errorf("%w: %q", ErrAlreadyExists, tenantID)
	}
	exists, err := r.recordExists(tenantID)
	if err != nil {
		return "", err
	}
	if exists {
		return "", fmt.Errorf("%w: %q", ErrAlreadyExists, tenantID)
	}

	namespace, err := r.allocateNamespace()
	if err != nil {
		return "", err
	}

	schema, err := r.schema.Schema(ctx)
	if err != nil {
		return "", fmt.Errorf("load schema: %w", err)
	}
	if err := r.store.PushSchema(ctx, schema, namespace); err != nil {
		return "", fmt.Errorf("initialize namespace %s: %w", namespace, err)
	}

	record := Tenant{
		ID:        tenantID,
		Namespace: namespace,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.putRecord(record); err != nil {
		return "", err
	}

	r.logger.Info("tenant created",
		slog.String("tenant_id", tenantID),
		slog.String("namespace", namespace))
	return namespace, nil
}

// DeleteTenant wipes the tenant's namespace and removes its record.
//
// Reserved tenants are rejected unless force is set; with force, the
// reserved namespace's data is wiped but the tenant itself remains resolvable
// (reserved tenants always exist).
func (r *Registry) DeleteTenant(ctx context.Context, tenantID string, force bool) error {
	if err := ValidateID(tenantID); err != nil {
		return err
	}

	r.locks.lock(tenantID)
	defer r.locks.unlock(tenantID)

	if IsReserved(tenantID) {
		if !force {
			return fmt.Errorf("%w: %q", ErrReservedTenant, tenantID)
		}
		if err := r.store.DropData(ctx, reservedNamespace(tenantID)); err != nil {
			return fmt.Errorf("wipe namespace: %w", err)
		}
		r.logger.Warn("reserved tenant data wiped",
			slog.String("tenant_id", tenantID))
		return nil
	}

	record, err := r.getRecord(tenantID)
	if err != nil {
		return err
	}

	if err := r.store.DropData(ctx, record.Namespace); err != nil {
		return fmt.Errorf("wipe namespace %s: %w", record.Namespace, err)
	}
	if err := r.deleteRecord(tenantID); err != nil {
		return err
	}

	r.logger.Info("tenant deleted",
		slog.String("tenant_id", tenantID),
		slog.String("namespace", record.Namespace))
	return nil
}

// TenantExists reports whether tenantID resolves to a namespace.
func (r *Registry) TenantExists(ctx context.Context, tenantID string) (bool, error) {
	_, err := r.Namespace(ctx, tenantID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Namespace resolves tenantID to its namespace. Reserved tenants resolve to
// their fixed namespaces; everything else requires a registry record.
func (r *Registry) Namespace(_ context.Context, tenantID string) (string, error) {
	if err := ValidateID(tenantID); err != nil {
		return "", err
	}
	if IsReserved(tenantID) {
		return reservedNamespace(tenantID), nil
	}
	record, err := r.getRecord(tenantID)
	if err != nil {
		return "", err
	}
	return record.Namespace, nil
}

// ListTenants returns the reserved tenants followed by every recorded tenant.
func (r *Registry) ListTenants(_ context.Context) ([]Tenant, error) {
	tenants := []Tenant{
		{ID: DefaultTenantID, Namespace: DefaultNamespace},
		{ID: TestTenantID, Namespace: TestNamespace},
	}

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var record Tenant
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &record)
			})
			if err != nil {
				return err
			}
			tenants = append(tenants, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// DropAllData performs the cluster-wide destructive wipe with safety checks.
//
// When namespaces are supported, the caller must supply a confirmation value
// matching the tenant's resolved namespace; a missing or mismatched
// confirmation refuses the operation before any side effect. Without
// namespace support there is only one data partition and the confirmation is
// not required.
func (r *Registry) DropAllData(ctx context.Context, tenantID, confirmNamespace string) error {
	if tenantID == "" {
		tenantID = DefaultTenantID
	}
	if err := ValidateID(tenantID); err != nil {
		return err
	}

	snapshot := r.caps.Detect(ctx)
	if snapshot.NamespacesSupported {
		expected, err := r.Namespace(ctx, tenantID)
		if err != nil {
			return err
		}
		if confirmNamespace != expected {
			return &SafetyViolationError{
				TenantID: tenantID,
				Expected: expected,
				Got:      confirmNamespace,
			}
		}
		r.logger.Warn("dropAll in multi-tenant mode affects every namespace",
			slog.String("tenant_id", tenantID),
			slog.String("confirmed_namespace", confirmNamespace))
	}

	if err := r.store.DropAll(ctx); err != nil {
		return fmt.Errorf("dropAll: %w", err)
	}
	r.logger.Warn("dropAll completed", slog.String("tenant_id", tenantID))
	return nil
}

// ClearNamespaceData deletes all edges and nodes within the tenant's
// namespace without touching other namespaces. Edges go first so node
// deletion never races referential integrity. Returns the deleted counts.
func (r *Registry) ClearNamespaceData(ctx context.Context, tenantID string) (nodes, edges int, err error) {
	namespace, err := r.Namespace(ctx, tenantID)
	if err != nil {
		return 0, 0, err
	}

	r.locks.lock(tenantID)
	defer r.locks.unlock(tenantID)

	edgeIDs, err := r.collectIDs(ctx, `query { queryEdge { id } }`, "queryEdge", namespace)
	if err != nil {
		return 0, 0, err
	}
	nodeIDs, err := r.collectIDs(ctx, `query { queryNode { id } }`, "queryNode", namespace)
	if err != nil {
		return 0, 0, err
	}

	edges, err = r.deleteInBatches(ctx, deleteEdgesMutation, "deleteEdge", edgeIDs, namespace)
	if err != nil {
		return 0, edges, err
	}
	nodes, err = r.deleteInBatches(ctx, deleteNodesMutation, "deleteNode", nodeIDs, namespace)
	if err != nil {
		return nodes, edges, err
	}

	r.logger.Info("namespace cleared",
		slog.String("tenant_id", tenantID),
		slog.String("namespace", namespace),
		slog.Int("nodes_deleted", nodes),
		slog.Int("edges_deleted", edges))
	return nodes, edges, nil
}

// -----------------------------------------------------------------------------
// Internal Methods
// -----------------------------------------------------------------------------

const (
	deleteEdgesMutation = `mutation DeleteEdges($filter: EdgeFilter!) {
	  deleteEdge(filter: $filter) { msg numUids }
	}`

	deleteNodesMutation = `mutation DeleteNodes($filter: NodeFilter!) {
	  deleteNode(filter: $filter) { msg numUids }
	}`
)

func (r *Registry) collectIDs(ctx context.Context, query, field, namespace string) ([]string, error) {
	resp, err := r.store.Query(ctx, query, nil, namespace)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", field, err)
	}

	var data map[string][]struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}

	rows := data[field]
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if row.ID != "" {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func (r *Registry) deleteInBatches(ctx context.Context, mutation, field string, ids []string, namespace string) (int, error) {
	total := 0
	for start := 0; start < len(ids); start += r.batchSize {
		end := min(start+r.batchSize, len(ids))
		vars := map[string]any{
			"filter": map[string]any{"id": ids[start:end]},
		}

		resp, err := r.store.Mutate(ctx, mutation, vars, namespace)
		if err != nil {
			return total, fmt.Errorf("%s batch: %w", field, err)
		}

		var data map[string]struct {
			NumUids int `json:"numUids"`
		}
		if err := json.Unmarshal(resp.Data, &data); err != nil {
			return total, fmt.Errorf("decode %s: %w", field, err)
		}
		total += data[field].NumUids
	}
	return total, nil
}

// allocateNamespace hands out the next namespace id, clear of the reserved
// slots. Allocated ids are never reused, even after tenant deletion.
func (r *Registry) allocateNamespace() (string, error) {
	next, err := r.seq.Next()
	if err != nil {
		return "", fmt.Errorf("allocate namespace: %w", err)
	}
	return fmt.Sprintf("0x%x", next+namespaceOffset), nil
}

func (r *Registry) recordExists(tenantID string) (bool, error) {
	_, err := r.getRecord(tenantID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *Registry) getRecord(tenantID string) (Tenant, error) {
	var record Tenant
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordPrefix + tenantID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &record)
		})
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return Tenant{}, fmt.Errorf("%w: %q", ErrNotFound, tenantID)
		}
		return Tenant{}, fmt.Errorf("read tenant record: %w", err)
	}
	return record, nil
}

func (r *Registry) putRecord(record Tenant) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode tenant record: %w", err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordPrefix+record.ID), raw)
	})
	if err != nil {
		return fmt.Errorf("write tenant record: %w", err)
	}
	return nil
}

func (r *Registry) deleteRecord(tenantID string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(recordPrefix + tenantID))
	})
	if err != nil {
		return fmt.Errorf("delete tenant record: %w", err)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
