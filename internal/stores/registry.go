package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/metrics"
	"github.com/Dahimi/File-Search-POC/internal/provider"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

const namePrefix = "fileSearchStores/"

var ErrEmptyDisplayName = errors.New("display name is required")

// ProviderError is a failed store list, create, delete or get call.
type ProviderError struct {
	Op      string
	StoreID string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.StoreID != "" {
		return fmt.Sprintf("failed to %s store %s: %v", e.Op, e.StoreID, e.Err)
	}
	return fmt.Sprintf("failed to %s stores: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Store is the normalized summary of a provider document collection.
type Store struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Active      int64  `json:"active_documents"`
	Pending     int64  `json:"pending_documents"`
	Failed      int64  `json:"failed_documents"`
	SizeBytes   int64  `json:"size_bytes"`
	CreateTime  string `json:"create_time,omitempty"`
	UpdateTime  string `json:"update_time,omitempty"`
}

// Label is the display name, or the identifier when the store has none.
func (s Store) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return s.ID
}

func (s Store) TotalDocuments() int64 {
	return s.Active + s.Pending + s.Failed
}

// NormalizeID accepts either a full store name or its bare suffix.
func NormalizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || strings.HasPrefix(id, namePrefix) {
		return id
	}
	return namePrefix + id
}

// ShortID strips the resource prefix, for use in URLs.
func ShortID(id string) string {
	return strings.TrimPrefix(id, namePrefix)
}

type Registry struct {
	provider provider.Provider
}

func NewRegistry(p provider.Provider) *Registry {
	return &Registry{provider: p}
}

func (r *Registry) List(ctx context.Context) ([]Store, error) {
	remote, err := r.provider.ListStores(ctx)
	if err != nil {
		return nil, r.fail("list", "", err)
	}

	out := make([]Store, 0, len(remote))
	for i := range remote {
		out = append(out, fromProvider(&remote[i]))
	}

	metrics.StoreOperations.WithLabelValues("list", "ok").Inc()
	return out, nil
}

func (r *Registry) Create(ctx context.Context, displayName string) (*Store, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, ErrEmptyDisplayName
	}

	created, err := r.provider.CreateStore(ctx, displayName)
	if err != nil {
		return nil, r.fail("create", "", err)
	}

	store := fromProvider(created)
	if store.DisplayName == "" {
		store.DisplayName = displayName
	}

	logger.Info("Store created",
		zap.String("store_id", store.ID),
		zap.String("display_name", store.DisplayName),
	)
	metrics.StoreOperations.WithLabelValues("create", "ok").Inc()
	return &store, nil
}

// Delete removes the store and every document in it, whatever their state.
func (r *Registry) Delete(ctx context.Context, storeID string) error {
	storeID = NormalizeID(storeID)
	if err := r.provider.DeleteStore(ctx, storeID, true); err != nil {
		return r.fail("delete", storeID, err)
	}

	logger.Info("Store deleted", zap.String("store_id", storeID))
	metrics.StoreOperations.WithLabelValues("delete", "ok").Inc()
	return nil
}

func (r *Registry) GetInfo(ctx context.Context, storeID string) (*Store, error) {
	storeID = NormalizeID(storeID)
	remote, err := r.provider.GetStore(ctx, storeID)
	if err != nil {
		return nil, r.fail("get", storeID, err)
	}

	store := fromProvider(remote)
	if store.ID == "" {
		store.ID = storeID
	}

	metrics.StoreOperations.WithLabelValues("get", "ok").Inc()
	return &store, nil
}

func (r *Registry) fail(op, storeID string, err error) error {
	metrics.StoreOperations.WithLabelValues(op, "error").Inc()
	logger.Error("Store operation failed",
		zap.String("op", op),
		zap.String("store_id", storeID),
		zap.Error(err),
	)
	return &ProviderError{Op: op, StoreID: storeID, Err: err}
}

func fromProvider(s *provider.FileSearchStore) Store {
	return Store{
		ID:          s.Name,
		DisplayName: s.DisplayName,
		Active:      int64(s.ActiveDocumentsCount),
		Pending:     int64(s.PendingDocumentsCount),
		Failed:      int64(s.FailedDocumentsCount),
		SizeBytes:   int64(s.SizeBytes),
		CreateTime:  s.CreateTime,
		UpdateTime:  s.UpdateTime,
	}
}
