// Package providertest provides an in-memory provider.Provider for tests.
package providertest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/Dahimi/File-Search-POC/internal/provider"
)

type Upload struct {
	StoreName string
	Path      string
	Meta      provider.UploadMetadata
	Data      []byte
}

// Fake keeps stores in memory. Operations complete after PendingPolls
// status checks. Set the *Err fields or Generate to inject behavior.
type Fake struct {
	mu sync.Mutex

	Stores       map[string]*provider.FileSearchStore
	Uploads      []Upload
	Requests     []*provider.GenerateRequest
	Models       []string
	PendingPolls int
	OperationErr *provider.OperationError

	ListErr         error
	CreateErr       error
	GetErr          error
	DeleteErr       error
	UploadErr       error
	OperationGetErr error
	Generate        func(req *provider.GenerateRequest) (*provider.GenerateResponse, error)

	nextID int
	polls  map[string]int
}

var _ provider.Provider = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		Stores: make(map[string]*provider.FileSearchStore),
		polls:  make(map[string]int),
	}
}

// AddStore seeds a store and returns its name.
func (f *Fake) AddStore(store provider.FileSearchStore) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if store.Name == "" {
		f.nextID++
		store.Name = fmt.Sprintf("fileSearchStores/store-%d", f.nextID)
	}
	f.Stores[store.Name] = &store
	return store.Name
}

func (f *Fake) ListStores(ctx context.Context) ([]provider.FileSearchStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.ListErr != nil {
		return nil, f.ListErr
	}

	names := make([]string, 0, len(f.Stores))
	for name := range f.Stores {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]provider.FileSearchStore, 0, len(names))
	for _, name := range names {
		out = append(out, *f.Stores[name])
	}
	return out, nil
}

func (f *Fake) CreateStore(ctx context.Context, displayName string) (*provider.FileSearchStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	f.nextID++
	store := &provider.FileSearchStore{
		Name:        fmt.Sprintf("fileSearchStores/store-%d", f.nextID),
		DisplayName: displayName,
	}
	f.Stores[store.Name] = store

	copied := *store
	return &copied, nil
}

func (f *Fake) GetStore(ctx context.Context, name string) (*provider.FileSearchStore, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.GetErr != nil {
		return nil, f.GetErr
	}
	store, ok := f.Stores[name]
	if !ok {
		return nil, notFound(name)
	}
	copied := *store
	return &copied, nil
}

func (f *Fake) DeleteStore(ctx context.Context, name string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	if _, ok := f.Stores[name]; !ok {
		return notFound(name)
	}
	delete(f.Stores, name)
	return nil
}

func (f *Fake) UploadToStore(ctx context.Context, storeName, filePath string, meta provider.UploadMetadata) (*provider.Operation, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.UploadErr != nil {
		return nil, f.UploadErr
	}
	store, ok := f.Stores[storeName]
	if !ok {
		return nil, notFound(storeName)
	}

	f.Uploads = append(f.Uploads, Upload{StoreName: storeName, Path: filePath, Meta: meta, Data: data})
	store.PendingDocumentsCount++

	opName := fmt.Sprintf("%s/upload/operations/op-%d", storeName, len(f.Uploads))
	f.polls[opName] = 0
	return &provider.Operation{Name: opName}, nil
}

func (f *Fake) GetOperation(ctx context.Context, name string) (*provider.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.OperationGetErr != nil {
		return nil, f.OperationGetErr
	}
	count, ok := f.polls[name]
	if !ok {
		return nil, notFound(name)
	}
	count++
	f.polls[name] = count

	op := &provider.Operation{Name: name}
	if f.PendingPolls >= 0 && count > f.PendingPolls {
		op.Done = true
		op.Error = f.OperationErr
	}
	return op, nil
}

func (f *Fake) GenerateContent(ctx context.Context, model string, req *provider.GenerateRequest) (*provider.GenerateResponse, error) {
	f.mu.Lock()
	f.Requests = append(f.Requests, req)
	f.Models = append(f.Models, model)
	generate := f.Generate
	f.mu.Unlock()

	if generate == nil {
		return &provider.GenerateResponse{}, nil
	}
	return generate(req)
}

// UploadCount is safe to call while uploads are in flight.
func (f *Fake) UploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Uploads)
}

func notFound(name string) error {
	return &provider.APIError{StatusCode: 404, Status: "NOT_FOUND", Message: name + " not found"}
}
