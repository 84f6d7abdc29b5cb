package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rxtech-lab/safebet-mcp/internal/cache"
	"github.com/rxtech-lab/safebet-mcp/internal/ledger"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const globalScope = "global"

// ViewService reads ledger views through a TTL cache. Values come back JSON-shaped
// (json.Number, []any) whether or not they were cached.
type ViewService interface {
	ModuleAddress() string
	// View may return a cached value up to the configured TTL old.
	View(ctx context.Context, module, name string, args ...any) ([]any, error)
	// Fresh always reads the ledger. Fund-moving calls validate against Fresh reads only.
	Fresh(ctx context.Context, module, name string, args ...any) ([]any, error)
	// Invalidate drops cached views touching any of scopes (addresses) and all global views.
	Invalidate(ctx context.Context, scopes ...string) error
}

type viewService struct {
	client        ledger.Client
	store         cache.Store
	moduleAddress string
	ttl           time.Duration
	logger        *zap.Logger
	group         singleflight.Group

	mu         sync.Mutex
	generation uint64
	keys       map[string]map[string]struct{}
}

func NewViewService(client ledger.Client, store cache.Store, moduleAddress string, ttl time.Duration, logger *zap.Logger) ViewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &viewService{
		client:        client,
		store:         store,
		moduleAddress: moduleAddress,
		ttl:           ttl,
		logger:        logger,
		keys:          map[string]map[string]struct{}{},
	}
}

func (s *viewService) ModuleAddress() string { return s.moduleAddress }

func (s *viewService) View(ctx context.Context, module, name string, args ...any) ([]any, error) {
	req := s.request(module, name, args)
	if s.ttl <= 0 || s.store == nil {
		return s.load(ctx, "", req)
	}
	key, err := cacheKey(req)
	if err != nil {
		return nil, err
	}
	raw, found, err := s.store.Get(ctx, key)
	if err != nil {
		s.logger.Warn("view cache read failed", zap.String("key", key), zap.Error(err))
	}
	if found {
		if values, err := decodeValues(raw); err == nil {
			return values, nil
		}
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.load(ctx, key, req)
	})
	if err != nil {
		return nil, err
	}
	return v.([]any), nil
}

func (s *viewService) Fresh(ctx context.Context, module, name string, args ...any) ([]any, error) {
	req := s.request(module, name, args)
	key := ""
	if s.ttl > 0 && s.store != nil {
		var err error
		if key, err = cacheKey(req); err != nil {
			return nil, err
		}
	}
	return s.load(ctx, key, req)
}

// load reads the ledger and, when key is set, stores the result unless an
// invalidation happened while the read was in flight.
func (s *viewService) load(ctx context.Context, key string, req ledger.ViewRequest) ([]any, error) {
	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	values, err := s.client.View(ctx, req)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("failed to encode view result: %w", err)
	}
	decoded, err := decodeValues(raw)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return decoded, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return decoded, nil
	}
	if err := s.store.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn("view cache write failed", zap.String("key", key), zap.Error(err))
		return decoded, nil
	}
	for _, scope := range scopesOf(req.Arguments) {
		if s.keys[scope] == nil {
			s.keys[scope] = map[string]struct{}{}
		}
		s.keys[scope][key] = struct{}{}
	}
	return decoded, nil
}

func (s *viewService) Invalidate(ctx context.Context, scopes ...string) error {
	s.mu.Lock()
	s.generation++
	var keys []string
	for _, scope := range append(normalizeScopes(scopes), globalScope) {
		for key := range s.keys[scope] {
			keys = append(keys, key)
		}
		delete(s.keys, scope)
	}
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	var firstErr error
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to invalidate %s: %w", key, err)
		}
	}
	return firstErr
}

func (s *viewService) request(module, name string, args []any) ledger.ViewRequest {
	if args == nil {
		args = []any{}
	}
	return ledger.ViewRequest{
		Function:      ledger.FunctionID(s.moduleAddress, module, name),
		TypeArguments: []string{},
		Arguments:     args,
	}
}

func cacheKey(req ledger.ViewRequest) (string, error) {
	args, err := json.Marshal(req.Arguments)
	if err != nil {
		return "", fmt.Errorf("failed to encode view arguments: %w", err)
	}
	return "view:" + strings.ToLower(req.Function) + ":" + strings.ToLower(string(args)), nil
}

// scopesOf lists the addresses among args, or the global scope when there are none.
func scopesOf(args []any) []string {
	var scopes []string
	for _, arg := range args {
		if s, ok := arg.(string); ok {
			if addr, ok := ledger.NormalizeAddress(s); ok {
				scopes = append(scopes, strings.ToLower(addr))
			}
		}
	}
	if len(scopes) == 0 {
		return []string{globalScope}
	}
	return scopes
}

func normalizeScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, scope := range scopes {
		if addr, ok := ledger.NormalizeAddress(scope); ok {
			out = append(out, strings.ToLower(addr))
		}
	}
	return out
}

func decodeValues(raw []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var values []any
	if err := dec.Decode(&values); err != nil {
		return nil, fmt.Errorf("failed to decode view result: %w", err)
	}
	return values, nil
}
