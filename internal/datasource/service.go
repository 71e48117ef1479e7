package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/leapstack-labs/leapexplore/pkg/adapter"
	"github.com/leapstack-labs/leapexplore/pkg/core"
)

// HistorySource supplies recent queries and remembers the last-used datasource.
type HistorySource interface {
	Recent(ctx context.Context, orgID int64, datasourceUID string, limit int) ([]core.HistoryItem, error)
	SetLastUsedDatasource(ctx context.Context, orgID int64, uid string) error
	LastUsedDatasource(ctx context.Context, orgID int64) (string, error)
}

// Opener connects an adapter for a datasource. Defaults to adapter.Open.
type Opener func(ctx context.Context, cfg adapter.Config, logger *slog.Logger) (adapter.Adapter, error)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Registry *Registry
	History  HistorySource // optional

	// FallbackToDefault resolves unknown references to the org default.
	FallbackToDefault bool
	// HistoryLimit bounds the history returned by LoadAndInit.
	HistoryLimit int
	MaxRows      int
	QueryTimeout time.Duration

	Open   Opener
	Logger *slog.Logger
}

// Service resolves references to cached, connected instances.
type Service struct {
	cfg    ServiceConfig
	logger *slog.Logger

	mu        sync.Mutex
	instances map[string]*Instance // keyed by org/uid
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Open == nil {
		cfg.Open = adapter.Open
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		cfg:       cfg,
		logger:    logger,
		instances: make(map[string]*Instance),
	}
}

// Registry returns the settings registry.
func (s *Service) Registry() *Registry {
	return s.cfg.Registry
}

// LoadAndInit resolves ref to a connected instance plus its recent history
// and records it as the org's last-used datasource.
func (s *Service) LoadAndInit(ctx context.Context, orgID int64, ref core.DataSourceRef) (core.Instance, []core.HistoryItem, error) {
	inst, err := s.Instance(ctx, orgID, ref)
	if err != nil {
		return nil, nil, err
	}

	history := []core.HistoryItem{}
	if s.cfg.History != nil {
		recent, err := s.cfg.History.Recent(ctx, orgID, inst.UID(), s.cfg.HistoryLimit)
		if err != nil {
			return nil, nil, fmt.Errorf("load history of %s: %w", inst.UID(), err)
		}
		if recent != nil {
			history = recent
		}
		if err := s.cfg.History.SetLastUsedDatasource(ctx, orgID, inst.UID()); err != nil {
			s.logger.Warn("failed to record last used datasource", "uid", inst.UID(), "error", err)
		}
	}
	return inst, history, nil
}

// Instance resolves ref and returns its connected instance, opening it on first use.
func (s *Service) Instance(ctx context.Context, orgID int64, ref core.DataSourceRef) (*Instance, error) {
	settings, err := s.cfg.Registry.Get(orgID, ref)
	if errors.Is(err, ErrNotFound) && s.cfg.FallbackToDefault {
		s.logger.Debug("datasource not found, using default", "ref", ref.String(), "org_id", orgID)
		settings, err = s.cfg.Registry.Default(orgID)
	}
	if err != nil {
		return nil, err
	}

	key := instanceKey(settings)
	s.mu.Lock()
	inst, ok := s.instances[key]
	if !ok {
		inst = newInstance(settings, s.connect, s.cfg.MaxRows, s.cfg.QueryTimeout, s.logger)
		s.instances[key] = inst
	}
	s.mu.Unlock()

	// Connect outside s.mu so a slow dial only blocks this datasource.
	if _, err := inst.conn(ctx); err != nil {
		return nil, err
	}
	return inst, nil
}

func (s *Service) connect(ctx context.Context, settings Settings) (adapter.Adapter, error) {
	return s.cfg.Open(ctx, settings.AdapterConfig(), s.logger)
}

// PreferredRef returns the last-used datasource of orgID when it still
// exists, otherwise the org default.
func (s *Service) PreferredRef(ctx context.Context, orgID int64) (core.DataSourceRef, error) {
	if s.cfg.History != nil {
		uid, err := s.cfg.History.LastUsedDatasource(ctx, orgID)
		if err != nil {
			s.logger.Warn("failed to read last used datasource", "error", err)
		} else if uid != "" {
			if ds, err := s.cfg.Registry.Get(orgID, core.DataSourceRef{UID: uid}); err == nil {
				return core.DataSourceRef{UID: ds.UID, Name: ds.Name, Type: ds.Type}, nil
			}
		}
	}
	ds, err := s.cfg.Registry.Default(orgID)
	if err != nil {
		return core.DataSourceRef{}, err
	}
	return core.DataSourceRef{UID: ds.UID, Name: ds.Name, Type: ds.Type}, nil
}

// Reload replaces the registry contents. Instances whose settings changed
// drop their connection and reconnect on next use; instances of removed
// datasources fail with ErrNotFound.
func (s *Service) Reload(settings []Settings) error {
	if err := s.cfg.Registry.Replace(settings); err != nil {
		return err
	}
	current := make(map[string]Settings)
	for _, st := range s.cfg.Registry.all() {
		current[instanceKey(st)] = st
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, inst := range s.instances {
		st, ok := current[key]
		if ok && reflect.DeepEqual(st, inst.Settings()) {
			continue
		}
		var err error
		if ok {
			err = inst.reset(st)
			s.logger.Info("datasource settings changed, reconnecting on next use", "uid", st.UID)
		} else {
			delete(s.instances, key)
			err = inst.remove()
			s.logger.Info("datasource removed", "uid", inst.UID())
		}
		if err != nil {
			s.logger.Warn("failed to close datasource", "uid", inst.UID(), "error", err)
		}
	}
	return nil
}

// CheckResult is the health of one datasource.
type CheckResult struct {
	Settings Settings
	Duration time.Duration
	Err      error
}

// Check connects to every datasource of orgID and pings it.
func (s *Service) Check(ctx context.Context, orgID int64) []CheckResult {
	list := s.cfg.Registry.List(orgID)
	results := make([]CheckResult, 0, len(list))
	for _, st := range list {
		start := time.Now()
		inst, err := s.Instance(ctx, orgID, core.DataSourceRef{UID: st.UID})
		if err == nil {
			err = inst.Ping(ctx)
		}
		results = append(results, CheckResult{Settings: st, Duration: time.Since(start), Err: err})
	}
	return results
}

// Close closes every open instance.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for key, inst := range s.instances {
		errs = append(errs, inst.remove())
		delete(s.instances, key)
	}
	return errors.Join(errs...)
}

func instanceKey(s Settings) string {
	return fmt.Sprintf("%d/%s", s.OrgID, s.UID)
}
