// Package portal wires the client stores into one application session: the
// session store drives the enrollment cache, progress tracker and note store,
// and every content change rebuilds the search index.
package portal

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/classroom-portal/pkg/portal/admin"
	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
	"github.com/noah-isme/classroom-portal/pkg/portal/enrollment"
	"github.com/noah-isme/classroom-portal/pkg/portal/search"
	"github.com/noah-isme/classroom-portal/pkg/portal/session"
	"github.com/noah-isme/classroom-portal/pkg/portal/tracker"
)

// Dependencies are optional collaborators; missing ones are built from Config.
type Dependencies struct {
	HTTPClient *http.Client
	Redis      *redis.Client
}

// ModuleStatus is a module with the current identity's completion flag.
type ModuleStatus struct {
	backend.Module
	Completed bool
}

// Portal owns one instance of every store.
type Portal struct {
	Session     *session.Store
	Enrollments *enrollment.Cache
	Progress    *tracker.ProgressTracker
	Notes       *tracker.NoteStore
	Admin       *admin.Client

	api       *backend.Client
	redis     *redis.Client
	ownsRedis bool
	cfg       Config
	logger    zerolog.Logger

	mu          sync.RWMutex
	index       *search.Index
	applied     string
	settled     bool
	seen        uint64
	cancelSwap  context.CancelFunc
	unsubscribe func()

	// swapMu serialises identity swaps of the dependent stores.
	swapMu sync.Mutex
}

// New builds a portal from cfg.
func New(cfg Config, deps Dependencies, logger zerolog.Logger) (*Portal, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client, err := backend.New(backend.Options{BaseURL: cfg.BaseURL, HTTPClient: deps.HTTPClient, Timeout: cfg.Timeout})
	if err != nil {
		return nil, err
	}

	redisClient, ownsRedis := deps.Redis, false
	if redisClient == nil && cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		redisClient, ownsRedis = redis.NewClient(opts), true
	}
	if cfg.Storage == StorageLocal && redisClient == nil {
		return nil, fmt.Errorf("local storage requires a redis url")
	}

	var persister session.Persister
	if redisClient != nil {
		persister = session.NewRedisPersister(redisClient, cfg.SessionKey, cfg.SessionTTL)
	}
	store := session.New(client, persister, logger)
	api := client.WithTokens(store)

	var (
		progressRepo tracker.ProgressRepository
		noteRepo     tracker.NoteRepository
	)
	if cfg.Storage == StorageLocal {
		progressRepo, noteRepo = tracker.NewLocalProgress(redisClient), tracker.NewLocalNotes(redisClient)
	} else {
		progressRepo, noteRepo = tracker.NewRemoteProgress(api), tracker.NewRemoteNotes(api)
	}

	adminClient, err := admin.New(admin.Options{
		FunctionsURL: cfg.FunctionsURL,
		HTTPClient:   client.HTTPClient(),
		Timeout:      cfg.Timeout,
		Tokens:       store,
	})
	if err != nil {
		return nil, err
	}

	p := &Portal{
		Session:     store,
		Enrollments: enrollment.New(api, enrollment.Options{Descending: cfg.Descending}, logger),
		Progress:    tracker.NewProgressTracker(progressRepo, tracker.Options{}, logger),
		Notes:       tracker.NewNoteStore(noteRepo, tracker.Options{RollbackOnError: cfg.RollbackNotes}, cfg.NoteMaxBytes, logger),
		Admin:       adminClient,
		api:         api,
		redis:       redisClient,
		ownsRedis:   ownsRedis,
		cfg:         cfg,
		logger:      logger.With().Str("component", "portal").Logger(),
		index:       search.Build(nil, nil),
	}
	p.Enrollments.OnChange(p.rebuildIndex)
	p.Notes.OnChange(p.rebuildIndex)
	p.unsubscribe = store.Subscribe(p.onSession)

	p.logger.Info().Str("storage", string(cfg.Storage)).Str("backend", cfg.BaseURL).Msg("portal initialised")
	return p, nil
}

// Start restores the persisted session. Dependent stores load once it settles.
func (p *Portal) Start(ctx context.Context) error {
	return p.Session.Restore(ctx)
}

// Close detaches from the session and releases owned connections.
func (p *Portal) Close() error {
	p.mu.Lock()
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
	if p.cancelSwap != nil {
		p.cancelSwap()
	}
	p.mu.Unlock()

	if p.ownsRedis {
		return p.redis.Close()
	}
	return nil
}

// WatchAuthEvents applies backend auth events to the session until ctx is done.
func (p *Portal) WatchAuthEvents(ctx context.Context) error {
	token, err := p.api.EventToken(ctx)
	if err != nil {
		return err
	}
	return p.api.WatchAuthEvents(ctx, token, func(event backend.AuthEvent) {
		p.Session.HandleAuthEvent(ctx, event)
	})
}

// Search queries the current index.
func (p *Portal) Search(query string) []search.Result {
	p.mu.RLock()
	index := p.index
	p.mu.RUnlock()
	return index.Search(query, p.cfg.SearchLimit)
}

// ModulesWithProgress lists the modules of an enrolled class in display order
// with their completion flags.
func (p *Portal) ModulesWithProgress(classID string) ([]ModuleStatus, error) {
	class, ok := p.Enrollments.Class(classID)
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "class not found or not enrolled")
	}
	modules := make([]ModuleStatus, 0, len(class.Modules))
	for _, module := range class.Modules {
		modules = append(modules, ModuleStatus{Module: module, Completed: p.Progress.IsCompleted(module.ID)})
	}
	return modules, nil
}

func (p *Portal) rebuildIndex() {
	index := search.Build(p.Enrollments.Classes(), p.Notes.Notes())
	p.mu.Lock()
	p.index = index
	p.mu.Unlock()
}

// onSession follows settled session changes; loading states are ignored so
// dependent stores never treat an unresolved session as signed out.
func (p *Portal) onSession(snap session.Snapshot) {
	if !snap.CanDecideRedirect() {
		return
	}
	var identity *session.Identity
	if snap.Authenticated() {
		identity = snap.Identity
	}
	if err := p.apply(context.Background(), snap.Version, identity); err != nil {
		p.logger.Warn().Err(err).Msg("failed to load data for the current identity")
	}
}

// apply swaps every dependent store to identity. A newer swap cancels the
// fetches of an older one, and a session version older than the last one seen
// is ignored since listeners may be delivered out of order.
func (p *Portal) apply(ctx context.Context, version uint64, identity *session.Identity) error {
	id := ""
	if identity != nil {
		id = identity.ID
	}

	p.mu.Lock()
	if version < p.seen {
		p.mu.Unlock()
		p.logger.Debug().Uint64("version", version).Msg("ignored stale session change")
		return nil
	}
	p.seen = version
	if p.settled && p.applied == id {
		p.mu.Unlock()
		return nil
	}
	p.settled, p.applied = true, id
	if p.cancelSwap != nil {
		p.cancelSwap()
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancelSwap = cancel
	p.mu.Unlock()
	defer cancel()

	p.swapMu.Lock()
	defer p.swapMu.Unlock()
	if ctx.Err() != nil {
		return nil
	}

	p.logger.Debug().Str("identity_id", id).Msg("switching identity")
	var g errgroup.Group
	g.Go(func() error { return p.Enrollments.SetIdentity(ctx, identity) })
	g.Go(func() error { return p.Progress.SetIdentity(ctx, identity) })
	g.Go(func() error { return p.Notes.SetIdentity(ctx, identity) })
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
