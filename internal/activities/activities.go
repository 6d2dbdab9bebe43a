package activities

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/agents"
	"github.com/kestrel-ops/kestrel/internal/db"
	"github.com/kestrel-ops/kestrel/internal/llm"
	"github.com/kestrel-ops/kestrel/internal/memory"
	"github.com/kestrel-ops/kestrel/internal/planner"
	"github.com/kestrel-ops/kestrel/internal/policy"
	"github.com/kestrel-ops/kestrel/internal/session"
	"github.com/kestrel-ops/kestrel/internal/streaming"
	"github.com/kestrel-ops/kestrel/internal/tools"
)

// CompletionClient is the LLM surface the activities need.
type CompletionClient interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// ToolGateway is the tool-execution surface the specialist loop needs.
type ToolGateway interface {
	ListTools(ctx context.Context) ([]tools.Info, error)
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Dependencies carries everything the activities use. All collaborators are
// injected; activities construct nothing network-facing themselves.
type Dependencies struct {
	Logger       *zap.Logger
	MemoryStore  *memory.Store
	Conversation *memory.ConversationManager
	Sessions     *session.Manager
	LLM          CompletionClient
	Planner      *planner.Planner
	Registry     *agents.Registry
	Tools        ToolGateway
	Policy       policy.Engine
	DB           *db.Client
	Streams      *streaming.Manager
}

// Activities hosts all Temporal activity implementations. Every network call
// the orchestration makes happens here, never in workflow code.
type Activities struct {
	logger       *zap.Logger
	memoryStore  *memory.Store
	conversation *memory.ConversationManager
	sessions     *session.Manager
	llm          CompletionClient
	planner      *planner.Planner
	registry     *agents.Registry
	tools        ToolGateway
	policy       policy.Engine
	db           *db.Client
	streams      *streaming.Manager

	toolCatalogMu   sync.Mutex
	toolCatalog     []tools.Info
	toolCatalogAt   time.Time
	toolCatalogTTL  time.Duration
	maxMemoryResults int
}

// New creates the activity set.
func New(deps Dependencies) *Activities {
	return &Activities{
		logger:           deps.Logger,
		memoryStore:      deps.MemoryStore,
		conversation:     deps.Conversation,
		sessions:         deps.Sessions,
		llm:              deps.LLM,
		planner:          deps.Planner,
		registry:         deps.Registry,
		tools:            deps.Tools,
		policy:           deps.Policy,
		db:               deps.DB,
		streams:          deps.Streams,
		toolCatalogTTL:   5 * time.Minute,
		maxMemoryResults: 10,
	}
}

// toolCatalogCached returns the gateway catalog, refreshing it when stale.
// A fetch failure degrades to the previous catalog (or none).
func (a *Activities) toolCatalogCached(ctx context.Context) []tools.Info {
	if a.tools == nil {
		return nil
	}

	a.toolCatalogMu.Lock()
	defer a.toolCatalogMu.Unlock()
	if time.Since(a.toolCatalogAt) < a.toolCatalogTTL && a.toolCatalog != nil {
		return a.toolCatalog
	}

	catalog, err := a.tools.ListTools(ctx)
	if err != nil {
		a.logger.Warn("Tool catalog refresh failed, using cached catalog",
			zap.Int("cached_tools", len(a.toolCatalog)),
			zap.Error(err),
		)
		return a.toolCatalog
	}
	a.toolCatalog = catalog
	a.toolCatalogAt = time.Now()
	return catalog
}
