// Package vault pairs indexed records with their storage folders and the
// remote memory service: upload, match, download and delete.
package vault

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/alucardeht/memvault/internal/config"
	"github.com/alucardeht/memvault/internal/index"
	"github.com/alucardeht/memvault/internal/logger"
	"github.com/alucardeht/memvault/internal/memu"
	"github.com/alucardeht/memvault/internal/rewrite"
	"github.com/alucardeht/memvault/internal/storage"
)

var log = logger.ForComponent("vault")

// Index is the subset of *index.Store the vault needs.
type Index interface {
	Insert(rec *index.Record) error
	List(owner index.Owner, category *index.Category, limit int) ([]*index.Record, error)
	Get(recordID string, owner index.Owner) (*index.Record, error)
	DeleteMany(recordIDs []string, owner index.Owner) (int, error)
	SetMemorizeOutcome(recordID string, owner index.Owner, taskID string, status index.MemorizeStatus, memuErr string) (bool, error)
	SetTaskID(recordID string, owner index.Owner, taskID string) (bool, error)
	LogDownload(recordID, sourcePath, savedPath, userID string) error
}

// Gateway is the subset of *memu.Client the vault needs.
type Gateway interface {
	Enabled() bool
	Memorize(conversation []memu.Message, userID, agentID string, override map[string]interface{}, wait bool, pollInterval, timeout time.Duration) *memu.MemorizeResult
	Retrieve(ctx context.Context, query, userID, agentID string, override map[string]interface{}) *memu.RetrieveResult
}

type Options struct {
	StorageRoot     string
	Resolver        *storage.Resolver
	Scenarios       *config.Scenarios
	Rewriter        rewrite.Rewriter
	PollInterval    time.Duration
	MemorizeTimeout time.Duration
	WaitOnMemorize  bool
}

type Service struct {
	index     Index
	gateway   Gateway
	resolver  *storage.Resolver
	root      string
	scenarios *config.Scenarios
	rewriter  rewrite.Rewriter

	pollInterval    time.Duration
	memorizeTimeout time.Duration
	wait            bool

	copyFile func(dst io.Writer, src io.Reader) (int64, error)
	newID    func() string
	now      func() time.Time
}

func NewService(idx Index, gw Gateway, opts Options) *Service {
	if opts.Resolver == nil {
		opts.Resolver = storage.NewResolver(opts.StorageRoot)
	}
	if opts.Scenarios == nil {
		opts.Scenarios = config.EmptyScenarios()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MemorizeTimeout <= 0 {
		opts.MemorizeTimeout = 120 * time.Second
	}

	return &Service{
		index:           idx,
		gateway:         gw,
		resolver:        opts.Resolver,
		root:            opts.StorageRoot,
		scenarios:       opts.Scenarios,
		rewriter:        opts.Rewriter,
		pollInterval:    opts.PollInterval,
		memorizeTimeout: opts.MemorizeTimeout,
		wait:            opts.WaitOnMemorize,
		copyFile:        io.Copy,
		newID:           uuid.NewString,
		now:             time.Now,
	}
}

func (s *Service) StorageRoot() string {
	return s.root
}

func (s *Service) GatewayEnabled() bool {
	return s.gateway != nil && s.gateway.Enabled()
}

func (s *Service) ListRecords(owner index.Owner, category *index.Category, limit int) ([]*index.Record, error) {
	return s.index.List(owner, category, limit)
}

func (s *Service) GetRecord(recordID string, owner index.Owner) (*index.Record, error) {
	return s.index.Get(recordID, owner)
}

func (s *Service) LogDownload(recordID, sourcePath, savedPath, userID string) error {
	return s.index.LogDownload(recordID, sourcePath, savedPath, userID)
}

func (s *Service) resolve(rec *index.Record) (string, bool) {
	return s.resolver.Resolve(rec, s.root, rec.Owner.UserID, rec.Owner.AgentID)
}

// memorize submits conversation and attaches the terminal outcome to the
// record. Disabled gateways leave the record untouched.
func (s *Service) memorize(rec *index.Record, task string, conversation []memu.Message) *memu.MemorizeResult {
	if !s.GatewayEnabled() {
		return &memu.MemorizeResult{Error: memu.ErrorDisabled}
	}

	owner := rec.Owner
	override := s.scenarios.MemorizeOverride(owner.AgentID, task)
	res := s.gateway.Memorize(conversation, owner.UserID, owner.AgentID, override, s.wait, s.pollInterval, s.memorizeTimeout)

	status := outcomeStatus(res, s.wait)
	if status == index.MemorizePending {
		if _, err := s.index.SetTaskID(rec.RecordID, owner, res.TaskID); err != nil {
			log.Error("failed to store memorize task id", "record_id", rec.RecordID, "task_id", res.TaskID, "error", err)
			return res
		}
		rec.TaskID = res.TaskID
		log.Info("memorize submitted without waiting", "record_id", rec.RecordID, "task_id", res.TaskID)
		return res
	}

	ok, err := s.index.SetMemorizeOutcome(rec.RecordID, owner, res.TaskID, status, res.Error)
	if err != nil {
		log.Error("failed to attach memorize outcome", "record_id", rec.RecordID, "error", err)
	} else if !ok {
		log.Warn("memorize outcome already attached", "record_id", rec.RecordID)
	} else {
		rec.TaskID = res.TaskID
		rec.MemorizeStatus = status
		rec.MemuError = res.Error
	}

	return res
}

func outcomeStatus(res *memu.MemorizeResult, waited bool) index.MemorizeStatus {
	switch {
	case res.Error != "":
		return index.MemorizeFailed
	case res.Status == memu.StatusSuccess:
		return index.MemorizeSuccess
	case res.Status == memu.StatusFailed:
		return index.MemorizeFailed
	case res.Status == memu.StatusTimeout:
		return index.MemorizeTimeout
	case !waited:
		return index.MemorizePending
	default:
		return index.MemorizeFailed
	}
}
