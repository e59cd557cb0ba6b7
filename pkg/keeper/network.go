// Package keeper bridges the account engine to an automation network:
// external, economically incentivized actors that poll a resolver and invoke
// an execution callback once it reports ready. LocalNetwork is an in-process
// implementation of that contract.
package keeper

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/perpkit/smartmargin/params"
	"github.com/perpkit/smartmargin/pkg/util"
)

var ErrTaskNotFound = errors.New("automation task not found")

// TaskID identifies a registered automation task.
type TaskID = common.Hash

// TaskRequest registers an execution callback paired with its resolver.
// The resolver is the read-only validity check the network polls; Exec is
// invoked once the resolver reports ready.
type TaskRequest struct {
	Name     string
	Resolver func() (bool, error)
	Exec     func() error
	// FeeToken the creator offers payment in (placeholder at creation;
	// the quoted fee is pulled via FeeDetails at execution time).
	FeeToken common.Address
}

// Network is the automation-network surface the engine consumes.
type Network interface {
	CreateTask(req TaskRequest) (TaskID, error)
	CancelTask(id TaskID) error
	// FeeDetails quotes the execution fee and the token it is owed in.
	FeeDetails() (fee *big.Int, feeToken common.Address)
	// Collector is the address keeper fees are paid to.
	Collector() common.Address
}

type task struct {
	id  TaskID
	req TaskRequest
}

// LocalNetwork runs automation tasks in-process on a polling loop.
type LocalNetwork struct {
	mu      sync.Mutex
	tasks   map[TaskID]*task
	counter uint64
	cfg     params.Keeper
	clock   util.Clock
	log     *zap.Logger
}

func NewLocalNetwork(cfg params.Keeper, log *zap.Logger) *LocalNetwork {
	return &LocalNetwork{
		tasks: make(map[TaskID]*task),
		cfg:   cfg,
		clock: util.RealClock{},
		log:   log.Named("keeper"),
	}
}

func (n *LocalNetwork) CreateTask(req TaskRequest) (TaskID, error) {
	if req.Resolver == nil || req.Exec == nil {
		return TaskID{}, fmt.Errorf("task requires resolver and exec callbacks")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.counter++
	id := deriveTaskID(n.counter, req.Name)
	n.tasks[id] = &task{id: id, req: req}
	n.log.Info("task created", zap.String("task", id.Hex()), zap.String("name", req.Name))
	return id, nil
}

func (n *LocalNetwork) CancelTask(id TaskID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.tasks[id]; !exists {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id.Hex())
	}
	delete(n.tasks, id)
	n.log.Info("task cancelled", zap.String("task", id.Hex()))
	return nil
}

func (n *LocalNetwork) FeeDetails() (*big.Int, common.Address) {
	return new(big.Int).Set(n.cfg.ExecutionFee), n.cfg.FeeToken
}

func (n *LocalNetwork) Collector() common.Address { return n.cfg.Collector }

// TaskCount returns the number of pending tasks.
func (n *LocalNetwork) TaskCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.tasks)
}

// Run polls registered tasks until the context is cancelled. Execution
// errors keep the task registered; retrying is this layer's concern, never
// the engine's.
func (n *LocalNetwork) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.clock.After(n.cfg.PollInterval):
			n.Poll()
		}
	}
}

// Poll runs one resolver pass over all tasks, executing any that are ready.
// Exposed so tests can drive the network deterministically.
func (n *LocalNetwork) Poll() {
	n.mu.Lock()
	pending := make([]*task, 0, len(n.tasks))
	for _, t := range n.tasks {
		pending = append(pending, t)
	}
	n.mu.Unlock()

	for _, t := range pending {
		ready, err := t.req.Resolver()
		if err != nil {
			n.log.Debug("resolver error", zap.String("task", t.id.Hex()), zap.Error(err))
			continue
		}
		if !ready {
			continue
		}
		if err := t.req.Exec(); err != nil {
			n.log.Warn("task execution failed", zap.String("task", t.id.Hex()), zap.Error(err))
			continue
		}
		n.mu.Lock()
		delete(n.tasks, t.id)
		n.mu.Unlock()
		n.log.Info("task executed", zap.String("task", t.id.Hex()))
	}
}

func deriveTaskID(counter uint64, name string) TaskID {
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	h.Write([]byte("smartmargin-task:"))
	h.Write(buf[:])
	h.Write([]byte(name))
	return common.BytesToHash(h.Sum(nil))
}
