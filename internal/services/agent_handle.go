package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blagoySimandov/certmapper/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const agentCreateTimeout = 2 * time.Minute

// AgentHandleProvider creates the remote agent definition on first use and hands the same
// handle to every later caller. A failed creation is not remembered, so the next caller retries.
//
// Creation runs detached from the caller that triggered it and is bounded by agentCreateTimeout.
// Waiting callers return as soon as their own context is done.
type AgentHandleProvider struct {
	backend    AgentBackend
	definition AgentDefinition
	timeout    time.Duration

	group  singleflight.Group
	mu     sync.Mutex
	handle *models.AgentHandle
}

func NewAgentHandleProvider(backend AgentBackend, definition AgentDefinition) *AgentHandleProvider {
	return &AgentHandleProvider{
		backend:    backend,
		definition: definition,
		timeout:    agentCreateTimeout,
	}
}

func (p *AgentHandleProvider) Get(ctx context.Context) (models.AgentHandle, error) {
	if handle, ok := p.Current(); ok {
		return handle, nil
	}

	createCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan(p.definition.Name, func() (interface{}, error) {
		return p.create(createCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.AgentHandle{}, res.Err
		}
		return res.Val.(models.AgentHandle), nil
	case <-ctx.Done():
		return models.AgentHandle{}, ctx.Err()
	}
}

func (p *AgentHandleProvider) create(ctx context.Context) (models.AgentHandle, error) {
	if handle, ok := p.Current(); ok {
		return handle, nil
	}

	log.Debug().
		Str("agentName", p.definition.Name).
		Str("model", p.definition.Model).
		Msg("Agent handle miss, creating agent")

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	handle, err := p.backend.CreateAgent(ctx, p.definition)
	if err != nil {
		return models.AgentHandle{}, fmt.Errorf("failed to create agent: %w", err)
	}

	p.mu.Lock()
	p.handle = &handle
	p.mu.Unlock()

	log.Debug().
		Str("agentID", handle.ID).
		Msg("Agent created")

	return handle, nil
}

// Current returns the handle if one has been created.
func (p *AgentHandleProvider) Current() (models.AgentHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.handle == nil {
		return models.AgentHandle{}, false
	}
	return *p.handle, true
}
