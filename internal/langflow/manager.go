package langflow

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zulandar/switchboard/internal/models"
)

// Manager caches one Client per flow name so run calls reuse pooled
// connections. A cached client is evicted whenever its flow's configuration
// changes and recreated lazily on next use.
type Manager struct {
	requestTimeout time.Duration
	connectTimeout time.Duration
	maxRetries     int

	mu      sync.Mutex
	clients map[string]*Client
}

// ManagerOpts holds parameters for creating a Manager.
type ManagerOpts struct {
	RequestTimeout time.Duration // defaults to DefaultRequestTimeout
	ConnectTimeout time.Duration // defaults to DefaultConnectTimeout
	MaxRetries     int           // defaults to DefaultMaxRetries
}

// NewManager creates a Manager.
func NewManager(opts ManagerOpts) *Manager {
	return &Manager{
		requestTimeout: opts.RequestTimeout,
		connectTimeout: opts.ConnectTimeout,
		maxRetries:     opts.MaxRetries,
		clients:        make(map[string]*Client),
	}
}

// Get returns the cached client for a flow, creating one if needed.
func (m *Manager) Get(flow *models.Flow) (*Client, error) {
	if flow == nil {
		return nil, fmt.Errorf("langflow: manager: flow is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if client, ok := m.clients[flow.Name]; ok {
		return client, nil
	}
	client, err := NewClient(ClientOpts{
		Flow:           flow,
		RequestTimeout: m.requestTimeout,
		ConnectTimeout: m.connectTimeout,
		MaxRetries:     m.maxRetries,
	})
	if err != nil {
		return nil, err
	}
	m.clients[flow.Name] = client
	log.Printf("langflow: created client for flow %q", flow.Name)
	return client, nil
}

// Invalidate evicts the cached client for a flow, e.g. after its
// configuration changed or the flow was removed.
func (m *Manager) Invalidate(flowName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if client, ok := m.clients[flowName]; ok {
		client.Close()
		delete(m.clients, flowName)
		log.Printf("langflow: invalidated client for flow %q", flowName)
	}
}

// CloseAll closes every cached client and empties the cache.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, client := range m.clients {
		client.Close()
		log.Printf("langflow: closed client for flow %q", name)
	}
	m.clients = make(map[string]*Client)
}
