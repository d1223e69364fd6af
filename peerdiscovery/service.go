package peerdiscovery

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Status is C6's small state machine, per spec.md §4.6.
type Status int32

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const (
	defaultBroadcastInterval = 60 * time.Second
	maxConnectionRetries     = 3
	connectionRetryDelay     = 5 * time.Second
)

// ConnectFunc is the BTP-connector callback invoked on discovery of a new
// peer. Returning an error schedules a bounded retry per spec.md §4.6.
type ConnectFunc func(ctx context.Context, peer DiscoveredPeer) error

// Config configures a Service, following the teacher's convention of an
// injected Config struct rather than constructor parameters.
type Config struct {
	Enabled            bool
	DiscoveryEndpoints []string

	NodeID       string
	BTPEndpoint  string
	ILPAddress   string
	Capabilities []string
	Version      string

	// BroadcastInterval is the cadence for announce/fetch/cleanup.
	// Defaults to 60s when zero.
	BroadcastInterval time.Duration

	// OnDiscover is called for every newly seen peer. May be nil, in
	// which case discovery only maintains the directory and never
	// attempts a transport-level connection.
	OnDiscover ConnectFunc
}

func (c *Config) broadcastInterval() time.Duration {
	if c.BroadcastInterval <= 0 {
		return defaultBroadcastInterval
	}
	return c.BroadcastInterval
}

func (c *Config) ttl() time.Duration {
	return 2 * c.broadcastInterval()
}

// Service is the C6 actor: a periodic announce/fetch/cleanup loop plus
// bounded per-peer connection retry, grounded on the teacher's
// start/stop/quit-channel lifecycle idiom.
type Service struct {
	cfg Config

	status int32

	quit chan struct{}
	wg   sync.WaitGroup

	dir       *directory
	endpoints []*endpointClient

	nowFunc func() int64
}

// New constructs a Service. Call Start to begin the periodic loop.
func New(cfg Config) *Service {
	endpoints := make([]*endpointClient, 0, len(cfg.DiscoveryEndpoints))
	for _, e := range cfg.DiscoveryEndpoints {
		endpoints = append(endpoints, newEndpointClient(e))
	}

	return &Service{
		cfg:       cfg,
		status:    int32(StatusStopped),
		quit:      make(chan struct{}),
		dir:       newDirectory(),
		endpoints: endpoints,
		nowFunc:   func() int64 { return time.Now().UnixMilli() },
	}
}

// Status reports the service's current lifecycle state.
func (s *Service) Status() Status {
	return Status(atomic.LoadInt32(&s.status))
}

// Start begins the broadcast/cleanup loop. Idempotent: calling it while
// not stopped logs a warning and returns. If disabled or no discovery
// endpoints are configured, returns immediately without transitioning
// past stopped, per spec.md §4.6.
func (s *Service) Start() error {
	if !s.cfg.Enabled || len(s.cfg.DiscoveryEndpoints) == 0 {
		log.Infof("peer discovery disabled or has no configured endpoints")
		return nil
	}

	if !atomic.CompareAndSwapInt32(&s.status, int32(StatusStopped), int32(StatusStarting)) {
		log.Warnf("peer discovery service already started")
		return nil
	}

	s.quit = make(chan struct{})
	atomic.StoreInt32(&s.status, int32(StatusRunning))

	s.wg.Add(1)
	go s.loop()

	return nil
}

// Stop cancels the broadcast timer, waits for the in-flight cycle to
// finish, and best-effort deregisters the local node from every
// discovery endpoint.
func (s *Service) Stop() error {
	if !atomic.CompareAndSwapInt32(&s.status, int32(StatusRunning), int32(StatusStopping)) {
		return nil
	}

	close(s.quit)
	s.wg.Wait()

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, ep := range s.endpoints {
		wg.Add(1)
		go func(ep *endpointClient) {
			defer wg.Done()
			if err := ep.deregister(ctx, s.cfg.NodeID); err != nil {
				log.Debugf("deregister from %s failed: %v", ep.base, err)
			}
		}(ep)
	}
	wg.Wait()

	atomic.StoreInt32(&s.status, int32(StatusStopped))
	return nil
}

func (s *Service) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.broadcastInterval())
	defer ticker.Stop()

	s.runCycle()

	for {
		select {
		case <-ticker.C:
			s.runCycle()
		case <-s.quit:
			return
		}
	}
}

// runCycle runs one broadcast+fetch round against every endpoint
// concurrently, then applies TTL cleanup. Per spec.md §4.6,
// announce-then-fetch within one endpoint is sequential; endpoints run
// in parallel and an error on one never blocks the others.
func (s *Service) runCycle() {
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, ep := range s.endpoints {
		wg.Add(1)
		go func(ep *endpointClient) {
			defer wg.Done()
			s.announceAndFetch(ctx, ep)
		}(ep)
	}
	wg.Wait()

	evicted := s.dir.evictExpired(s.nowFunc(), s.cfg.ttl())
	for _, nodeID := range evicted {
		log.Debugf("evicted peer %s from discovery directory (ttl expired)", nodeID)
	}
}

func (s *Service) announceAndFetch(ctx context.Context, ep *endpointClient) {
	self := announceRequest{
		NodeID:       s.cfg.NodeID,
		BTPEndpoint:  s.cfg.BTPEndpoint,
		ILPAddress:   s.cfg.ILPAddress,
		Capabilities: s.cfg.Capabilities,
		Version:      s.cfg.Version,
	}

	if _, err := ep.announce(ctx, self); err != nil {
		log.Warnf("announce to %s failed: %v", ep.base, err)
		return
	}

	peers, err := ep.fetch(ctx)
	if err != nil {
		log.Warnf("fetch from %s failed: %v", ep.base, err)
		return
	}

	for _, p := range peers {
		if p.NodeID == s.cfg.NodeID {
			continue
		}
		if s.dir.merge(p) {
			s.onNewPeer(p)
		}
	}
}

// onNewPeer invokes the connect callback, scheduling up to
// maxConnectionRetries retries spaced connectionRetryDelay apart on
// failure, per spec.md §4.6.
func (s *Service) onNewPeer(peer DiscoveredPeer) {
	if s.cfg.OnDiscover == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.attemptConnect(peer)
	}()
}

func (s *Service) attemptConnect(peer DiscoveredPeer) {
	ctx := context.Background()

	if err := s.cfg.OnDiscover(ctx, peer); err == nil {
		s.dir.markConnected(peer.NodeID)
		return
	}
	log.Warnf("connect to peer %s failed, scheduling retries", peer.NodeID)

	for {
		attempt := s.dir.incrementRetry(peer.NodeID)
		if attempt > maxConnectionRetries {
			log.Errorf("exhausted connection retries for peer %s", peer.NodeID)
			return
		}

		select {
		case <-time.After(connectionRetryDelay):
		case <-s.quit:
			return
		}

		if err := s.cfg.OnDiscover(ctx, peer); err == nil {
			s.dir.markConnected(peer.NodeID)
			return
		}
	}
}

// Peers returns a snapshot of the current discovery directory.
func (s *Service) Peers() []DiscoveredPeer {
	return s.dir.Snapshot()
}
