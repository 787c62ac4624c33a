// Package eventbus fans the robot's event stream out to network UI
// clients over dndm's publish/subscribe router, the same
// producer-per-route pattern the teacher's display destinations use
// for LIDAR readings, adapted here to publish *robot.Event instead.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/itohio/dndm"
	"github.com/itohio/dndm/endpoint/direct"
	"github.com/itohio/dndm/x/bus"

	"github.com/itohio/groundctl/internal/robot"
	"github.com/itohio/groundctl/pkg/logging"
)

// NewRouter builds a dndm.Router over a local direct endpoint, the
// minimal wiring this process needs to hand events to in-process (or
// same-host) dndm subscribers without the broader network-subscription
// management the spec places out of scope.
func NewRouter(ctx context.Context) (*dndm.Router, error) {
	ep := direct.New(10)
	err := ep.Init(ctx, nil,
		func(dndm.Intent, dndm.Endpoint) error { return nil },
		func(dndm.Interest, dndm.Endpoint) error { return nil },
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: init direct endpoint: %w", err)
	}

	router, err := dndm.New(
		dndm.WithContext(ctx),
		dndm.WithQueueSize(10),
		dndm.WithEndpoint(ep),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: new router: %w", err)
	}
	return router, nil
}

// Publisher holds one dndm producer per named route, fanning every
// robot.Event out to all of them. Routes are registered up front
// (spec.md's CLI "user <addr>" surface maps onto adding a route here);
// this package does not itself manage subscriber discovery, auth, or
// lifecycle beyond that, per spec.md's "network-subscription
// management" non-goal.
type Publisher struct {
	router *dndm.Router

	mu        sync.Mutex
	producers map[string]*bus.Producer[*robot.Event]
}

// NewPublisher returns a Publisher with no routes registered. A nil
// router disables publishing entirely: AddRoute and Publish become
// no-ops, so the caller can construct a Publisher unconditionally even
// when no router could be started.
func NewPublisher(router *dndm.Router) *Publisher {
	return &Publisher{router: router, producers: make(map[string]*bus.Producer[*robot.Event])}
}

// AddRoute starts a producer for route, an idempotent no-op if that
// route already has one.
func (p *Publisher) AddRoute(ctx context.Context, route string) error {
	if p.router == nil {
		return nil
	}
	log := logging.Named("eventbus")

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.producers[route]; ok {
		return nil
	}

	producer, err := bus.NewProducer[*robot.Event](ctx, p.router, route)
	if err != nil {
		return fmt.Errorf("eventbus: producer for route %q: %w", route, err)
	}
	p.producers[route] = producer
	log.Info().Str("route", route).Msg("route added")
	return nil
}

// RemoveRoute closes and drops route's producer, if any.
func (p *Publisher) RemoveRoute(route string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if producer, ok := p.producers[route]; ok {
		producer.Close()
		delete(p.producers, route)
	}
}

// Publish sends ev to every registered route, logging (not failing on)
// a per-route send error so one stuck subscriber never blocks the
// others.
func (p *Publisher) Publish(ctx context.Context, ev *robot.Event) {
	p.mu.Lock()
	routes := make(map[string]*bus.Producer[*robot.Event], len(p.producers))
	for k, v := range p.producers {
		routes[k] = v
	}
	p.mu.Unlock()

	if len(routes) == 0 {
		return
	}
	log := logging.Named("eventbus")
	for route, producer := range routes {
		if err := producer.Send(ctx, ev); err != nil {
			log.Warn().Str("route", route).Err(err).Msg("send failed")
		}
	}
}

// Close shuts down every registered route's producer. The CLI's "user"
// command with no address calls this to stop publishing.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for route, producer := range p.producers {
		producer.Close()
		delete(p.producers, route)
	}
}

// Run drains r's event stream and publishes every event until ctx is
// cancelled or the stream closes.
func Run(ctx context.Context, r *robot.Robot, pub *Publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.Events():
			if !ok {
				return
			}
			ev := ev
			pub.Publish(ctx, &ev)
		}
	}
}
