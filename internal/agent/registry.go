// Package agent is the entity registry: controllers, pooled agents, their
// global and local identities, and command dispatch to behaviours.
package agent

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/l1jgo/lockstep/internal/command"
	"github.com/l1jgo/lockstep/internal/core/ecs"
	"github.com/l1jgo/lockstep/internal/core/event"
	"github.com/l1jgo/lockstep/internal/fixed"
	"github.com/l1jgo/lockstep/internal/physics"
)

const (
	MaxControllers  = 256
	MaxGlobalAgents = 16384
	MaxLocalAgents  = command.MaxSelectable
)

var (
	ErrCapacity           = errors.New("agent: identity space exhausted")
	ErrTooManyControllers = errors.New("agent: controller limit reached")
	ErrInvalidCode        = errors.New("agent: unknown agent type code")
	ErrUnknownBehaviour   = errors.New("agent: unknown behaviour")
	ErrInactive           = errors.New("agent: agent is not in simulation")
)

// Options bound the identity spaces. Zero values take the package maxima.
type Options struct {
	MaxGlobalAgents int
	MaxLocalAgents  int
}

// typePool is the per-code arena. cache is LIFO; active is indexed by
// TypeIndex.
type typePool struct {
	def       *TypeDef
	factories []BehaviourFactory
	cache     []*Agent
	active    []bool
	created   int
}

func (p *typePool) take() *Agent {
	if n := len(p.cache); n > 0 {
		a := p.cache[n-1]
		p.cache[n-1] = nil
		p.cache = p.cache[:n-1]
		return a
	}
	a := newAgent(p.def, p.created, p.factories)
	p.created++
	p.active = append(p.active, false)
	return a
}

func (p *typePool) give(a *Agent) { p.cache = append(p.cache, a) }

// Registry owns every controller and agent of one match.
// Accessed only from the simulation goroutine, no locks.
type Registry struct {
	log     *zap.Logger
	physics *physics.World
	bus     *event.Bus

	maxLocal    int
	world       *ecs.World
	agents      *ecs.DenseStore[*Agent]
	controllers []*Controller
	pending     ecs.DestroyQueue[*Agent]

	factories map[string]BehaviourFactory
	types     map[string]*typePool
	typeOrder []string

	helpers        []Helper
	helpersByInput map[command.InputCode][]Helper

	fault error
}

func NewRegistry(opts Options, phys *physics.World, bus *event.Bus, log *zap.Logger) *Registry {
	if opts.MaxGlobalAgents <= 0 || opts.MaxGlobalAgents > 1<<16 {
		opts.MaxGlobalAgents = MaxGlobalAgents
	}
	if opts.MaxLocalAgents <= 0 || opts.MaxLocalAgents > MaxLocalAgents {
		opts.MaxLocalAgents = MaxLocalAgents
	}
	r := &Registry{
		log:            log,
		physics:        phys,
		bus:            bus,
		maxLocal:       opts.MaxLocalAgents,
		world:          ecs.NewWorld(opts.MaxGlobalAgents),
		agents:         ecs.NewDenseStore[*Agent](256),
		controllers:    make([]*Controller, 0, 8),
		factories:      make(map[string]BehaviourFactory),
		types:          make(map[string]*typePool),
		helpersByInput: make(map[command.InputCode][]Helper),
	}
	r.world.Registry().Register(r.agents)
	return r
}

// RegisterBehaviour names a factory so type definitions can refer to it.
func (r *Registry) RegisterBehaviour(name string, f BehaviourFactory) {
	r.factories[name] = f
}

// RegisterType adds an agent type. Every behaviour it names must already be
// registered.
func (r *Registry) RegisterType(def TypeDef) error {
	if def.Code == "" {
		return fmt.Errorf("register type: empty code: %w", ErrInvalidCode)
	}
	if _, dup := r.types[def.Code]; dup {
		return fmt.Errorf("register type %q: duplicate code", def.Code)
	}
	factories := make([]BehaviourFactory, 0, len(def.Behaviours))
	for _, name := range def.Behaviours {
		f, ok := r.factories[name]
		if !ok {
			return fmt.Errorf("register type %q behaviour %q: %w", def.Code, name, ErrUnknownBehaviour)
		}
		factories = append(factories, f)
	}
	d := def
	r.types[def.Code] = &typePool{def: &d, factories: factories}
	r.typeOrder = append(r.typeOrder, def.Code)
	return nil
}

// Types lists registered codes in registration order.
func (r *Registry) Types() []string { return r.typeOrder }

// AddHelper registers a match-wide helper. Helpers run in registration order.
func (r *Registry) AddHelper(h Helper) {
	r.helpers = append(r.helpers, h)
	for _, code := range h.ListenInput() {
		r.helpersByInput[code] = append(r.helpersByInput[code], h)
	}
}

// NewController appends a controller. Every existing relation toward the
// newcomer starts Neutral both ways; it regards itself as Friendly.
func (r *Registry) NewController() (*Controller, error) {
	if len(r.controllers) >= MaxControllers {
		return nil, ErrTooManyControllers
	}
	c := newController(r, uint8(len(r.controllers)), r.maxLocal)
	for _, other := range r.controllers {
		other.SetAllegiance(c, Neutral)
		c.SetAllegiance(other, Neutral)
	}
	c.SetAllegiance(c, Friendly)
	r.controllers = append(r.controllers, c)
	r.log.Debug("新增控制者", zap.Uint8("controller", c.ID))
	return c, nil
}

// Controller looks up a controller by id.
func (r *Registry) Controller(id uint8) (*Controller, bool) {
	if int(id) >= len(r.controllers) {
		return nil, false
	}
	return r.controllers[id], true
}

func (r *Registry) Controllers() []*Controller { return r.controllers }

// CreateAgent activates a pooled or new agent of type code for c.
func (r *Registry) CreateAgent(c *Controller, code string, pos fixed.Vector2d, rot fixed.Rotation) (*Agent, error) {
	pool, ok := r.types[code]
	if !ok {
		return nil, fmt.Errorf("create agent %q: %w", code, ErrInvalidCode)
	}
	a := pool.take()
	if err := r.addAgent(c, a); err != nil {
		pool.give(a)
		return nil, fmt.Errorf("create agent %q: %w", code, err)
	}
	a.initialize(pos, rot)
	if err := r.physics.Assimilate(a.Body); err != nil {
		r.removeAgent(a)
		a.deactivate()
		pool.give(a)
		return nil, fmt.Errorf("create agent %q: %w", code, err)
	}
	a.initializeInfluence()
	pool.active[a.TypeIndex] = true

	event.Emit(r.bus, event.AgentCreated{GlobalID: a.GlobalID, Controller: c.ID, Code: code})
	return a, nil
}

// DestroyAgent takes an agent out of simulation. Its identities are retired at
// once; the instance returns to its type pool now when immediate, otherwise at
// the end of the tick.
func (r *Registry) DestroyAgent(a *Agent, immediate bool) {
	if !a.active {
		return
	}
	gid := a.GlobalID
	r.retire(a)
	pool := r.types[a.Code]
	if err := r.ChangeController(a, nil); err != nil {
		r.log.Error("卸除代理失敗", zap.Uint16("agent", uint16(gid)), zap.Error(err))
	}
	event.Emit(r.bus, event.AgentDestroyed{GlobalID: gid, Code: a.Code, Immediate: immediate})
	if immediate {
		pool.give(a)
		return
	}
	r.pending.Push(a)
}

// ChangeController moves an agent to another controller, retiring both of
// its identities. A nil controller detaches the agent completely.
//
// Moving an inactive agent, or running out of identities on the way, is
// fatal: the error is latched and an agent left without identities is taken
// out of simulation.
func (r *Registry) ChangeController(a *Agent, next *Controller) error {
	if next != nil && !a.active {
		err := fmt.Errorf("change controller to %d: %w", next.ID, ErrInactive)
		r.Fail(err)
		return err
	}
	if a.Controller != nil {
		r.removeAgent(a)
	}
	if next == nil {
		return nil
	}
	a.deactivateInfluence()
	if err := r.addAgent(next, a); err != nil {
		err = fmt.Errorf("change controller to %d: %w", next.ID, err)
		r.log.Error("代理轉移失敗，移出模擬", zap.String("code", a.Code), zap.Int("index", a.TypeIndex), zap.Error(err))
		r.retire(a)
		r.types[a.Code].give(a)
		r.Fail(err)
		return err
	}
	a.initializeInfluence()
	return nil
}

// retire takes an agent out of simulation and releases its body. The caller
// decides when the instance returns to its pool.
func (r *Registry) retire(a *Agent) {
	a.deactivate()
	r.physics.Dessimilate(a.Body)
	r.types[a.Code].active[a.TypeIndex] = false
}

func (r *Registry) addAgent(c *Controller, a *Agent) error {
	gid, err := r.world.CreateEntity()
	if err != nil {
		return fmt.Errorf("global id: %w", ErrCapacity)
	}
	if err := c.addAgent(a); err != nil {
		r.world.DestroyEntity(gid)
		return err
	}
	a.GlobalID = gid
	r.agents.Set(gid, a)
	return nil
}

func (r *Registry) removeAgent(a *Agent) {
	a.Controller.removeAgent(a)
	r.world.DestroyEntity(a.GlobalID)
	a.deactivateInfluence()
}

// FlushDestroyed returns agents destroyed with immediate=false to their
// pools. The cleanup phase calls it once per tick.
func (r *Registry) FlushDestroyed() {
	r.pending.Flush(func(a *Agent) {
		r.types[a.Code].give(a)
	})
}

// TryGetAgent resolves a global id to an active agent.
func (r *Registry) TryGetAgent(globalID ecs.EntityID) (*Agent, bool) {
	a, ok := r.agents.Get(globalID)
	if !ok || !a.active {
		return nil, false
	}
	return a, true
}

// Len is the number of agents holding a global id.
func (r *Registry) Len() int { return r.agents.Len() }

// Each visits active agents in ascending global id.
func (r *Registry) Each(fn func(*Agent)) {
	r.agents.Each(func(_ ecs.EntityID, a *Agent) {
		if a.active {
			fn(a)
		}
	})
}

// EachHashed feeds the state hash: active agents in ascending global id.
func (r *Registry) EachHashed(fn func(pos fixed.Vector2d, rot fixed.Rotation)) {
	r.agents.Each(func(_ ecs.EntityID, a *Agent) {
		if a.active {
			fn(a.Body.Position, a.Body.Rotation)
		}
	})
}

// Scan visits active agents within radius of pos. When from is not nil only
// agents whose controller from regards with an allegiance in mask are
// visited. Order is ascending body id.
func (r *Registry) Scan(pos fixed.Vector2d, radius fixed.Fixed, from *Controller, mask Allegiance, fn func(*Agent)) {
	r.physics.QueryRadius(pos, radius, func(b *physics.Body) {
		if b.Owner == physics.NoOwner {
			return
		}
		a, ok := r.TryGetAgent(ecs.EntityID(b.Owner))
		if !ok {
			return
		}
		if from != nil && from.GetAllegiance(a.Controller)&mask == 0 {
			return
		}
		fn(a)
	})
}

// Execute dispatches a command: helpers listening on its input code first,
// then the selected agents of its controller. Commands from the global
// controller reach helpers only. Unknown controllers are ignored.
func (r *Registry) Execute(cmd *command.Command) {
	for _, h := range r.helpersByInput[cmd.Input] {
		h.Execute(cmd)
	}
	if cmd.ControllerID == command.GlobalController {
		return
	}
	c, ok := r.Controller(cmd.ControllerID)
	if !ok {
		r.log.Debug("命令指向未知控制者",
			zap.Uint8("controller", cmd.ControllerID),
			zap.String("input", cmd.Input.String()),
		)
		return
	}
	c.Execute(cmd)
}

// Fail latches the first fatal error raised while dispatching; later errors
// are logged and dropped.
func (r *Registry) Fail(err error) {
	if r.fault == nil {
		r.fault = err
		return
	}
	r.log.Warn("已有致命錯誤，忽略後續錯誤", zap.Error(err))
}

// Err returns the latched fatal error.
func (r *Registry) Err() error { return r.fault }

// GameStart notifies helpers that the first influence frame merged.
func (r *Registry) GameStart(frame int) {
	for _, h := range r.helpers {
		h.GameStart()
	}
	event.Emit(r.bus, event.GameStarted{Frame: frame})
}

// Simulate runs helpers, then active agents in ascending global id.
func (r *Registry) Simulate() {
	for _, h := range r.helpers {
		h.Simulate()
	}
	r.agents.Each(func(_ ecs.EntityID, a *Agent) {
		if a.active {
			a.simulate()
		}
	})
}

// LateSimulate is Simulate's counterpart after physics.
func (r *Registry) LateSimulate() {
	for _, h := range r.helpers {
		h.LateSimulate()
	}
	r.agents.Each(func(_ ecs.EntityID, a *Agent) {
		if a.active {
			a.lateSimulate()
		}
	})
}

// Initialize starts a new session: controllers, identities and type pools
// are forgotten and helpers are initialized. A running match must be ended
// with Deactivate first.
func (r *Registry) Initialize() {
	for _, c := range r.controllers {
		c.reset()
	}
	r.controllers = r.controllers[:0]
	r.world.Reset()
	r.pending.Reset()
	r.fault = nil
	for _, code := range r.typeOrder {
		p := r.types[code]
		p.cache = p.cache[:0]
		p.active = p.active[:0]
		p.created = 0
	}
	for _, h := range r.helpers {
		h.Initialize()
	}
}

// Deactivate ends the match: every active agent is destroyed immediately in
// ascending global id, then helpers are deactivated.
func (r *Registry) Deactivate() {
	var live []*Agent
	r.Each(func(a *Agent) { live = append(live, a) })
	for _, a := range live {
		r.DestroyAgent(a, true)
	}
	r.FlushDestroyed()
	for _, h := range r.helpers {
		h.Deactivate()
	}
	r.log.Info("對局結束，代理已全部回收", zap.Int("agents", len(live)))
}
