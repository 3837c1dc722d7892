package api

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/alerts"
	"github.com/beariot/beariot/internal/config"
	"github.com/beariot/beariot/internal/device"
	"github.com/beariot/beariot/internal/docstore"
	"github.com/beariot/beariot/internal/history"
	"github.com/beariot/beariot/internal/scheduler"
	"github.com/beariot/beariot/internal/scripting"
	"github.com/beariot/beariot/pkg/models"
)

// View is one open device dashboard: the aggregate manager, the tag
// scheduler driving it, and the chart data source.
type View struct {
	Manager   *device.Manager
	Scheduler *scheduler.Scheduler
	Chart     *history.ChartSource
}

// ViewManager opens and closes device views. Each open view runs its own
// scheduler; closing the view stops it.
type ViewManager struct {
	mu sync.Mutex

	store     docstore.Store
	evaluator scripting.Evaluator
	histLog   *history.Logger
	query     *history.QueryService
	alerts    *alerts.Engine
	cfg       config.SchedulerConfig
	logger    *zap.Logger

	views map[string]*View

	// baseCtx outlives any single HTTP request; schedulers run on it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// NewViewManager creates a view manager.
func NewViewManager(store docstore.Store, evaluator scripting.Evaluator, alertsEngine *alerts.Engine, cfg config.SchedulerConfig, logger *zap.Logger) *ViewManager {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &ViewManager{
		store:      store,
		evaluator:  evaluator,
		histLog:    history.NewLogger(store, logger),
		query:      history.NewQueryService(store),
		alerts:     alertsEngine,
		cfg:        cfg,
		logger:     logger,
		views:      make(map[string]*View),
		baseCtx:    baseCtx,
		cancelBase: cancel,
	}
}

func (vm *ViewManager) newView() *View {
	sched := scheduler.NewScheduler(vm.evaluator, vm.histLog, vm.cfg.TickPeriod, vm.cfg.HistoryFlushInterval, vm.logger)
	if vm.alerts != nil {
		sched.SetCallback(vm.alerts.Check)
	}
	return &View{
		Manager:   device.NewManager(vm.store, vm.logger),
		Scheduler: sched,
		Chart:     history.NewChartSource(vm.query),
	}
}

// Open loads the device with the given id and starts its scheduler.
// Opening an already open view returns the existing one.
func (vm *ViewManager) Open(ctx context.Context, id string) (*View, error) {
	vm.mu.Lock()
	if v, ok := vm.views[id]; ok {
		vm.mu.Unlock()
		return v, nil
	}
	vm.mu.Unlock()

	v := vm.newView()
	dev, err := v.Manager.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	v.Scheduler.SetDevice(dev, true)
	v.Scheduler.Start(vm.baseCtx)

	vm.mu.Lock()
	if existing, ok := vm.views[id]; ok {
		vm.mu.Unlock()
		v.Scheduler.Stop()
		return existing, nil
	}
	vm.views[id] = v
	vm.mu.Unlock()

	vm.logger.Info("View opened", zap.String("device", id))
	return v, nil
}

// Create opens a view for a device that has not been saved yet. The
// scheduler evaluates its tags but no history is written until the first
// configuration save.
func (vm *ViewManager) Create(ctx context.Context, dev *models.Device) (*View, error) {
	if dev.ID == "" {
		return nil, &device.ValidationError{Field: "_id", Message: "is required"}
	}

	vm.mu.Lock()
	if _, ok := vm.views[dev.ID]; ok {
		vm.mu.Unlock()
		return nil, fmt.Errorf("view %s is already open", dev.ID)
	}
	vm.mu.Unlock()

	v := vm.newView()
	v.Manager.SetDevice(dev)
	v.Scheduler.SetDevice(dev, false)
	v.Scheduler.Start(vm.baseCtx)

	vm.mu.Lock()
	vm.views[dev.ID] = v
	vm.mu.Unlock()

	vm.logger.Info("View created", zap.String("device", dev.ID))
	return v, nil
}

// Get returns an open view.
func (vm *ViewManager) Get(id string) (*View, bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	v, ok := vm.views[id]
	return v, ok
}

// Close stops a view's scheduler and forgets it.
func (vm *ViewManager) Close(id string) bool {
	vm.mu.Lock()
	v, ok := vm.views[id]
	if ok {
		delete(vm.views, id)
	}
	vm.mu.Unlock()

	if !ok {
		return false
	}
	v.Scheduler.Stop()
	vm.logger.Info("View closed", zap.String("device", id))
	return true
}

// CloseAll stops every open view (server shutdown).
func (vm *ViewManager) CloseAll() {
	vm.mu.Lock()
	views := vm.views
	vm.views = make(map[string]*View)
	vm.mu.Unlock()

	for _, v := range views {
		v.Scheduler.Stop()
	}
	vm.cancelBase()
}

// syncScheduler pushes the manager's current device into the scheduler
// after a save or tag edit.
func (v *View) syncScheduler() {
	if dev := v.Manager.Device(); dev != nil {
		v.Scheduler.SetDevice(dev, v.Manager.Persisted())
	}
}
