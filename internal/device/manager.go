package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/beariot/beariot/internal/docstore"
	"github.com/beariot/beariot/pkg/models"
)

// ErrNothingToSave is returned when a save is requested but the device is
// identical to its persisted snapshot.
var ErrNothingToSave = errors.New("no changes to save")

// ErrConfirmationRequired is returned when a configuration save on an
// existing device has not been confirmed yet.
var ErrConfirmationRequired = errors.New("configuration save requires confirmation")

// ValidationError reports a device that cannot be persisted as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid device: %s %s", e.Field, e.Message)
}

// Manager owns one device aggregate: its working copy, its persisted
// snapshot, and the save/delete workflows against the document store.
type Manager struct {
	mu sync.Mutex

	store  docstore.Store
	logger *zap.Logger

	device   *models.Device
	snapshot *models.Device
	created  bool
}

// NewManager creates a manager with no device loaded.
func NewManager(store docstore.Store, logger *zap.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Load fetches the device with the given id. An empty read result maps to
// NotFoundError.
func (m *Manager) Load(ctx context.Context, id string) (*models.Device, error) {
	docs, err := m.store.ReadDocument(ctx, docstore.CollectionDevice, docstore.Query{"_id": id})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, &docstore.NotFoundError{Collection: docstore.CollectionDevice, Key: id}
	}

	var device models.Device
	if err := json.Unmarshal(docs[0], &device); err != nil {
		return nil, fmt.Errorf("failed to decode device %s: %w", id, err)
	}

	m.mu.Lock()
	m.device = &device
	m.snapshot = device.Clone()
	m.created = true
	m.mu.Unlock()

	return device.Clone(), nil
}

// SetDevice installs a working copy that has not been persisted yet.
func (m *Manager) SetDevice(device *models.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.device = device.Clone()
	m.snapshot = nil
	m.created = false
}

// Device returns a copy of the working device, or nil.
func (m *Manager) Device() *models.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return nil
	}
	return m.device.Clone()
}

// Persisted reports whether the working device exists in the store.
func (m *Manager) Persisted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

// Dirty reports whether the working copy differs from the persisted
// snapshot. An unpersisted device is always dirty.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirtyLocked()
}

func (m *Manager) dirtyLocked() bool {
	if m.device == nil {
		return false
	}
	if !m.created || m.snapshot == nil {
		return true
	}
	return !reflect.DeepEqual(m.device, m.snapshot)
}

func (m *Manager) validateLocked() error {
	if m.device.ID == "" {
		return &ValidationError{Field: "_id", Message: "is required"}
	}
	if m.device.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	return nil
}

// ApplyDelta moves a dashboard element. target is "chart", "datetime", or
// a tag label; unknown targets are ignored.
func (m *Manager) ApplyDelta(target string, dx, dy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return
	}

	switch target {
	case "chart":
		m.device.ChartX += dx
		m.device.ChartY += dy
	case "datetime":
		m.device.DatetimeX += dx
		m.device.DatetimeY += dy
	default:
		for i := range m.device.Tags {
			if m.device.Tags[i].Label == target {
				m.device.Tags[i].X += dx
				m.device.Tags[i].Y += dy
				return
			}
		}
	}
}

// UpdateTag replaces the tag at index with the edited copy.
func (m *Manager) UpdateTag(index int, tag models.Tag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil || index < 0 || index >= len(m.device.Tags) {
		return fmt.Errorf("no tag at index %d", index)
	}
	m.device.Tags[index] = tag
	return nil
}

// SaveLayout persists a layout-only change: the revision is bumped but the
// tag set is untouched. A clean device returns ErrNothingToSave.
func (m *Manager) SaveLayout(ctx context.Context) (*models.Device, error) {
	m.mu.Lock()
	if m.device == nil {
		m.mu.Unlock()
		return nil, &ValidationError{Field: "device", Message: "is not loaded"}
	}
	if !m.dirtyLocked() {
		m.mu.Unlock()
		return nil, ErrNothingToSave
	}
	if err := m.validateLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if !m.created {
		m.mu.Unlock()
		return nil, &ValidationError{Field: "device", Message: "must be configured before layout saves"}
	}

	next := m.device.Clone()
	next.Revision++
	m.mu.Unlock()

	return m.persist(ctx, next, false)
}

// SaveConfiguration persists the full device. Re-saving an existing device
// with nothing changed asks for confirmation, because the save still bumps
// the revision and appends a fresh auto tag. Creates and changed updates
// proceed without it.
func (m *Manager) SaveConfiguration(ctx context.Context, confirmed bool) (*models.Device, error) {
	m.mu.Lock()
	if m.device == nil {
		m.mu.Unlock()
		return nil, &ValidationError{Field: "device", Message: "is not loaded"}
	}
	if err := m.validateLocked(); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if m.created && !m.dirtyLocked() && !confirmed {
		m.mu.Unlock()
		return nil, ErrConfirmationRequired
	}

	create := !m.created
	next := m.device.Clone()
	if create {
		next.Revision = 1
	} else {
		next.Revision++
	}
	next.Tags = append(next.Tags, models.NewAutoTag(len(next.Tags)+1))
	m.mu.Unlock()

	return m.persist(ctx, next, create)
}

// DeleteTag removes one tag and relabels the remainder tag1..tagN so the
// auto-provisioned labels stay contiguous. On an already-saved device the
// change is persisted immediately, without appending a new auto tag; on an
// unsaved device only the working copy changes.
func (m *Manager) DeleteTag(ctx context.Context, index int) (*models.Device, error) {
	m.mu.Lock()
	if m.device == nil || index < 0 || index >= len(m.device.Tags) {
		m.mu.Unlock()
		return nil, fmt.Errorf("no tag at index %d", index)
	}

	next := m.device.Clone()
	next.Tags = append(next.Tags[:index], next.Tags[index+1:]...)
	for i := range next.Tags {
		next.Tags[i].Label = fmt.Sprintf("tag%d", i+1)
	}
	if !m.created {
		m.device = next
		m.mu.Unlock()
		return next.Clone(), nil
	}
	next.Revision++
	m.mu.Unlock()

	return m.persist(ctx, next, false)
}

// persist writes next to the store and replaces the working copy and
// snapshot with the server-confirmed document.
func (m *Manager) persist(ctx context.Context, next *models.Device, create bool) (*models.Device, error) {
	var raw json.RawMessage
	var err error
	if create {
		raw, err = m.store.CreateDocument(ctx, docstore.CollectionDevice, next)
	} else {
		err = m.store.UpdateDocument(ctx, docstore.CollectionDevice, docstore.Query{"_id": next.ID}, next)
	}
	if err != nil {
		return nil, err
	}

	saved := next
	if create && len(raw) > 0 {
		var confirmed models.Device
		if uerr := json.Unmarshal(raw, &confirmed); uerr == nil {
			saved = &confirmed
		}
	}

	m.mu.Lock()
	m.device = saved.Clone()
	m.snapshot = saved.Clone()
	m.created = true
	m.mu.Unlock()

	m.logger.Info("Device saved",
		zap.String("id", saved.ID),
		zap.Int("revision", saved.Revision),
		zap.Int("tags", len(saved.Tags)))

	return saved.Clone(), nil
}

// Delete removes the device from the store and clears the working copy.
func (m *Manager) Delete(ctx context.Context) error {
	m.mu.Lock()
	if m.device == nil {
		m.mu.Unlock()
		return &ValidationError{Field: "device", Message: "is not loaded"}
	}
	id := m.device.ID
	created := m.created
	m.mu.Unlock()

	if created {
		if err := m.store.DeleteDocument(ctx, docstore.CollectionDevice, docstore.Query{"_id": id}); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.device = nil
	m.snapshot = nil
	m.created = false
	m.mu.Unlock()

	m.logger.Info("Device deleted", zap.String("id", id))
	return nil
}

// ListDevices fetches every device in the store.
func ListDevices(ctx context.Context, store docstore.Store) ([]*models.Device, error) {
	docs, err := store.ReadDocument(ctx, docstore.CollectionDevice, docstore.Query{})
	if err != nil {
		return nil, err
	}

	devices := make([]*models.Device, 0, len(docs))
	for _, doc := range docs {
		var device models.Device
		if err := json.Unmarshal(doc, &device); err != nil {
			continue
		}
		devices = append(devices, &device)
	}
	return devices, nil
}
