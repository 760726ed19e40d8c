// Package identity issues user, device and top-directory IDs and
// maintains the collaborator registries the propagation engine reads.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/vipinj/lockbox/internal/server/store"
	"github.com/vipinj/lockbox/internal/utils"
)

var (
	ErrAlreadyRegistered = errors.New("identity: email already registered")
	ErrUnknownUser       = errors.New("identity: email not registered")
	ErrUnknownTopDir     = errors.New("identity: top directory not registered")
)

type Service struct {
	store *store.Store
}

func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// RegisterUser issues a fresh user ID. A duplicate email is reported
// with ErrAlreadyRegistered and mutates nothing.
func (s *Service) RegisterUser(ctx context.Context, email string) (int64, error) {
	if err := utils.ValidateEmail(email); err != nil {
		return 0, fmt.Errorf("identity: %w", err)
	}

	_, exists, err := s.store.Get(ctx, store.TableEmailUser, email)
	if err != nil {
		return 0, fmt.Errorf("identity: check email: %w", err)
	}
	if exists {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyRegistered, email)
	}

	id, err := s.store.NewID(ctx, store.IDUser)
	if err != nil {
		return 0, err
	}
	if err := s.store.Put(ctx, store.TableEmailUser, email, []byte(strconv.FormatInt(id, 10))); err != nil {
		return 0, err
	}

	slog.Info("user registered", "email", email, "userId", id)
	return id, nil
}

// RegisterDevice issues a device ID and appends it to the user's
// device list.
func (s *Service) RegisterDevice(ctx context.Context, email string) (int64, error) {
	if err := s.requireUser(ctx, email); err != nil {
		return 0, err
	}

	id, err := s.store.NewID(ctx, store.IDDevice)
	if err != nil {
		return 0, err
	}
	if err := s.store.Update(ctx, store.TableUserDevice, email, []byte(strconv.FormatInt(id, 10))); err != nil {
		return 0, err
	}

	slog.Info("device registered", "email", email, "deviceId", id)
	return id, nil
}

// RegisterTopDir issues a top-directory ID owned by email. The owner
// becomes the first editor.
func (s *Service) RegisterTopDir(ctx context.Context, email string) (int64, error) {
	if err := s.requireUser(ctx, email); err != nil {
		return 0, err
	}

	id, err := s.store.NewID(ctx, store.IDTopDir)
	if err != nil {
		return 0, err
	}
	key := strconv.FormatInt(id, 10)

	if err := s.store.Update(ctx, store.TableUserTopDir, email, []byte(key)); err != nil {
		return 0, err
	}
	if err := s.store.Put(ctx, store.TableTopDirEditors, key, []byte(email)); err != nil {
		return 0, err
	}

	slog.Info("top dir registered", "email", email, "topDirId", id)
	return id, nil
}

// Share adds email as an editor of topDir. Adding an existing editor
// is a no-op.
func (s *Service) Share(ctx context.Context, topDir int64, email string) error {
	if err := s.requireUser(ctx, email); err != nil {
		return err
	}

	key := strconv.FormatInt(topDir, 10)
	mu := s.store.LockFor(store.TableTopDirEditors, key)
	mu.Lock()
	defer mu.Unlock()

	value, ok, err := s.store.Get(ctx, store.TableTopDirEditors, key)
	if err != nil {
		return fmt.Errorf("identity: read editors: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownTopDir, topDir)
	}

	editors := mapset.NewSet(strings.Split(string(value), ",")...)
	if !editors.Add(email) {
		return nil
	}

	joined := string(value) + "," + email
	if err := s.store.Put(ctx, store.TableTopDirEditors, key, []byte(joined)); err != nil {
		return err
	}

	slog.Info("top dir shared", "topDirId", topDir, "with", email)
	return nil
}

// Editors returns the collaborator emails of topDir.
func (s *Service) Editors(ctx context.Context, topDir int64) ([]string, error) {
	value, ok, err := s.store.Get(ctx, store.TableTopDirEditors, strconv.FormatInt(topDir, 10))
	if err != nil {
		return nil, fmt.Errorf("identity: read editors: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTopDir, topDir)
	}
	if len(value) == 0 {
		return nil, nil
	}
	return strings.Split(string(value), ","), nil
}

// Devices returns the device IDs registered for email.
func (s *Service) Devices(ctx context.Context, email string) ([]int64, error) {
	value, ok, err := s.store.Get(ctx, store.TableUserDevice, email)
	if err != nil {
		return nil, fmt.Errorf("identity: read devices: %w", err)
	}
	if !ok || len(value) == 0 {
		return nil, nil
	}

	var devices []int64
	for _, raw := range strings.Split(string(value), ",") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("identity: corrupt device list for %s: %w", email, err)
		}
		devices = append(devices, id)
	}
	return devices, nil
}

func (s *Service) requireUser(ctx context.Context, email string) error {
	if err := utils.ValidateEmail(email); err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	_, exists, err := s.store.Get(ctx, store.TableEmailUser, email)
	if err != nil {
		return fmt.Errorf("identity: check email: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownUser, email)
	}
	return nil
}
