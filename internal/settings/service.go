package settings

import (
	"context"
	"encoding/json"
	"fmt"

	"salesdesk_backend/platform/apperr"
)

// StageSettings controls stage transition behavior.
type StageSettings struct {
	// RequireUnlockReason makes backward transitions demand a reason.
	RequireUnlockReason bool `json:"requireUnlockReason"`
	// LockPreviousStages freezes fields of stages already passed when the
	// stage itself asks for locking.
	LockPreviousStages bool `json:"lockPreviousStages"`
}

// ConversionSettings controls what happens when a record changes hands.
type ConversionSettings struct {
	// AddPreviousOwnerToTeam keeps the outgoing owner on the record's team.
	AddPreviousOwnerToTeam bool `json:"addPreviousOwnerToTeam"`
	// PreviousOwnerAccessLevel is the access the outgoing owner keeps.
	PreviousOwnerAccessLevel string `json:"previousOwnerAccessLevel"`
}

// DuplicateDetectionSettings controls intake duplicate checks.
type DuplicateDetectionSettings struct {
	Enabled    bool `json:"enabled"`
	MatchEmail bool `json:"matchEmail"`
	MatchPhone bool `json:"matchPhone"`
}

// OwnershipSettings controls owner change side effects.
type OwnershipSettings struct {
	// NotifyNewOwner sends an email when a record is assigned.
	NotifyNewOwner bool `json:"notifyNewOwner"`
}

var knownKeys = map[string]bool{
	KeyStages:             true,
	KeyConversion:         true,
	KeyDuplicateDetection: true,
	KeyOwnership:          true,
}

// Service exposes settings reads and shallow-merge writes.
type Service struct {
	repo Repository
}

// NewService creates a new settings service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the raw blob for a key.
func (s *Service) Get(ctx context.Context, key string) (map[string]any, error) {
	if !knownKeys[key] {
		return nil, apperr.NotFound("unknown settings key")
	}
	return s.repo.Get(ctx, key)
}

// Merge applies a shallow merge: top-level keys of patch overwrite the
// stored blob, everything else is preserved. Explicit JSON nulls remove a
// key.
func (s *Service) Merge(ctx context.Context, key string, patch map[string]any) (map[string]any, error) {
	if !knownKeys[key] {
		return nil, apperr.NotFound("unknown settings key")
	}

	current, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	merged := MergeShallow(current, patch)
	if err := s.repo.Put(ctx, key, merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// MergeShallow merges patch over base one level deep. Nested objects are
// replaced wholesale, never merged recursively.
func MergeShallow(base, patch map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	return merged
}

// Stages returns the typed stage settings with defaults for missing keys.
func (s *Service) Stages(ctx context.Context) (StageSettings, error) {
	out := StageSettings{RequireUnlockReason: true, LockPreviousStages: true}
	err := s.decode(ctx, KeyStages, &out)
	return out, err
}

// Conversion returns the typed conversion settings.
func (s *Service) Conversion(ctx context.Context) (ConversionSettings, error) {
	out := ConversionSettings{AddPreviousOwnerToTeam: true, PreviousOwnerAccessLevel: "viewer"}
	err := s.decode(ctx, KeyConversion, &out)
	return out, err
}

// DuplicateDetection returns the typed duplicate detection settings.
func (s *Service) DuplicateDetection(ctx context.Context) (DuplicateDetectionSettings, error) {
	out := DuplicateDetectionSettings{Enabled: true, MatchEmail: true, MatchPhone: true}
	err := s.decode(ctx, KeyDuplicateDetection, &out)
	return out, err
}

// Ownership returns the typed ownership settings.
func (s *Service) Ownership(ctx context.Context) (OwnershipSettings, error) {
	out := OwnershipSettings{NotifyNewOwner: true}
	err := s.decode(ctx, KeyOwnership, &out)
	return out, err
}

// decode projects the stored blob onto a typed subset, leaving defaults in
// place for keys the blob does not carry.
func (s *Service) decode(ctx context.Context, key string, target any) error {
	blob, err := s.repo.Get(ctx, key)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("encode settings %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("decode settings %q: %w", key, err)
	}
	return nil
}
