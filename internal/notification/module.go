// Package notification sends emails in response to record events. It
// subscribes to the event bus so the record services never have to know
// about SMTP or templates.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"salesdesk_backend/internal/events"
	"salesdesk_backend/internal/notification/email"
	"salesdesk_backend/internal/records/domain"
	"salesdesk_backend/internal/settings"
	teamrepo "salesdesk_backend/internal/teams/repository"
	"salesdesk_backend/platform/logger"
)

// UserDirectory resolves event actor and owner IDs to users.
type UserDirectory interface {
	GetUser(ctx context.Context, id uuid.UUID) (teamrepo.User, error)
}

// RecordReader loads the record an event refers to.
type RecordReader interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Record, error)
}

// SettingsReader provides the ownership notification toggle.
type SettingsReader interface {
	Ownership(ctx context.Context) (settings.OwnershipSettings, error)
}

// Module holds the notification event handlers.
type Module struct {
	sender   email.Sender
	users    UserDirectory
	records  RecordReader
	settings SettingsReader
	log      *logger.Logger
}

// New creates the notification module and subscribes its handlers on the
// bus. Pass a nil sender to disable email delivery entirely; the handlers
// then only log.
func New(bus events.Bus, sender email.Sender, users UserDirectory, records RecordReader, settingsReader SettingsReader, log *logger.Logger) *Module {
	m := &Module{
		sender:   sender,
		users:    users,
		records:  records,
		settings: settingsReader,
		log:      log,
	}

	bus.Subscribe(events.RecordAssigned{}.EventName(), events.HandlerFunc(m.handleRecordAssigned))
	bus.Subscribe(events.RecordStageChanged{}.EventName(), events.HandlerFunc(m.handleRecordStageChanged))

	return m
}

func (m *Module) handleRecordAssigned(ctx context.Context, event events.Event) error {
	assigned, ok := event.(events.RecordAssigned)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventName())
	}

	ownership, err := m.settings.Ownership(ctx)
	if err != nil {
		return fmt.Errorf("load ownership settings: %w", err)
	}
	if !ownership.NotifyNewOwner {
		return nil
	}
	if m.sender == nil {
		m.log.Info("owner notification skipped, email disabled", "recordId", assigned.RecordID)
		return nil
	}

	owner, err := m.users.GetUser(ctx, assigned.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve new owner: %w", err)
	}
	record, err := m.records.Get(ctx, assigned.RecordID)
	if err != nil {
		return fmt.Errorf("load assigned record: %w", err)
	}

	if err := m.sender.SendAssignmentEmail(ctx, owner.Email, owner.Name, record.Name, assigned.Module, assigned.RuleName); err != nil {
		return fmt.Errorf("send assignment email: %w", err)
	}
	return nil
}

func (m *Module) handleRecordStageChanged(ctx context.Context, event events.Event) error {
	changed, ok := event.(events.RecordStageChanged)
	if !ok {
		return fmt.Errorf("unexpected event payload for %s", event.EventName())
	}

	// Stage emails only go out for terminal moves; intermediate transitions
	// would flood the owner's inbox.
	if !changed.Terminal {
		return nil
	}
	if m.sender == nil {
		return nil
	}

	owner, err := m.users.GetUser(ctx, changed.OwnerID)
	if err != nil {
		return fmt.Errorf("resolve record owner: %w", err)
	}
	record, err := m.records.Get(ctx, changed.RecordID)
	if err != nil {
		return fmt.Errorf("load record: %w", err)
	}

	if err := m.sender.SendStageChangedEmail(ctx, owner.Email, owner.Name, record.Name, changed.ToStageName, changed.Terminal); err != nil {
		return fmt.Errorf("send stage email: %w", err)
	}
	return nil
}
