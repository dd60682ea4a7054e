// Package flows manages the catalog of Langflow configurations and the
// per-channel flow bindings.
package flows

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry provides CRUD over named flow configurations plus channel-to-flow
// bindings with fallback-to-default resolution.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a Registry.
func NewRegistry(db *gorm.DB) (*Registry, error) {
	if db == nil {
		return nil, fmt.Errorf("flows: registry: db is required")
	}
	return &Registry{db: db}, nil
}

// slackURLRe matches Slack auto-link decoration: <https://x> or <https://x|label>.
var slackURLRe = regexp.MustCompile(`<(https?://[^|>]+)(?:\|[^>]*)?>`)

// CleanURL strips Slack auto-link decoration from a URL pasted into chat.
func CleanURL(text string) string {
	return strings.TrimSpace(slackURLRe.ReplaceAllString(text, "$1"))
}

// Add registers a new flow. Returns false if the name is already taken.
// When isDefault is set, any prior default is unset in the same transaction.
func (r *Registry) Add(name, url, flowID, apiKey, description string, isDefault bool) (bool, error) {
	flow := models.Flow{
		Name:        name,
		URL:         CleanURL(url),
		FlowID:      flowID,
		APIKey:      apiKey,
		Description: description,
		IsDefault:   isDefault,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if isDefault {
			if err := tx.Model(&models.Flow{}).
				Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return fmt.Errorf("unset prior default: %w", err)
			}
		}
		return tx.Create(&flow).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("flows: add %q: %w", name, err)
	}
	log.Printf("flows: added %q (default=%v)", name, isDefault)
	return true, nil
}

// FlowUpdate holds the optional fields for Update. Nil fields are untouched.
type FlowUpdate struct {
	URL         *string
	FlowID      *string
	APIKey      *string
	Description *string
}

// Update modifies the supplied fields of an existing flow. Returns false if
// the flow doesn't exist or no fields were supplied.
func (r *Registry) Update(name string, upd FlowUpdate) (bool, error) {
	fields := map[string]interface{}{}
	if upd.URL != nil {
		fields["url"] = CleanURL(*upd.URL)
	}
	if upd.FlowID != nil {
		fields["flow_id"] = *upd.FlowID
	}
	if upd.APIKey != nil {
		fields["api_key"] = *upd.APIKey
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	if len(fields) == 0 {
		return false, nil
	}

	result := r.db.Model(&models.Flow{}).Where("name = ?", name).Updates(fields)
	if result.Error != nil {
		return false, fmt.Errorf("flows: update %q: %w", name, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// Remove deletes a flow and cascades any channel bindings that reference it.
// Sessions already bound to the flow keep their binding; resolution of the
// missing flow fails at send time instead.
func (r *Registry) Remove(name string) (bool, error) {
	var removed bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("flow_name = ?", name).Delete(&models.ChannelFlow{}).Error; err != nil {
			return fmt.Errorf("delete channel bindings: %w", err)
		}
		result := tx.Where("name = ?", name).Delete(&models.Flow{})
		if result.Error != nil {
			return fmt.Errorf("delete flow: %w", result.Error)
		}
		removed = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("flows: remove %q: %w", name, err)
	}
	if removed {
		log.Printf("flows: removed %q", name)
	}
	return removed, nil
}

// SetDefault marks the named flow as the default, unsetting any prior
// default in the same transaction. Returns false if the flow doesn't exist.
func (r *Registry) SetDefault(name string) (bool, error) {
	var ok bool
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Flow{}).Where("name = ?", name).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if err := tx.Model(&models.Flow{}).Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Flow{}).Where("name = ?", name).
			Update("is_default", true).Error; err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("flows: set default %q: %w", name, err)
	}
	return ok, nil
}

// Get returns the named flow, or nil if it doesn't exist.
func (r *Registry) Get(name string) (*models.Flow, error) {
	var flow models.Flow
	result := r.db.Where("name = ?", name).First(&flow)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("flows: get %q: %w", name, result.Error)
	}
	return &flow, nil
}

// Default returns the default flow, or nil if none is set.
func (r *Registry) Default() (*models.Flow, error) {
	var flow models.Flow
	result := r.db.Where("is_default = ?", true).First(&flow)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("flows: get default: %w", result.Error)
	}
	return &flow, nil
}

// List returns all flows ordered by name.
func (r *Registry) List() ([]models.Flow, error) {
	var flows []models.Flow
	if err := r.db.Order("name").Find(&flows).Error; err != nil {
		return nil, fmt.Errorf("flows: list: %w", err)
	}
	return flows, nil
}

// SetChannelFlow binds a channel to a flow. Returns false if the flow
// doesn't exist; an existing binding for the channel is replaced.
func (r *Registry) SetChannelFlow(channelID, flowName string) (bool, error) {
	flow, err := r.Get(flowName)
	if err != nil {
		return false, err
	}
	if flow == nil {
		return false, nil
	}

	binding := models.ChannelFlow{ChannelID: channelID, FlowName: flowName}
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"flow_name"}),
	}).Create(&binding)
	if result.Error != nil {
		return false, fmt.Errorf("flows: bind channel %s to %q: %w", channelID, flowName, result.Error)
	}
	log.Printf("flows: channel %s bound to %q", channelID, flowName)
	return true, nil
}

// RemoveChannelFlow deletes a channel's binding. Returns false if the
// channel had no binding.
func (r *Registry) RemoveChannelFlow(channelID string) (bool, error) {
	result := r.db.Where("channel_id = ?", channelID).Delete(&models.ChannelFlow{})
	if result.Error != nil {
		return false, fmt.Errorf("flows: unbind channel %s: %w", channelID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ChannelFlowName returns the flow name a channel is explicitly bound to,
// or "" if the channel has no binding. Does not consult the default flow.
func (r *Registry) ChannelFlowName(channelID string) (string, error) {
	var binding models.ChannelFlow
	result := r.db.Where("channel_id = ?", channelID).First(&binding)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if result.Error != nil {
		return "", fmt.Errorf("flows: channel binding %s: %w", channelID, result.Error)
	}
	return binding.FlowName, nil
}

// ResolveForChannel returns the flow a channel's messages should run on:
// the explicitly bound flow when the binding resolves, else the default
// flow, else nil.
func (r *Registry) ResolveForChannel(channelID string) (*models.Flow, error) {
	name, err := r.ChannelFlowName(channelID)
	if err != nil {
		return nil, err
	}
	if name != "" {
		flow, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		if flow != nil {
			return flow, nil
		}
	}
	return r.Default()
}
