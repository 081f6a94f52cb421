package model

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MaxChannelNameLength  = 64
	MaxChannelAliasLength = 16
	MaxChannelDescLength  = 256
)

var ErrChannelNameEmpty = errors.New("channel name must not be empty")
var ErrChannelNameTooLong = errors.New("channel name too long")
var ErrChannelAliasTooLong = errors.New("channel alias too long")
var ErrChannelDescTooLong = errors.New("channel description too long")
var ErrChannelNoOwner = errors.New("channel owner must be set")

// ChannelDetails carries the durable identity and header fields of a channel
// between the persistence layer and the application.
type ChannelDetails struct {
	ID            int64     `json:"id" yaml:"id"`
	UUID          uuid.UUID `json:"uuid" yaml:"uuid"`
	Name          string    `json:"name" yaml:"name"`
	Alias         string    `json:"alias" yaml:"alias"`
	Description   string    `json:"description" yaml:"description"`
	Owner         int64     `json:"owner" yaml:"owner"`
	TrackMessages bool      `json:"track_messages" yaml:"track_messages"`
}

// Validate checks the details are acceptable for creation or a detail sync.
func (d *ChannelDetails) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrChannelNameEmpty
	}
	if utf8.RuneCountInString(d.Name) > MaxChannelNameLength {
		return ErrChannelNameTooLong
	}
	if utf8.RuneCountInString(d.Alias) > MaxChannelAliasLength {
		return ErrChannelAliasTooLong
	}
	if utf8.RuneCountInString(d.Description) > MaxChannelDescLength {
		return ErrChannelDescTooLong
	}
	if d.Owner <= 0 {
		return ErrChannelNoOwner
	}
	return nil
}

// ChannelSummary is the slim identity record served by lookup caches.
type ChannelSummary struct {
	ID    int64     `json:"id"`
	UUID  uuid.UUID `json:"uuid"`
	Name  string    `json:"name"`
	Alias string    `json:"alias"`
}
