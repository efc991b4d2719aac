// Package versionfeed publishes the desktop client's update manifest
// (version_info.json).
package versionfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bitbucket.org/easyadvisor/fingov_backend/utils"
)

const ObjectName = "version_info.json"

var (
	ErrNotPublished   = errors.New("version info not published")
	ErrInvalidPayload = errors.New("payload must be a JSON object")
)

var RequiredFields = []string{"latest_version", "download_url", "mandatory", "release_notes", "sha256"}

type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "Missing field: " + e.Field
}

type Feed struct {
	Store utils.ObjectStore
}

func New(store utils.ObjectStore) *Feed {
	return &Feed{Store: store}
}

// Update replaces the manifest. Extra keys are kept as sent.
func (f *Feed) Update(ctx context.Context, raw []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return ErrInvalidPayload
	}
	for _, field := range RequiredFields {
		if _, ok := doc[field]; !ok {
			return &MissingFieldError{Field: field}
		}
	}
	b, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}
	if err := f.Store.Write(ctx, ObjectName, b, "application/json"); err != nil {
		return fmt.Errorf("write %s: %w", ObjectName, err)
	}
	return nil
}

func (f *Feed) Get(ctx context.Context) (json.RawMessage, error) {
	b, err := f.Store.Read(ctx, ObjectName)
	if err != nil {
		if errors.Is(err, utils.ErrObjectNotFound) {
			return nil, ErrNotPublished
		}
		return nil, err
	}
	return b, nil
}
