// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapfile reads and writes snapshots as YAML documents.
//
// Format:
//
//	sections:
//	  - key: fruits
//	    items:
//	      - apple                  # plain item
//	      - id: banana             # item with a payload
//	        payload: {color: yellow}
//	  - key: veg
//	    items: []
//	reload: [apple]               # optional explicit reload marks
//
// Section and item identifiers are strings. Payloads are arbitrary YAML
// values and compare with reflect.DeepEqual when payload diffing is on.
package snapfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/listsync/pkg/validation"
	"github.com/AleutianAI/listsync/services/listsync/snapshot"
)

// Snapshot is the snapshot type documents decode into.
type Snapshot = snapshot.Snapshot[string, string]

// ErrFormat is returned for documents that are valid YAML but not a valid
// snapshot document.
var ErrFormat = errors.New("invalid snapshot document")

// =============================================================================
// Document
// =============================================================================

// Document is the YAML shape of a snapshot.
type Document struct {
	Sections []SectionDoc `yaml:"sections"`
	Reload   []string     `yaml:"reload,omitempty"`
}

// SectionDoc is one section and its items.
type SectionDoc struct {
	Key   string    `yaml:"key"`
	Items []ItemDoc `yaml:"items"`
}

// ItemDoc is one item. It decodes from a scalar (the identifier) or from a
// mapping with id and payload.
type ItemDoc struct {
	ID      string `yaml:"id"`
	Payload any    `yaml:"payload,omitempty"`
}

type itemFields struct {
	ID      string `yaml:"id"`
	Payload any    `yaml:"payload,omitempty"`
}

// UnmarshalYAML accepts both item forms.
func (d *ItemDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		d.ID = node.Value
		d.Payload = nil
		return nil
	case yaml.MappingNode:
		var f itemFields
		if err := node.Decode(&f); err != nil {
			return err
		}
		d.ID, d.Payload = f.ID, f.Payload
		return nil
	default:
		return fmt.Errorf("%w: line %d: item must be a scalar or a mapping", ErrFormat, node.Line)
	}
}

// MarshalYAML writes items without a payload as scalars.
func (d ItemDoc) MarshalYAML() (any, error) {
	if d.Payload == nil {
		return d.ID, nil
	}
	return itemFields(d), nil
}

// =============================================================================
// Decoding
// =============================================================================

// Decode parses a document and builds the snapshot it describes.
//
// Description:
//
//	Sections and items are appended in document order, so snapshot
//	invariants (unique items, unique sections under PolicyReject) are
//	reported as *snapshot.InvariantError. Empty identifiers and reload marks
//	for unknown items are ErrFormat.
//
// Inputs:
//   - data: YAML document.
//   - opts: Snapshot options, such as the duplicate section policy.
//
// Outputs:
//   - *Snapshot: The decoded snapshot.
//   - error: YAML, ErrFormat or snapshot invariant error.
func Decode(data []byte, opts ...snapshot.Option) (*Snapshot, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return snapshot.Empty[string, string](opts...), nil
		}
		return nil, fmt.Errorf("parse snapshot document: %w", err)
	}
	return doc.Snapshot(opts...)
}

// Snapshot builds the snapshot the document describes.
func (doc *Document) Snapshot(opts ...snapshot.Option) (*Snapshot, error) {
	b := snapshot.NewBuilder[string, string](opts...)
	for i, sec := range doc.Sections {
		if err := validation.ValidateIdentifier(sec.Key); err != nil {
			return nil, fmt.Errorf("%w: section %d key: %w", ErrFormat, i, err)
		}
		ids := make([]string, len(sec.Items))
		for j, item := range sec.Items {
			if err := validation.ValidateIdentifier(item.ID); err != nil {
				return nil, fmt.Errorf("%w: section %q item %d: %w", ErrFormat, sec.Key, j, err)
			}
			ids[j] = item.ID
		}
		b.AppendSections(sec.Key).AppendItems(ids, sec.Key)
		for _, item := range sec.Items {
			if item.Payload != nil {
				b.SetPayload(item.ID, item.Payload)
			}
		}
		if err := b.Err(); err != nil {
			return nil, err
		}
	}
	if len(doc.Reload) > 0 {
		b.ReloadItems(doc.Reload...)
	}
	snap, err := b.Build()
	if err != nil {
		if errors.Is(err, snapshot.ErrItemNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		return nil, err
	}
	return snap, nil
}

// Load reads and decodes a document file.
func Load(path string, opts ...snapshot.Option) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	snap, err := Decode(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// =============================================================================
// Encoding
// =============================================================================

// FromSnapshot converts a snapshot into its document form.
func FromSnapshot(snap *Snapshot) Document {
	var doc Document
	for _, sec := range snap.Sections() {
		sd := SectionDoc{Key: sec, Items: []ItemDoc{}}
		for _, id := range snap.Items(sec) {
			payload, _ := snap.Payload(id)
			sd.Items = append(sd.Items, ItemDoc{ID: id, Payload: payload})
		}
		doc.Sections = append(doc.Sections, sd)
	}
	doc.Reload = snap.ReloadedItems()
	return doc
}

// Encode renders a snapshot as a YAML document.
func Encode(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(FromSnapshot(snap)); err != nil {
		return nil, fmt.Errorf("encode snapshot document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes a snapshot to path.
func Save(path string, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
