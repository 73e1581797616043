// Package realtime mirrors org-scoped tables into per-session stores and
// keeps them current from a change feed.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrBrokerClosed    = errors.New("realtime: broker closed")
	ErrUnknownTable    = errors.New("realtime: table not registered")
	ErrPayloadTooLarge = errors.New("realtime: change payload too large")
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// Row is one table row in its JSON shape; keys are column names.
type Row map[string]any

// ID returns the row's id as a string, or "" if it has none.
func (r Row) ID() string {
	return fieldString(r, "id")
}

// OrgID returns the row's org_id as a string, or "" if it has none.
func (r Row) OrgID() string {
	return fieldString(r, "org_id")
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func fieldString(r Row, key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Change is one row-level event on a table, scoped to an organization.
type Change struct {
	Table string    `json:"table"`
	OrgID string    `json:"org_id"`
	Type  EventType `json:"type"`
	New   Row       `json:"new,omitempty"`
	Old   Row       `json:"old,omitempty"`
}

// Row returns the row the event applies to: Old for deletes, New otherwise.
func (c Change) Row() Row {
	if c.Type == EventDelete {
		return c.Old
	}
	return c.New
}

type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Subscriber opens a change feed for one (table, org) pair. The returned
// channel is closed when ctx is done or when the feed drops.
type Subscriber interface {
	Subscribe(ctx context.Context, table, orgID string) (<-chan Change, error)
}

type Broker interface {
	Publisher
	Subscriber
	Close() error
}

// Loader performs the one-shot bulk read that seeds a mirrored table.
type Loader interface {
	Load(ctx context.Context, table, orgID string) ([]Row, error)
}

// RowFrom converts a model into its JSON row shape.
func RowFrom(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling row: %w", err)
	}
	var row Row
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("unmarshaling row: %w", err)
	}
	return row, nil
}

// RowsFrom converts a slice of models into rows.
func RowsFrom[T any](items []T) ([]Row, error) {
	rows := make([]Row, 0, len(items))
	for i := range items {
		row, err := RowFrom(items[i])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// NewChange builds a change from models. Either of newV or oldV may be nil.
// On UPDATE the old row is cut down to its keys; subscribers apply New.
func NewChange(table, orgID string, typ EventType, newV, oldV any) (Change, error) {
	c := Change{Table: table, OrgID: orgID, Type: typ}
	if newV != nil {
		row, err := RowFrom(newV)
		if err != nil {
			return c, err
		}
		c.New = row
	}
	if oldV != nil {
		row, err := RowFrom(oldV)
		if err != nil {
			return c, err
		}
		c.Old = row
		if typ == EventUpdate {
			c.Old = row.keys()
		}
	}
	return c, nil
}

func (r Row) keys() Row {
	out := Row{"id": r["id"]}
	if org, ok := r["org_id"]; ok {
		out["org_id"] = org
	}
	return out
}
