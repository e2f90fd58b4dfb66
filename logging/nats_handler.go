// Copyright © 2024 Benjamin Schmitz

// This file is part of Seraph.

// Seraph is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License
// as published by the Free Software Foundation,
// either version 3 of the License, or (at your option)
// any later version.

// Seraph is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with Seraph.  If not, see <http://www.gnu.org/licenses/>.

package logging

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"github.com/nats-io/nats.go"
)

const LogTopic = "seraph.log"

// NatsHandler publishes every record as a JSON document on LogTopic.
type NatsHandler struct {
	nc     *nats.Conn
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func NewNatsHandler(nc *nats.Conn, level slog.Leveler) *NatsHandler {
	return &NatsHandler{
		nc,
		level,
		make([]slog.Attr, 0),
		make([]string, 0),
	}
}

// implements slog.Handler
var _ slog.Handler = &NatsHandler{}

func (h *NatsHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *NatsHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.nc == nil || h.nc.IsClosed() {
		return nil
	}

	m := make(map[string]any)
	m["time"] = r.Time
	m["level"] = r.Level
	m["msg"] = r.Message

	recordAttrs := slices.Clone(h.attrs)
	r.Attrs(func(a slog.Attr) bool {
		recordAttrs = append(recordAttrs, a)
		return true
	})

	nestAttrs(m, h.groups, recordAttrs)

	j, err := json.Marshal(m)
	if err != nil {
		return err
	}

	return h.nc.Publish(LogTopic, j)
}

func (h *NatsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	copy := *h
	copy.attrs = append(slices.Clone(h.attrs), attrs...)
	return &copy
}

func (h *NatsHandler) WithGroup(name string) slog.Handler {
	copy := *h
	copy.groups = append(slices.Clone(h.groups), name)
	return &copy
}

// nestAttrs stores attrs in m below the nested maps named by groups.
// Errors are stored as their message.
func nestAttrs(m map[string]any, groups []string, attrs []slog.Attr) {
	for _, group := range groups {
		next, ok := m[group].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[group] = next
		}
		m = next
	}

	for _, attr := range attrs {
		value := attr.Value.Resolve()
		switch {
		case value.Kind() == slog.KindGroup:
			nestAttrs(m, []string{attr.Key}, value.Group())
		default:
			if err, ok := value.Any().(error); ok {
				m[attr.Key] = err.Error()
			} else {
				m[attr.Key] = value.Any()
			}
		}
	}
}
