// Copyright © 2024 Benjamin Schmitz

// This file is part of Seraph <https://github.com/Vortex375/seraph>.

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
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var timeColor = color.New(color.FgWhite)
var componentColor = color.New(color.FgCyan)
var attrColor = color.New(color.FgWhite).Add(color.Faint)

var debugColor = color.New(color.FgYellow)
var infoColor = color.New(color.FgGreen)
var warnColor = color.New(color.FgYellow, color.Bold)
var errorColor = color.New(color.FgRed, color.Bold)
var errorDetailLabelColor = color.New(color.BgRed)
var errorDetailColor = color.New(color.FgRed)

func levelColor(level slog.Level) *color.Color {
	switch {
	case level >= slog.LevelError:
		return errorColor
	case level >= slog.LevelWarn:
		return warnColor
	case level >= slog.LevelInfo:
		return infoColor
	default:
		return debugColor
	}
}

// ConsoleHandler renders one colored line per record, followed by the error
// (if any) on its own line. Used for local development.
type ConsoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

func NewConsoleHandler(level slog.Leveler) *ConsoleHandler {
	return NewConsoleHandlerWriter(os.Stdout, level)
}

func NewConsoleHandlerWriter(out io.Writer, level slog.Leveler) *ConsoleHandler {
	return &ConsoleHandler{
		mu:     &sync.Mutex{},
		out:    out,
		level:  level,
		attrs:  make([]slog.Attr, 0),
		groups: make([]string, 0),
	}
}

// implements slog.Handler
var _ slog.Handler = &ConsoleHandler{}

func (h *ConsoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < h.level.Level() {
		return nil
	}

	var component string
	var errText string
	other := make([]slog.Attr, 0)

	collect := func(attr slog.Attr) {
		switch attr.Key {
		case "component":
			component = attr.Value.String()
		case "error":
			errText = attr.Value.String()
		default:
			if len(h.groups) > 0 {
				attr.Key = strings.Join(h.groups, ".") + "." + attr.Key
			}
			other = append(other, attr)
		}
	}
	for _, attr := range h.attrs {
		collect(attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		collect(attr)
		return true
	})

	buf := bytes.Buffer{}
	timeColor.Fprint(&buf, r.Time.Format("2006-01-02 15:04:05.999 "))
	levelColor(r.Level).Fprint(&buf, r.Level.String())
	buf.WriteString(" ")
	if component != "" {
		componentColor.Fprint(&buf, component)
		buf.WriteString(" ")
	}
	buf.WriteString(r.Message)
	for _, attr := range other {
		buf.WriteString(" ")
		attrColor.Fprint(&buf, attr.Key+"="+attr.Value.String())
	}
	buf.WriteString("\n")
	if errText != "" {
		errorDetailLabelColor.Fprint(&buf, "ERR")
		buf.WriteString(" ")
		errorDetailColor.Fprint(&buf, errText)
		buf.WriteString("\n")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	copy := *h
	copy.attrs = append(slices.Clone(h.attrs), attrs...)
	return &copy
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	copy := *h
	copy.groups = append(slices.Clone(h.groups), name)
	return &copy
}
