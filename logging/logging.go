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
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
)

var Module = fx.Module("logger",
	fx.Provide(
		New,
	),
)

type Logger struct {
	nc       *nats.Conn
	levelVar *slog.LevelVar
	console  bool
}

func (l *Logger) SetLevel(level slog.Level) {
	l.levelVar.Set(level)
}

// SetLevelName parses one of "debug", "info", "warn" or "error".
func (l *Logger) SetLevelName(name string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	l.SetLevel(level)
	return nil
}

// SetConsole switches loggers created afterwards to the colored console output.
func (l *Logger) SetConsole(console bool) {
	l.console = console
}

type Params struct {
	fx.In

	Nc *nats.Conn `optional:"true"`
}

func New(p Params) *Logger {
	levelVar := slog.LevelVar{}
	levelVar.Set(slog.LevelInfo)
	return &Logger{nc: p.Nc, levelVar: &levelVar}
}

func (l *Logger) GetLogger(name string) *slog.Logger {
	var handlers []slog.Handler
	if l.console {
		handlers = append(handlers, NewConsoleHandler(l.levelVar))
	} else {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: l.levelVar,
		}))
	}
	if l.nc != nil {
		handlers = append(handlers, NewNatsHandler(l.nc, l.levelVar))
	}
	return slog.New(NewHandlerMux(handlers...)).With("component", name)
}

// FxLogger routes the fx application log through the "fx" component logger.
func FxLogger() fx.Option {
	return fx.WithLogger(func(l *Logger) fxevent.Logger {
		return &fxevent.SlogLogger{Logger: l.GetLogger("fx")}
	})
}
