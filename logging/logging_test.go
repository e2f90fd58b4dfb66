package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"umbasa.net/seraph-mounts/logging"
)

func TestConsoleHandler(t *testing.T) {
	color.NoColor = true

	buf := bytes.Buffer{}
	level := slog.LevelVar{}
	log := slog.New(logging.NewConsoleHandlerWriter(&buf, &level)).With("component", "mounts")

	log.Debug("hidden")
	log.Info("refreshed user", "user", "alice", "added", 2)
	log.Error("refresh failed", "error", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "INFO mounts refreshed user user=alice added=2\n")
	assert.Contains(t, out, "ERROR mounts refresh failed\nERR boom\n")
}

func TestConsoleHandlerGroups(t *testing.T) {
	color.NoColor = true

	buf := bytes.Buffer{}
	log := slog.New(logging.NewConsoleHandlerWriter(&buf, slog.LevelInfo)).WithGroup("share")

	log.Info("created", "id", "42")

	assert.Contains(t, buf.String(), "created share.id=42")
}

func TestSetLevelName(t *testing.T) {
	logger := logging.New(logging.Params{})

	assert.Nil(t, logger.SetLevelName("debug"))
	assert.Nil(t, logger.SetLevelName("WARN"))
	assert.NotNil(t, logger.SetLevelName("chatty"))
}

func TestNatsHandler(t *testing.T) {
	srv, err := server.NewServer(&server.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Shutdown()
	if !srv.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	sub, err := nc.SubscribeSync(logging.LogTopic)
	if err != nil {
		t.Fatal(err)
	}

	log := slog.New(logging.NewNatsHandler(nc, slog.LevelInfo)).With("component", "mounts")
	log.Debug("hidden")
	log.Error("refresh failed", slog.Group("refresh", "user", "bob", "error", errors.New("boom")))

	msg, err := sub.NextMsg(5 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	m := map[string]any{}
	assert.Nil(t, json.Unmarshal(msg.Data, &m))
	assert.Equal(t, "refresh failed", m["msg"])
	assert.Equal(t, "mounts", m["component"])
	assert.Equal(t, map[string]any{"user": "bob", "error": "boom"}, m["refresh"])
}
