package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fileverse/ddocs-stack/ddocs/internal/mcp"
	"github.com/fileverse/ddocs-stack/ddocs/internal/models"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "worker", "sync", "migrate", "events", "keys", "tools", "seed"}
	registered := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "expected %q to be registered", name)
	}
}

func TestSubcommands(t *testing.T) {
	sub := map[string][]string{
		"sync":    {"run"},
		"migrate": {"up", "down"},
		"events":  {"failed", "retry"},
		"keys":    {"register"},
	}
	for parent, children := range sub {
		cmd, _, err := rootCmd.Find([]string{parent})
		require.NoError(t, err)
		var got []string
		for _, c := range cmd.Commands() {
			got = append(got, c.Name())
		}
		assert.ElementsMatch(t, children, got, parent)
	}
}

func TestToolsCommand_JSON(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"tools", "--output", "json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var tools []mcp.Tool
	require.NoError(t, json.Unmarshal(out.Bytes(), &tools))
	assert.Len(t, tools, len(mcp.DefaultTools))
}

func TestEventsRetry_RequiresIDOrAll(t *testing.T) {
	rootCmd.SetArgs([]string{"events", "retry"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "either an event id or --all")
}

func sampleEvents() []*models.Event {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	return []*models.Event{{
		ID:            "evt-1",
		Type:          models.EventTypeUpdate,
		PortalAddress: "0xportal",
		FileID:        "doc-1",
		Version:       3,
		Status:        models.EventStatusFailed,
		Payload:       json.RawMessage(`{"ddocId":"doc-1"}`),
		Attempts:      1,
		LastError:     "rejected by ledger",
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}}
}

func TestWriteEvents(t *testing.T) {
	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeEvents(&buf, formatTable, sampleEvents()))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "ID"))
		assert.Contains(t, lines[1], "evt-1")
		assert.Contains(t, lines[1], "rejected by ledger")
		assert.Contains(t, lines[1], "2026-03-04T05:06:07Z")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeEvents(&buf, formatJSON, sampleEvents()))
		var got []models.Event
		require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
		assert.Equal(t, "evt-1", got[0].ID)
	})

	t.Run("yaml keeps api field names", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeEvents(&buf, formatYAML, sampleEvents()))
		var got []map[string]any
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, "evt-1", got[0]["_id"])
		assert.Equal(t, "doc-1", got[0]["fileId"])
		assert.Equal(t, map[string]any{"ddocId": "doc-1"}, got[0]["payload"])
	})

	t.Run("unknown format", func(t *testing.T) {
		err := writeEvents(&bytes.Buffer{}, "xml", nil)
		assert.ErrorContains(t, err, "unknown output format")
	})
}

func TestFakeDocument(t *testing.T) {
	req := fakeDocument(gofakeit.New(42))
	assert.NotEmpty(t, req.Title)
	assert.True(t, strings.HasPrefix(req.Content, "# "+req.Title))

	again := fakeDocument(gofakeit.New(42))
	assert.Equal(t, req, again, "a fixed seed is reproducible")
}

func TestGenerateKey(t *testing.T) {
	a, err := generateKey()
	require.NoError(t, err)
	b, err := generateKey()
	require.NoError(t, err)
	assert.Len(t, a, 48)
	assert.NotEqual(t, a, b)
	assert.Greater(t, len(a), models.KeyIDLength)
}
