package functional_test

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
)

// stdioSession wraps an MCP client session talking to the farmsync binary.
type stdioSession struct {
	session *sdkmcp.ClientSession
}

func newStdioSession(t *testing.T, extraEnv ...string) *stdioSession {
	t.Helper()

	binaryPath := "./bin/farmsync"
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		binaryPath = "../../bin/farmsync"
		if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
			t.Skip("farmsync binary not found. Run 'go build -o bin/farmsync ./cmd/farmsync' first.")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	dir := t.TempDir()
	cmd := exec.CommandContext(ctx, binaryPath, "serve")
	cmd.Env = append(os.Environ(),
		"FARMSYNC_TRANSPORT=stdio",
		"FARMSYNC_DB_PATH="+filepath.Join(dir, "farm.db"),
		"FARMSYNC_FLAT_DIR="+filepath.Join(dir, "flat"),
		"FARMSYNC_REMOTE_DSN=memory://",
		"FARMSYNC_DEFAULT_OWNER=field-rep",
	)
	cmd.Env = append(cmd.Env, extraEnv...)

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		cancel()
		t.Fatalf("Failed to connect: %v", err)
	}

	t.Cleanup(func() {
		session.Close()
		cancel()
	})

	return &stdioSession{session: session}
}

func (s *stdioSession) callTool(t *testing.T, name string, args map[string]any) json.RawMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := s.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err, "CallTool %s failed", name)
	require.NotEmpty(t, result.Content, "Tool %s returned no content", name)

	for _, content := range result.Content {
		if textContent, ok := content.(*sdkmcp.TextContent); ok {
			require.False(t, result.IsError, "Tool %s returned error: %s", name, textContent.Text)
			return json.RawMessage(textContent.Text)
		}
	}
	t.Fatalf("Tool %s returned no text content", name)
	return nil
}

type recordResp struct {
	ID      string         `json:"id"`
	OwnerID string         `json:"ownerId"`
	Synced  bool           `json:"synced"`
	Fields  map[string]any `json:"fields"`
}

func TestStdioFunctional_OnlineWritesSync(t *testing.T) {
	s := newStdioSession(t)

	var client recordResp
	require.NoError(t, json.Unmarshal(s.callTool(t, "add_record", map[string]any{
		"kind":   "client",
		"fields": map[string]any{"name": "Green Acres", "farmName": "Green Acres"},
	}), &client))
	require.Equal(t, "field-rep", client.OwnerID)

	// The remote push runs in the background; poll until it lands.
	require.Eventually(t, func() bool {
		var got recordResp
		if err := json.Unmarshal(s.callTool(t, "get_record", map[string]any{"kind": "client", "id": client.ID}), &got); err != nil {
			return false
		}
		return got.Synced
	}, 5*time.Second, 50*time.Millisecond)

	var sale recordResp
	require.NoError(t, json.Unmarshal(s.callTool(t, "add_record", map[string]any{
		"kind":   "sale",
		"fields": map[string]any{"clientId": client.ID, "amount": 1200, "product": "seed"},
	}), &sale))

	var list struct {
		Records []recordResp `json:"records"`
	}
	require.NoError(t, json.Unmarshal(s.callTool(t, "list_records", map[string]any{"kind": "sale"}), &list))
	require.Len(t, list.Records, 1)
	require.Equal(t, sale.ID, list.Records[0].ID)
}

func TestStdioFunctional_OfflineQueueDrains(t *testing.T) {
	s := newStdioSession(t, "FARMSYNC_START_ONLINE=false")

	var lead recordResp
	require.NoError(t, json.Unmarshal(s.callTool(t, "add_record", map[string]any{
		"kind":   "lead",
		"fields": map[string]any{"name": "Hill Farm", "stage": "new"},
	}), &lead))
	require.False(t, lead.Synced)

	require.Eventually(t, func() bool {
		var st struct {
			OutboxDepth int `json:"outboxDepth"`
		}
		_ = json.Unmarshal(s.callTool(t, "sync_status", nil), &st)
		return st.OutboxDepth == 1
	}, 5*time.Second, 50*time.Millisecond)

	s.callTool(t, "set_connectivity", map[string]any{"online": true})

	// Going online triggers the reactor; sync_now makes the test independent of its timing.
	s.callTool(t, "sync_now", nil)

	var got recordResp
	require.NoError(t, json.Unmarshal(s.callTool(t, "get_record", map[string]any{"kind": "lead", "id": lead.ID}), &got))
	require.True(t, got.Synced)

	var st struct {
		Online      bool `json:"online"`
		OutboxDepth int  `json:"outboxDepth"`
	}
	require.NoError(t, json.Unmarshal(s.callTool(t, "sync_status", nil), &st))
	require.True(t, st.Online)
	require.Zero(t, st.OutboxDepth)
}

func TestStdioFunctional_ListToolsAndDocs(t *testing.T) {
	s := newStdioSession(t)
	ctx := context.Background()

	tools, err := s.session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 11)

	res, err := s.session.ReadResource(ctx, &sdkmcp.ReadResourceParams{URI: "farmsync://docs/kinds"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Contents)
	require.Contains(t, res.Contents[0].Text, "scheduled")
}
