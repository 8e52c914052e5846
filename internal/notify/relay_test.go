package notify

import (
	"strings"
	"sync"
	"testing"

	"github.com/discord-voice-mod/internal/config"
	"github.com/discord-voice-mod/internal/logging"
)

func TestRender(t *testing.T) {
	got := Render("🛡️ Moderating <@{user_id}>: {old_volume}% -> {new_volume}% ({duration}s)", map[string]any{
		"user_id":    "123",
		"old_volume": 100,
		"new_volume": 50,
		"duration":   30,
	})
	want := "🛡️ Moderating <@123>: 100% -> 50% (30s)"
	if got != want {
		t.Fatalf("Render = %q, want %q", got, want)
	}
}

func TestRenderRepeatedAndUnknownPlaceholders(t *testing.T) {
	got := Render("{a} {a} {missing}", map[string]any{"a": "x"})
	if got != "x x {missing}" {
		t.Fatalf("Render = %q", got)
	}
}

// recordingLogger captures Infow calls so tests can assert on LogRelay
// output without a real zap logger.
type recordingLogger struct {
	mu   sync.Mutex
	msgs []string
	kvs  [][]interface{}
}

func (r *recordingLogger) Infow(msg string, keysAndValues ...interface{}) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.kvs = append(r.kvs, keysAndValues)
	r.mu.Unlock()
}
func (r *recordingLogger) Debugw(msg string, keysAndValues ...interface{}) {}
func (r *recordingLogger) Warnw(msg string, keysAndValues ...interface{})  {}
func (r *recordingLogger) Errorw(msg string, keysAndValues ...interface{}) {}
func (r *recordingLogger) Sync() error                                     { return nil }

func TestLogRelayRespectsEphemeralFlag(t *testing.T) {
	rec := &recordingLogger{}
	logging.SetLogger(rec)
	defer logging.SetLogger(nil)

	off := NewLogRelay(config.Static(config.Settings{Ephemeral: false, MsgSkip: "skip {user_id}"}))
	off.Emit(Skip, map[string]any{"user_id": "1"})
	if len(rec.msgs) != 0 {
		t.Fatal("disabled notifications must be a no-op")
	}

	on := NewLogRelay(config.Static(config.Settings{Ephemeral: true, MsgSkip: "skip {user_id}"}))
	on.Emit(Skip, map[string]any{"user_id": "1"})
	if len(rec.msgs) != 1 || !strings.Contains(rec.msgs[0], "skip") {
		t.Fatalf("expected one skip log, got %v", rec.msgs)
	}
	if len(rec.kvs[0]) != 2 || rec.kvs[0][1] != "skip 1" {
		t.Fatalf("unexpected rendered message: %v", rec.kvs[0])
	}
}

func TestLogRelayEmptyTemplateIsNoOp(t *testing.T) {
	rec := &recordingLogger{}
	logging.SetLogger(rec)
	defer logging.SetLogger(nil)

	r := NewLogRelay(config.Static(config.Settings{Ephemeral: true, MsgEnd: "   "}))
	r.Emit(End, map[string]any{"user_id": "1"})
	if len(rec.msgs) != 0 {
		t.Fatalf("blank template must not emit, got %v", rec.msgs)
	}
}

func TestTemplateSelection(t *testing.T) {
	st := config.Settings{MsgModerate: "m", MsgSkip: "s", MsgEnd: "e"}
	for kind, want := range map[Kind]string{Moderate: "m", Skip: "s", End: "e"} {
		if got := templateFor(kind, st); got != want {
			t.Errorf("templateFor(%s) = %q, want %q", kind, got, want)
		}
	}
}
