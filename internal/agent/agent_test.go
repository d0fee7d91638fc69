package agent

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discoball-controller/internal/audio"
	"discoball-controller/internal/config"
	"discoball-controller/internal/core"
)

func dryRunConfig(t *testing.T, withAssets bool) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Device.Pixels = 4
	cfg.Audio.Dir = filepath.Join(t.TempDir(), "missing")
	if withAssets {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "sound.mp3"), []byte("ID3"), 0o644))
		cfg.Audio.Dir = dir
	}
	cfg.Telemetry.Interval = config.Duration(10 * time.Millisecond)
	cfg.Schedules = []config.ScheduleEntry{{Spec: "@every 1h", Command: "led 1"}}
	return cfg
}

func TestAgentDryRun(t *testing.T) {
	a, err := NewAgent(dryRunConfig(t, true), Options{DryRun: true, Version: "test"}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, a.controller.AudioAvailable())
	assert.Len(t, a.scheduler.GetAll(), 1)

	a.mailbox.SetLED(1)
	a.mailbox.SetSound(1)
	a.mailbox.SetServo(1)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err = a.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	st := a.store.Clone()
	assert.True(t, st.LED)
	assert.True(t, st.Sound)
	assert.True(t, st.Playing)
	assert.True(t, st.AudioOnline)
	assert.Greater(t, st.Ticks, int64(0))
	assert.Greater(t, st.ServoAngle, 0)

	player, ok := a.controller.AudioDriver().(*audio.SimPlayer)
	require.True(t, ok)
	assert.GreaterOrEqual(t, player.Starts, 1)
}

func TestAgentWithoutAssets(t *testing.T) {
	a, err := NewAgent(dryRunConfig(t, false), Options{DryRun: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, a.controller.AudioAvailable())

	a.mailbox.SetSound(1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = a.Run(ctx)

	st := a.store.Clone()
	assert.True(t, st.Playing, "intent is tracked without a driver")
	assert.False(t, st.AudioOnline)
}

func TestAgentFallsBackFromBrokenPattern(t *testing.T) {
	cfg := dryRunConfig(t, false)
	cfg.Pattern.Dir = t.TempDir()
	cfg.Pattern.Script = "missing.lua"

	a, err := NewAgent(cfg, Options{DryRun: true}, zerolog.Nop())
	require.NoError(t, err)
	assert.Nil(t, a.wheel)
}

func TestAgentLoadsPattern(t *testing.T) {
	cfg := dryRunConfig(t, false)
	cfg.Pattern.Dir = t.TempDir()
	cfg.Pattern.Script = "red.lua"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Pattern.Dir, "red.lua"),
		[]byte(`function wheel(pos) return 255, 0, 0 end`), 0o644))

	a, err := NewAgent(cfg, Options{DryRun: true}, zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, a.wheel)

	a.mailbox.SetLED(1)
	a.mailbox.SetBrightness(10)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_ = a.Run(ctx)

	// Shutdown blanks the strip, so the report taken while running is checked.
	assert.True(t, a.store.Clone().LED)
}

func TestReportPublishesStatus(t *testing.T) {
	a, err := NewAgent(dryRunConfig(t, false), Options{DryRun: true}, zerolog.Nop())
	require.NoError(t, err)
	sub := a.eventBus.Subscribe(core.StatusEvent)

	a.report(time.Now(), a.state)

	select {
	case ev := <-sub:
		st, ok := ev.Payload.(core.Status)
		require.True(t, ok)
		assert.Equal(t, 10, st.Brightness)
	default:
		t.Fatal("no status event")
	}
}

func TestAgentKeepsRunningWhenMonitorCannotBind(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := dryRunConfig(t, false)
	cfg.Server.Enabled = true
	cfg.Server.Port = strconv.Itoa(busy.Addr().(*net.TCPAddr).Port)

	a, err := NewAgent(cfg, Options{DryRun: true}, zerolog.Nop())
	require.NoError(t, err)
	a.mailbox.SetServo(1)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	start := time.Now()
	err = a.Run(ctx)

	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.GreaterOrEqual(t, time.Since(start), 140*time.Millisecond)
	st := a.store.Clone()
	assert.Greater(t, st.Ticks, int64(10))
	assert.True(t, st.Servo)
}
