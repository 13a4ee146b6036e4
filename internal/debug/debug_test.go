package debug

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T, level int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(level)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		Init(LevelOff)
	})
	return &buf
}

func TestLevels_FilterOutput(t *testing.T) {
	cases := []struct {
		level int
		want  []string
		skip  []string
	}{
		{LevelOff, nil, []string{"[INFO]", "[WARN]", "[LIVE]", "[VERBOSE]", "[TRACE]", "[ERROR]"}},
		{LevelInfo, []string{"[INFO]", "[WARN]", "[ERROR]"}, []string{"[LIVE]", "[VERBOSE]", "[TRACE]"}},
		{LevelLive, []string{"[INFO]", "[LIVE]"}, []string{"[VERBOSE]", "[TRACE]"}},
		{LevelVerbose, []string{"[LIVE]", "[VERBOSE]"}, []string{"[TRACE]", "[GPIO]"}},
		{LevelTrace, []string{"[VERBOSE]", "[TRACE]", "[GPIO]"}, nil},
	}
	for _, tc := range cases {
		buf := capture(t, tc.level)
		Info("info")
		Warn("warn")
		Error(errors.New("boom"))
		Live("live")
		Verbose("verbose")
		Trace("trace")
		GPIO("WritePin", 17, true)

		out := buf.String()
		for _, w := range tc.want {
			if !strings.Contains(out, w) {
				t.Errorf("level %d: missing %s in output:\n%s", tc.level, w, out)
			}
		}
		for _, s := range tc.skip {
			if strings.Contains(out, s) {
				t.Errorf("level %d: unexpected %s in output:\n%s", tc.level, s, out)
			}
		}
	}
}

func TestHelpers_Format(t *testing.T) {
	buf := capture(t, LevelVerbose)

	Sample(3, 30)
	FrameStats(100, 0.125)
	Value("Samples", 30)
	Step(2, "Opening camera")

	out := buf.String()
	for _, want := range []string{
		"Background sample 3/30 captured",
		"Frame 100: cloak covers 12.5% of the image",
		"Samples = 30",
		"Step 2: Opening camera",
		"[GoCloak] ",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestIsEnabled(t *testing.T) {
	capture(t, LevelLive)
	if Level() != LevelLive {
		t.Fatalf("Level() = %d, want %d", Level(), LevelLive)
	}
	if !IsEnabled(LevelInfo) || !IsEnabled(LevelLive) || IsEnabled(LevelVerbose) {
		t.Error("IsEnabled does not follow the configured level")
	}
}

func TestSetOutput_AfterInit(t *testing.T) {
	capture(t, LevelInfo)
	var second bytes.Buffer
	SetOutput(&second)
	Info("redirected")
	if !strings.Contains(second.String(), "redirected") {
		t.Errorf("SetOutput after Init should redirect the logger, got %q", second.String())
	}
}
