package version

import (
	"runtime/debug"
	"testing"
)

func stubBuildInfo(t *testing.T, info *debug.BuildInfo) {
	t.Helper()
	original := readBuildInfo
	t.Cleanup(func() { readBuildInfo = original })
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return info, info != nil
	}
}

func TestBuildVersion(t *testing.T) {
	tests := []struct {
		name string
		info *debug.BuildInfo
		want string
	}{
		{"release tag", &debug.BuildInfo{Main: debug.Module{Version: "v0.3.0"}}, "v0.3.0"},
		{"unavailable", nil, "dev"},
		{"devel", &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, "dev"},
		{"empty", &debug.BuildInfo{}, "dev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubBuildInfo(t, tt.info)
			if got := BuildVersion(); got != tt.want {
				t.Errorf("BuildVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRevision(t *testing.T) {
	settings := func(kv ...string) []debug.BuildSetting {
		var out []debug.BuildSetting
		for i := 0; i+1 < len(kv); i += 2 {
			out = append(out, debug.BuildSetting{Key: kv[i], Value: kv[i+1]})
		}
		return out
	}
	tests := []struct {
		name string
		info *debug.BuildInfo
		want string
	}{
		{"unavailable", nil, ""},
		{"unstamped", &debug.BuildInfo{}, ""},
		{"short", &debug.BuildInfo{Settings: settings("vcs.revision", "abc123")}, "abc123"},
		{"truncated", &debug.BuildInfo{Settings: settings("vcs.revision", "0123456789abcdef0123")}, "0123456789ab"},
		{"dirty", &debug.BuildInfo{Settings: settings("vcs.revision", "abc123", "vcs.modified", "true")}, "abc123+dirty"},
		{"clean", &debug.BuildInfo{Settings: settings("vcs.revision", "abc123", "vcs.modified", "false")}, "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubBuildInfo(t, tt.info)
			if got := Revision(); got != tt.want {
				t.Errorf("Revision() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	stubBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v1.2.0"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "deadbeef"}},
	})
	if got := String(); got != "v1.2.0 (deadbeef)" {
		t.Errorf("String() = %q", got)
	}

	stubBuildInfo(t, nil)
	if got := String(); got != "dev" {
		t.Errorf("String() without build info = %q", got)
	}
}
