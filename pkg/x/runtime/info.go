package runtime

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/omalloc/cellar/internal/constants"
)

type RuntimeInfo struct {
	AppName     string `json:"app.name"`
	Version     string `json:"app.version"`
	GoVersion   string `json:"go.version"`
	GoOS        string `json:"go.os"`
	GoArch      string `json:"go.arch"`
	Vcs         string `json:"vcs"`
	VcsRevision string `json:"vcs.revision"`
	VcsTime     string `json:"vcs.time"`
	Dirty       bool   `json:"dirty"`
	StartedAt   int64  `json:"started_at"`
}

// BuildInfo describes the running binary. Version is stamped by the linker.
var BuildInfo RuntimeInfo

// Version is set with -ldflags "-X github.com/omalloc/cellar/pkg/x/runtime.Version=..."
var Version = "dev"

func init() {
	BuildInfo.AppName = constants.AppName
	BuildInfo.Version = Version
	BuildInfo.GoVersion = runtime.Version()
	BuildInfo.GoOS = runtime.GOOS
	BuildInfo.GoArch = runtime.GOARCH
	BuildInfo.StartedAt = time.Now().UnixMilli()

	// -buildvcs=true / auto
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" && Version == "dev" {
			BuildInfo.Version = v
		}

		for _, kv := range info.Settings {
			switch kv.Key {
			case "vcs":
				BuildInfo.Vcs = kv.Value
			case "vcs.revision":
				BuildInfo.VcsRevision = kv.Value[:min(8, len(kv.Value))]
			case "vcs.time":
				BuildInfo.VcsTime = kv.Value
			case "vcs.modified":
				BuildInfo.Dirty = kv.Value == "true"
			}
		}
	}
}

// Uptime is the time elapsed since the process started.
func (info RuntimeInfo) Uptime() time.Duration {
	return time.Since(time.UnixMilli(info.StartedAt)).Truncate(time.Second)
}

func (info RuntimeInfo) String() string {
	return fmt.Sprintf(`%s %s
Go: %s %s/%s
Commit: %s
Built at: %s
Dirty: %t`,
		info.AppName, info.Version,
		info.GoVersion, info.GoOS, info.GoArch,
		info.VcsRevision, info.VcsTime, info.Dirty)
}
