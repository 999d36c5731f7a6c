package buildinfo

import "runtime/debug"

// Set with -ldflags "-X .../internal/buildinfo.Version=..." in release builds.
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

func Info() map[string]string {
    out := map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
    if bi, ok := debug.ReadBuildInfo(); ok {
        out["goVersion"] = bi.GoVersion
        if out["commit"] == "" {
            for _, s := range bi.Settings {
                if s.Key == "vcs.revision" { out["commit"] = s.Value }
            }
        }
    }
    return out
}
