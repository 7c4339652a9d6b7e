package version

import (
	"fmt"
	"runtime/debug"

	"github.com/larsks/gobot/tools"
)

var (
	Version string = "dev"
)

// Info describes the running binary.
type Info struct {
	Program  string
	Version  string
	GOOS     string
	GOARCH   string
	Revision string
	Time     string
	Modified bool
}

func fromBuildInfo(progName string, bim map[string]string) Info {
	info := Info{
		Program: progName,
		Version: Version,
		GOOS:    bim["GOOS"],
		GOARCH:  bim["GOARCH"],
	}

	if vcs, ok := bim["vcs"]; ok && vcs == "git" {
		info.Revision = bim["vcs.revision"]
		if len(info.Revision) > 10 {
			info.Revision = info.Revision[:10]
		}

		info.Time = bim["vcs.time"]
		info.Modified = bim["vcs.modified"] == "true"
	}

	return info
}

func Get(progName string) Info {
	if bi, ok := debug.ReadBuildInfo(); ok {
		return fromBuildInfo(progName, tools.BuildInfoMap(bi))
	}

	return Info{Program: progName, Version: Version}
}

func (i Info) String() string {
	vs := fmt.Sprintf("%s version %s", i.Program, i.Version)

	if i.GOOS != "" {
		vs = fmt.Sprintf("%s %s/%s", vs, i.GOOS, i.GOARCH)
	}

	if i.Revision != "" {
		vs = fmt.Sprintf("%s rev %s on %s", vs, i.Revision, i.Time)
		if i.Modified {
			vs += " (modified)"
		}
	}

	return vs
}
