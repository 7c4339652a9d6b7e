// Package firstscripts copies user supplied scripts into the guest and
// arranges for them to run once: the first-boot script from rc.local, the
// first-login script from the system bashrc.
package firstscripts

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"

	"github.com/sirupsen/logrus"

	"github.com/larsks/vmbuild/internal/hooks"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

const (
	firstBootPath  = "/root/firstboot.sh"
	firstLoginPath = "/root/firstlogin.sh"
	rcLocalPath    = "/etc/rc.local"
	bashrcPath     = "/etc/bash.bashrc"
)

// ErrInvalidScript is returned by Preflight when a script path does not
// name a regular file.
var ErrInvalidScript = errors.New("invalid script path")

// Plugin is the first-boot / first-login hook handler.
type Plugin struct {
	hooks.Base

	FirstBoot  string
	FirstLogin string

	logger *logrus.Entry
}

func New(firstBoot, firstLogin string, logger *logrus.Entry) *Plugin {
	if logger == nil {
		logger = logrus.WithField("component", "firstscripts")
	}

	return &Plugin{FirstBoot: firstBoot, FirstLogin: firstLogin, logger: logger}
}

func (p *Plugin) Name() string {
	return "firstscripts"
}

func checkScript(kind, path string) error {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("%w: the path to the %s script is invalid: %s. Make sure you are providing a full path", ErrInvalidScript, kind, path)
	}

	return nil
}

func (p *Plugin) Preflight(context.Context) error {
	if p.FirstBoot != "" {
		p.logger.Debugf("checking if firstboot script %s exists", p.FirstBoot)

		if err := checkScript("first-boot", p.FirstBoot); err != nil {
			return err
		}
	}

	if p.FirstLogin != "" {
		p.logger.Debugf("checking if first login script %s exists", p.FirstLogin)

		if err := checkScript("first-login", p.FirstLogin); err != nil {
			return err
		}
	}

	return nil
}

func (p *Plugin) PostInstall(_ context.Context, env *hooks.Env) error {
	if p.FirstBoot != "" {
		p.logger.Infof("installing firstboot script %s", p.FirstBoot)

		if err := p.install(env.Root, p.FirstBoot, firstBootPath, 0o700, rcLocalPath, "firstbootrc.tmpl", 0o755); err != nil {
			return err
		}
	}

	if p.FirstLogin != "" {
		p.logger.Infof("installing first login script %s", p.FirstLogin)

		if err := p.install(env.Root, p.FirstLogin, firstLoginPath, 0o755, bashrcPath, "firstloginrc.tmpl", 0o644); err != nil {
			return err
		}
	}

	return nil
}

type templateData struct {
	Script   string
	Target   string
	Original string
}

// install copies src to script inside root, moves target aside and renders
// tmpl in its place.
func (p *Plugin) install(root, src, script string, scriptMode os.FileMode, target, tmpl string, targetMode os.FileMode) error {
	if err := copyFile(src, filepath.Join(root, script), scriptMode); err != nil {
		return err
	}

	data := templateData{Script: script, Target: target}

	hostTarget := filepath.Join(root, target)

	if _, err := os.Stat(hostTarget); err == nil {
		data.Original = target + ".orig"
		if err := os.Rename(hostTarget, filepath.Join(root, data.Original)); err != nil {
			return fmt.Errorf("failed to move %s aside: %w", target, err)
		}
	} else {
		p.logger.Debugf("%s does not exist in the guest", target)
	}

	return renderTemplate(hostTarget, tmpl, data, targetMode)
}

func copyFile(src, dest string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck
		return fmt.Errorf("failed to copy %s to %s: %w", src, dest, err)
	}

	if err := out.Close(); err != nil {
		return err
	}

	// the umask may have masked bits off
	return os.Chmod(dest, mode)
}

func renderTemplate(dest, name string, data templateData, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	if err := templates.ExecuteTemplate(f, name, data); err != nil {
		f.Close() //nolint:errcheck
		return fmt.Errorf("failed to render %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		return err
	}

	return os.Chmod(dest, mode)
}
