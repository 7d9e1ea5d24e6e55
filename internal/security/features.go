package security

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/muxos/muxos-helper/pkg/errclass"
	"github.com/muxos/muxos-helper/pkg/model"
)

type procedure func(o *Orchestrator, ctx context.Context) error

// registry binds every feature to its enable and disable procedure.
var registry = [model.NumFeatures]struct{ enable, disable procedure }{
	model.FeatureFirewall:           {(*Orchestrator).enableFirewall, (*Orchestrator).disableFirewall},
	model.FeatureIntrusionDetection: {(*Orchestrator).enableIntrusionDetection, (*Orchestrator).disableIntrusionDetection},
	model.FeaturePrivacy:            {(*Orchestrator).enablePrivacy, (*Orchestrator).disablePrivacy},
	model.FeatureHardening:          {(*Orchestrator).enableHardening, (*Orchestrator).disableHardening},
}

// PrivacyFiles are backed up before the privacy script runs.
var PrivacyFiles = []string{
	"/etc/hosts",
	"/etc/sysctl.d/99-muxos-privacy.conf",
	"/etc/bash.bashrc",
	"/etc/systemd/resolved.conf.d/dns-over-tls.conf",
	"/etc/NetworkManager/conf.d/30-mac-randomization.conf",
	"/etc/firefox-esr/firefox-esr.js",
}

// HardeningFiles are backed up before the hardening script runs.
var HardeningFiles = []string{
	"/etc/sysctl.d/99-muxos-security.conf",
	"/etc/login.defs",
	"/etc/fail2ban/jail.local",
	"/etc/apt/apt.conf.d/50unattended-upgrades",
	"/etc/fstab",
}

// AuditCronFile schedules the intrusion-detection checks.
const AuditCronFile = "/etc/cron.d/muxos-security"

func (o *Orchestrator) enableFirewall(ctx context.Context) error {
	return o.ufw(ctx, "enable")
}

func (o *Orchestrator) disableFirewall(ctx context.Context) error {
	return o.ufw(ctx, "disable")
}

func (o *Orchestrator) enableIntrusionDetection(ctx context.Context) error {
	return o.runScript(ctx, "intrusion-detection.sh", "IDS enable failed")
}

func (o *Orchestrator) disableIntrusionDetection(ctx context.Context) error {
	if err := o.fs.Remove(AuditCronFile); err != nil && !os.IsNotExist(err) {
		o.logger.Warn("remove cron file failed", zap.String("path", AuditCronFile), zap.Error(err))
	}
	o.service(ctx, "stop", "auditd")
	o.service(ctx, "disable", "auditd")
	return nil
}

func (o *Orchestrator) enablePrivacy(ctx context.Context) error {
	if err := o.backupAll(model.FeaturePrivacy, PrivacyFiles); err != nil {
		return err
	}
	return o.runScript(ctx, "privacy-settings.sh", "Privacy enable failed")
}

func (o *Orchestrator) disablePrivacy(ctx context.Context) error {
	if err := o.restoreAll(model.FeaturePrivacy, PrivacyFiles); err != nil {
		return err
	}
	o.reloadSysctl(ctx)
	o.service(ctx, "restart", "NetworkManager")
	o.service(ctx, "restart", "systemd-resolved")
	return nil
}

func (o *Orchestrator) enableHardening(ctx context.Context) error {
	if err := o.backupAll(model.FeatureHardening, HardeningFiles); err != nil {
		return err
	}
	return o.runScript(ctx, "system-hardening.sh", "Hardening enable failed")
}

func (o *Orchestrator) disableHardening(ctx context.Context) error {
	if err := o.restoreAll(model.FeatureHardening, HardeningFiles); err != nil {
		return err
	}
	o.reloadSysctl(ctx)
	o.service(ctx, "stop", "fail2ban")
	o.service(ctx, "disable", "fail2ban")
	return nil
}

// ufw is skipped when the firewall tool is not installed.
func (o *Orchestrator) ufw(ctx context.Context, action string) error {
	if _, ok := o.exec.LookPath("ufw"); !ok {
		o.logger.Warn("ufw not installed, firewall left unchanged", zap.String("action", action))
		return nil
	}
	res, err := o.exec.Run(ctx, "ufw", "--force", action)
	if err != nil {
		return errclass.ErrScript.WithMessagef("ufw %s: %v", action, err)
	}
	if !res.Success() {
		return errclass.ErrScript.WithMessage(res.Message(fmt.Sprintf("ufw %s failed", action)))
	}
	return nil
}

func (o *Orchestrator) runScript(ctx context.Context, name, fallback string) error {
	script := filepath.Join(o.cfg.ScriptsDir, name)
	exists, err := afero.Exists(o.fs, script)
	if err != nil {
		return fmt.Errorf("check %s: %w", script, err)
	}
	if !exists {
		return errclass.ErrScript.WithMessagef("script not found: %s", script)
	}

	res, err := o.exec.Run(ctx, o.cfg.Shell, script)
	if err != nil {
		return errclass.ErrScript.WithMessagef("run %s: %v", script, err)
	}
	if !res.Success() {
		return errclass.ErrScript.WithMessage(res.Message(fallback))
	}
	return nil
}

func (o *Orchestrator) backupAll(f model.Feature, paths []string) error {
	for _, p := range paths {
		if _, err := o.backups.Backup(f.String(), p); err != nil {
			return fmt.Errorf("back up %s: %w", p, err)
		}
	}
	return nil
}

// restoreAll restores every file it can and reports all failures together.
func (o *Orchestrator) restoreAll(f model.Feature, paths []string) error {
	var errs []error
	for _, p := range paths {
		restored, err := o.backups.Restore(f.String(), p)
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", p, err))
			continue
		}
		if restored {
			o.logger.Debug("restored", zap.String("path", p))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) reloadSysctl(ctx context.Context) {
	if _, ok := o.exec.LookPath("sysctl"); !ok {
		return
	}
	o.bestEffort(ctx, "sysctl", "--system")
}

func (o *Orchestrator) service(ctx context.Context, action, unit string) {
	if _, ok := o.exec.LookPath("systemctl"); !ok {
		return
	}
	o.bestEffort(ctx, "systemctl", action, unit)
}

func (o *Orchestrator) bestEffort(ctx context.Context, name string, args ...string) {
	res, err := o.exec.Run(ctx, name, args...)
	if err != nil {
		o.logger.Warn("command failed to start", zap.String("cmd", name), zap.Strings("args", args), zap.Error(err))
		return
	}
	if !res.Success() {
		o.logger.Warn("command failed",
			zap.String("cmd", name),
			zap.Strings("args", args),
			zap.Int("exit_code", res.ExitCode),
			zap.String("output", res.Message("")))
	}
}
