package update

import "path"

// Mapping places one file from the release tree at an absolute destination.
type Mapping struct {
	Src string // relative to the archive's top-level directory
	Dst string
}

// Manifest is the fixed set of files an install replaces, in apply order.
// Sources missing from a release are skipped.
var Manifest = buildManifest()

// Executables get mode 0755 after every install, when present.
var Executables = []string{
	"/usr/bin/muxos-welcome",
	"/usr/bin/muxos-updater",
	"/usr/bin/muxos-control-panel",
	"/usr/bin/muxos-monitor",
	"/usr/bin/muxos-hardware-detector",
	"/usr/bin/muxos-enhanced-monitor",
	"/usr/bin/muxos-security-center",
	"/usr/bin/muxos-disk-manager",
	"/usr/bin/muxos-game-center",
	"/usr/bin/muxos-task-manager",
	"/usr/bin/muxos-screenshot",
	"/usr/bin/muxos-notes",
	"/usr/bin/muxos-calculator",
	"/usr/lib/muxos/muxos-firstboot-helper.py",
	"/usr/lib/muxos/muxos-security-helper.py",
	"/usr/lib/muxos/muxos-update-helper.py",
	"/usr/share/muxos/drivers/detect-hardware.sh",
	"/usr/share/muxos/drivers/detect-hardware-complete.sh",
	"/usr/share/muxos/security/firewall-rules.sh",
	"/usr/share/muxos/security/intrusion-detection.sh",
	"/usr/share/muxos/security/privacy-settings.sh",
	"/usr/share/muxos/security/system-hardening.sh",
}

var applications = []Mapping{
	{"apps/welcome/muxos-welcome.py", "/usr/bin/muxos-welcome"},
	{"apps/control-panel/muxos-control-panel-v2.py", "/usr/bin/muxos-control-panel"},
	{"apps/system-monitor/muxos-monitor.py", "/usr/bin/muxos-monitor"},
	{"apps/system-monitor/muxos-hardware-detector.py", "/usr/bin/muxos-hardware-detector"},
	{"apps/system-monitor/muxos-enhanced-monitor.py", "/usr/bin/muxos-enhanced-monitor"},
	{"apps/security/muxos-security-center.py", "/usr/bin/muxos-security-center"},
	{"apps/storage/muxos-disk-manager.py", "/usr/bin/muxos-disk-manager"},
	{"apps/gaming/muxos-game-center.py", "/usr/bin/muxos-game-center"},
	{"apps/utilities/muxos-task-manager.py", "/usr/bin/muxos-task-manager"},
	{"apps/utilities/muxos-screenshot.py", "/usr/bin/muxos-screenshot"},
	{"apps/utilities/muxos-notes.py", "/usr/bin/muxos-notes"},
	{"apps/utilities/muxos-calculator.py", "/usr/bin/muxos-calculator"},
	{"apps/updater/muxos-updater.py", "/usr/bin/muxos-updater"},
}

var desktopEntries = []string{
	"muxos-hardware-detector.desktop",
	"muxos-enhanced-monitor.desktop",
	"muxos-welcome.desktop",
	"muxos-security-center.desktop",
	"muxos-task-manager.desktop",
	"muxos-disk-manager.desktop",
	"muxos-game-center.desktop",
	"muxos-screenshot.desktop",
	"muxos-notes.desktop",
	"muxos-calculator.desktop",
}

var systemFiles = []Mapping{
	{"system/drivers/detect-hardware.sh", "/usr/share/muxos/drivers/detect-hardware.sh"},
	{"system/drivers/detect-hardware-complete.sh", "/usr/share/muxos/drivers/detect-hardware-complete.sh"},
	{"system/security/firewall-rules.sh", "/usr/share/muxos/security/firewall-rules.sh"},
	{"system/security/intrusion-detection.sh", "/usr/share/muxos/security/intrusion-detection.sh"},
	{"system/security/privacy-settings.sh", "/usr/share/muxos/security/privacy-settings.sh"},
	{"system/security/system-hardening.sh", "/usr/share/muxos/security/system-hardening.sh"},
	{"system/security/muxos-security-helper.py", "/usr/lib/muxos/muxos-security-helper.py"},
	{"system/setup/muxos-firstboot-helper.py", "/usr/lib/muxos/muxos-firstboot-helper.py"},
	{"system/polkit/com.muxos.firstboot.policy", "/usr/share/polkit-1/actions/com.muxos.firstboot.policy"},
	{"system/polkit/com.muxos.security.policy", "/usr/share/polkit-1/actions/com.muxos.security.policy"},
	{"system/polkit/com.muxos.updater.policy", "/usr/share/polkit-1/actions/com.muxos.updater.policy"},
	{"system/updater/muxos-update-helper.py", "/usr/lib/muxos/muxos-update-helper.py"},
}

const mainConfig = "config/muxos.conf"

func buildManifest() []Mapping {
	m := make([]Mapping, 0, len(applications)+len(desktopEntries)+len(systemFiles)+2)
	m = append(m, applications...)
	for _, name := range desktopEntries {
		m = append(m, Mapping{
			Src: path.Join("apps/desktop-entries", name),
			Dst: path.Join("/usr/share/applications", name),
		})
	}
	m = append(m, systemFiles...)
	m = append(m,
		Mapping{mainConfig, "/etc/muxos.conf"},
		Mapping{mainConfig, "/usr/share/muxos/muxos.conf"},
	)
	return m
}
