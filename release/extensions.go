package release

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// fallbackUIDMin and fallbackUIDMax bound the desktop-user UID range when
// /etc/login.defs is missing or carries no UID_MIN/UID_MAX directive,
// matching Debian/Ubuntu's own shipped defaults.
const (
	fallbackUIDMin = 1000
	fallbackUIDMax = 60000
)

// LoginDefsFile and PasswdFile are redirectable so tests never read the
// real system files.
var (
	LoginDefsFile = "/etc/login.defs"
	PasswdFile    = "/etc/passwd"
)

// DisableDesktopExtensions best-effort disables gnome-shell extensions for
// every real desktop user, per spec.md §4.7 step 14. Failures for
// individual users are swallowed: this is cosmetic cleanup, never a reason
// to fail the upgrade.
func DisableDesktopExtensions(ctx context.Context) {
	min, max := loginDefsUIDRange()
	for _, user := range desktopUsers(min, max) {
		cmd := exec.CommandContext(ctx, "sudo", "-Hu", user, "gsettings", "set", "org.gnome.shell", "disable-user-extensions", "true")
		_ = cmd.Run()
	}
}

// loginDefsUIDRange reads UID_MIN/UID_MAX out of /etc/login.defs, falling
// back to the Debian/Ubuntu defaults for whichever directive is absent.
func loginDefsUIDRange() (min, max int) {
	min, max = fallbackUIDMin, fallbackUIDMax

	f, err := os.Open(LoginDefsFile)
	if err != nil {
		return min, max
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		value, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		switch fields[0] {
		case "UID_MIN":
			min = value
		case "UID_MAX":
			max = value
		}
	}
	return min, max
}

func desktopUsers(min, max int) []string {
	f, err := os.Open(PasswdFile)
	if err != nil {
		return nil
	}
	defer f.Close()

	var users []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 3 {
			continue
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}
		if uid > min && uid < max {
			users = append(users, fields[0])
		}
	}
	return users
}
