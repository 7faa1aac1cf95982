package release

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoginDefsUIDRange_FallsBackWhenFileMissing(t *testing.T) {
	orig := LoginDefsFile
	LoginDefsFile = filepath.Join(t.TempDir(), "login.defs")
	t.Cleanup(func() { LoginDefsFile = orig })

	min, max := loginDefsUIDRange()
	if min != fallbackUIDMin || max != fallbackUIDMax {
		t.Errorf("loginDefsUIDRange() = (%d, %d), want (%d, %d)", min, max, fallbackUIDMin, fallbackUIDMax)
	}
}

func TestLoginDefsUIDRange_ReadsDirectives(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login.defs")
	contents := "# comment\nUID_MIN 2000\nUID_MAX 59999\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	orig := LoginDefsFile
	LoginDefsFile = path
	t.Cleanup(func() { LoginDefsFile = orig })

	min, max := loginDefsUIDRange()
	if min != 2000 || max != 59999 {
		t.Errorf("loginDefsUIDRange() = (%d, %d), want (2000, 59999)", min, max)
	}
}

func TestDesktopUsers_FiltersByUIDRange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "passwd")
	contents := "root:x:0:0::/root:/bin/bash\n" +
		"daemon:x:1:1::/usr/sbin:/usr/sbin/nologin\n" +
		"alice:x:1000:1000::/home/alice:/bin/bash\n" +
		"nobody:x:65534:65534::/nonexistent:/usr/sbin/nologin\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	orig := PasswdFile
	PasswdFile = path
	t.Cleanup(func() { PasswdFile = orig })

	users := desktopUsers(999, 60000)
	if len(users) != 1 || users[0] != "alice" {
		t.Errorf("desktopUsers() = %v, want [alice]", users)
	}
}
