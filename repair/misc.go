package repair

import (
	"os"
	"path/filepath"
	"strings"
)

// ModulesDirs are searched in order for the first that exists, mirroring
// original_source/daemon/src/repair/misc.rs's dkms_gcc9_fix.
var ModulesDirs = []string{"/lib/modules", "/usr/lib/modules"}

var badGCCFlags = []string{" -mindirect-branch=thunk-extern", " -mindirect-branch=thunk-inline"}

// DKMSMakefileFix strips GCC flags incompatible with kernels older than
// 5.3.0 from any installed kernel's DKMS build Makefile, a one-time fix
// needed when upgrading onto a GCC 9 toolchain (spec.md §4.7 step 10,
// "legacy DKMS makefiles").
func DKMSMakefileFix() error {
	var modulesDir string
	for _, dir := range ModulesDirs {
		if _, err := os.Stat(dir); err == nil {
			modulesDir = dir
			break
		}
	}
	if modulesDir == "" {
		return nil
	}

	entries, err := os.ReadDir(modulesDir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if compareKernelVersions(e.Name(), "5.3.0") >= 0 {
			continue
		}

		makefile := filepath.Join(modulesDir, e.Name(), "build", "Makefile")
		data, err := os.ReadFile(makefile)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		fixed := data
		for _, flag := range badGCCFlags {
			fixed = []byte(strings.ReplaceAll(string(fixed), flag, ""))
		}
		if string(fixed) == string(data) {
			continue
		}
		if err := os.WriteFile(makefile, fixed, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// compareKernelVersions does a numeric, dotted-segment comparison of a
// kernel directory name (e.g. "5.15.0-91-generic") against a bare version
// (e.g. "5.3.0"), comparing only the leading numeric dotted prefix.
func compareKernelVersions(a, b string) int {
	as := leadingVersionSegments(a)
	bs := leadingVersionSegments(b)
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv int
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func leadingVersionSegments(s string) []int {
	field := strings.SplitN(s, "-", 2)[0]
	var segs []int
	for _, part := range strings.Split(field, ".") {
		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				break
			}
			n = n*10 + int(c-'0')
		}
		segs = append(segs, n)
	}
	return segs
}
