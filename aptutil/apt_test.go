package aptutil

import "testing"

func TestParsePrintURIs(t *testing.T) {
	out := []byte(`'http://archive.ubuntu.com/pool/pop-desktop_1.0_amd64.deb' pop-desktop_1.0_amd64.deb 123456 SHA256:abcd1234
'http://archive.ubuntu.com/pool/pop-shell_2.0_amd64.deb' pop-shell_2.0_amd64.deb 98765 SHA256:ef012345
`)
	uris, err := parsePrintURIs(out)
	if err != nil {
		t.Fatalf("parsePrintURIs() error = %v", err)
	}
	if len(uris) != 2 {
		t.Fatalf("len(uris) = %d, want 2", len(uris))
	}
	if uris[0].Name != "pop-desktop_1.0_amd64.deb" || uris[0].Size != 123456 {
		t.Errorf("uris[0] = %+v, want Name=pop-desktop_1.0_amd64.deb Size=123456", uris[0])
	}
	if uris[0].Sources[0] != "http://archive.ubuntu.com/pool/pop-desktop_1.0_amd64.deb" {
		t.Errorf("uris[0].Sources[0] = %q", uris[0].Sources[0])
	}
}

func TestParsePrintURIs_DeduplicatesByDest(t *testing.T) {
	out := []byte(`'http://a/x.deb' x.deb 1 SHA256:a
'http://b/x.deb' x.deb 1 SHA256:a
`)
	uris, err := parsePrintURIs(out)
	if err != nil {
		t.Fatalf("parsePrintURIs() error = %v", err)
	}
	if len(uris) != 1 {
		t.Fatalf("len(uris) = %d, want 1 (deduplicated)", len(uris))
	}
}

func TestParseSettingUp(t *testing.T) {
	tests := []struct {
		line        string
		wantPkg     string
		wantVersion string
		wantOK      bool
	}{
		{"Setting up pop-desktop (1.2.3) ...", "pop-desktop", "1.2.3", true},
		{"Unpacking pop-desktop (1.2.3) ...", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		pkg, version, ok := parseSettingUp(tt.line)
		if pkg != tt.wantPkg || version != tt.wantVersion || ok != tt.wantOK {
			t.Errorf("parseSettingUp(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.line, pkg, version, ok, tt.wantPkg, tt.wantVersion, tt.wantOK)
		}
	}
}

func TestParsePolicy(t *testing.T) {
	out := `pop-desktop:
  Installed: 1.0
  Candidate: 1.2
  Version table:
irqbalance:
  Installed: (none)
  Candidate: (none)
  Version table:
`
	policies := parsePolicy(out)
	if len(policies) != 2 {
		t.Fatalf("len(policies) = %d, want 2", len(policies))
	}
	if policies[0].Package != "pop-desktop" || policies[0].Installed != "1.0" || policies[0].Candidate != "1.2" {
		t.Errorf("policies[0] = %+v", policies[0])
	}
	if !policies[1].HasNoCandidate {
		t.Errorf("policies[1].HasNoCandidate = false, want true")
	}
}
