package inotify

import "testing"

func TestFlagString(t *testing.T) {
	tests := []struct {
		flag Flag
		want string
	}{
		{0, "0"},
		{Create, "CREATE"},
		{Create | IsDir, "CREATE|ISDIR"},
		{Attrib | IsDir, "ATTRIB|ISDIR"},
		{DeleteSelf, "DELETE_SELF"},
		{MovedFrom | 0x10000, "MOVED_FROM|0x10000"},
	}

	for _, tt := range tests {
		if got := tt.flag.String(); got != tt.want {
			t.Errorf("Flag(%#x).String() = %q, want %q", uint32(tt.flag), got, tt.want)
		}
	}
}

func TestFlagHas(t *testing.T) {
	mask := Create | IsDir
	if !mask.Has(Create) {
		t.Error("mask should have Create")
	}
	if !mask.Has(IsDir) {
		t.Error("mask should have IsDir")
	}
	if mask.Has(Delete) {
		t.Error("mask should not have Delete")
	}
	if mask.Has(0) {
		t.Error("Has(0) should be false")
	}
}

func TestRecordString(t *testing.T) {
	r := Record{Descriptor: 3, Mask: MovedTo, Cookie: 42, Name: "b"}
	want := `Record(wd=3 mask=MOVED_TO cookie=42 name="b")`
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New("carrier-pigeon"); err == nil {
		t.Fatal("New() with unknown backend should fail")
	}
}
