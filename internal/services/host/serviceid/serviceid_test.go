package serviceid

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    ID
		wantErr bool
	}{
		{raw: "svc", want: ID{Service: "svc"}},
		{raw: "mod.svc", want: ID{Module: "mod", Service: "svc"}},
		{raw: "opensilex-security.AuthenticationService", want: ID{Module: "opensilex-security", Service: "AuthenticationService"}},
		{raw: "", wantErr: true},
		{raw: "a.b.c", wantErr: true},
		{raw: ".svc", wantErr: true},
		{raw: "mod.", wantErr: true},
		{raw: ".", wantErr: true},
	}
	for _, tc := range tests {
		got, err := Parse(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Parse(%q) error = %v, want ErrInvalid", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("Parse(%q) = %#v, want %#v", tc.raw, got, tc.want)
		}
		if got.String() != tc.raw {
			t.Fatalf("String() = %q, want %q", got.String(), tc.raw)
		}
	}
}

func TestIsBootstrap(t *testing.T) {
	t.Parallel()

	if !Bootstrap("IApiHttpClient").IsBootstrap() {
		t.Fatal("expected bootstrap id")
	}
	if Qualified("mod", "svc").IsBootstrap() {
		t.Fatal("expected qualified id")
	}
}

func TestMustParsePanicsOnInvalid(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustParse("a.b.c")
}
