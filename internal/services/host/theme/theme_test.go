package theme

import "testing"

func TestResourceURI(t *testing.T) {
	t.Parallel()

	themed := NewResolver("http://api.example.org/rest/", "opensilex-phis", "phis theme")
	want := "http://api.example.org/rest/vuejs/theme/opensilex-phis/phis%20theme/resource?filePath=images%2Flogo.png"
	if got := themed.ResourceURI("images/logo.png"); got != want {
		t.Fatalf("ResourceURI = %q, want %q", got, want)
	}

	plain := NewResolver("http://api.example.org/rest", "", "phis")
	if got := plain.ResourceURI("images/logo.png"); got != "/app/images/logo.png" {
		t.Fatalf("ResourceURI = %q, want app path", got)
	}
}

func TestRDFIcon(t *testing.T) {
	t.Parallel()

	r := NewResolver("", "", "")
	if got := r.RDFIcon("vocabulary:Device"); got != DefaultIcon {
		t.Fatalf("RDFIcon = %q, want default", got)
	}
	icons := map[string]string{"vocabulary:Device": "ik#ik-thermometer"}
	r.SetIcons(icons)
	icons["vocabulary:Device"] = "mutated"
	if got := r.RDFIcon("vocabulary:Device"); got != "ik#ik-thermometer" {
		t.Fatalf("RDFIcon = %q", got)
	}
}
