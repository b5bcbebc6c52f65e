package normalize

import "testing"

func TestAnswerFoldsCaseAndTrims(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  MotherName  ", "mothername"},
		{"JANE", "jane"},
		{"blue", "blue"},
		{"\tStraße ", "strasse"},
		{"", ""},
		{"   ", ""},
	}

	for _, tc := range cases {
		if got := Answer(tc.in); got != tc.want {
			t.Errorf("Answer(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDigestSymmetry(t *testing.T) {
	if Digest(" MotherName ") != Digest("mothername") {
		t.Fatal("expected case/whitespace variants to digest identically")
	}
	if Digest("jane") == Digest("joan") {
		t.Fatal("expected distinct answers to digest differently")
	}
}

func TestIsBlank(t *testing.T) {
	if !IsBlank("   ") {
		t.Fatal("whitespace-only answer should be blank")
	}
	if IsBlank("x") {
		t.Fatal("non-empty answer should not be blank")
	}
}
