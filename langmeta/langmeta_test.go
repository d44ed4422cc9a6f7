package langmeta

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: "lt-lt", want: "lt_LT"},
		{in: " TR_tr ", want: "tr_TR"},
		{in: "de", want: "de"},
		{in: "", want: ""},
	}

	for _, tc := range cases {
		got := canonicalize(tc.in)
		if got != tc.want {
			t.Fatalf("canonicalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestResolve(t *testing.T) {
	t.Run("exact match", func(t *testing.T) {
		got := Resolve("lt_LT")
		if got.Name != "Lithuanian" || got.LokaliseCode != "lt_LT" {
			t.Fatalf("unexpected result: %#v", got)
		}
	})

	t.Run("normalized match", func(t *testing.T) {
		if got := Name("et-ee"); got != "Estonian" {
			t.Fatalf("Name(et-ee) = %q, want Estonian", got)
		}
	})

	t.Run("short code maps to lokalise locale", func(t *testing.T) {
		if got := LokaliseCode("lv"); got != "lv_LV" {
			t.Fatalf("LokaliseCode(lv) = %q, want lv_LV", got)
		}
	})

	t.Run("base fallback", func(t *testing.T) {
		got := Resolve("de_AT")
		if got.Name != "German" {
			t.Fatalf("unexpected fallback result: %#v", got)
		}
	})

	t.Run("CLDR fallback", func(t *testing.T) {
		got := Resolve("ja")
		if got.Name != "Japanese" || got.LokaliseCode != "ja" {
			t.Fatalf("unexpected CLDR result: %#v", got)
		}
	})

	t.Run("unknown passthrough", func(t *testing.T) {
		got := Resolve("not a code!")
		if got.Name != "not a code!" {
			t.Fatalf("unexpected unknown result: %#v", got)
		}
	})
}

func TestMerge(t *testing.T) {
	t.Cleanup(func() { delete(Registry, "pt_BR") })

	Merge(map[string]Meta{"pt_BR": {Name: "Portuguese (Brazil)"}})
	got := Resolve("pt-br")
	if got.Name != "Portuguese (Brazil)" || got.LokaliseCode != "pt_BR" {
		t.Fatalf("unexpected merged result: %#v", got)
	}
}
