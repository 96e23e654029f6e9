package policy_test

import (
	"testing"

	specdrift "github.com/robinmordasiewicz/specdrift"
	"github.com/robinmordasiewicz/specdrift/classify"
	"github.com/robinmordasiewicz/specdrift/policy"
)

func disc(k specdrift.Kind, conf float64) classify.Discrepancy {
	return classify.Discrepancy{
		Key:        specdrift.Key{Path: "/components/schemas/Order/properties/name", Kind: k},
		Verdict:    specdrift.VerdictWiden,
		Confidence: conf,
	}
}

func TestCompile_Empty(t *testing.T) {
	f, err := policy.Compile("  ")
	if err != nil || f != nil {
		t.Fatalf("empty filter: %v %v", f, err)
	}
	ok, err := f.Allow(disc(specdrift.KindRequired, 0))
	if err != nil || !ok {
		t.Fatalf("nil filter must allow: %v %v", ok, err)
	}
}

func TestFilter_Allow(t *testing.T) {
	f, err := policy.Compile(`kind != "required" && confidence >= 0.9`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	cases := []struct {
		d    classify.Discrepancy
		want bool
	}{
		{disc(specdrift.KindMaximum, 1), true},
		{disc(specdrift.KindMaximum, 0.5), false},
		{disc(specdrift.KindRequired, 1), false},
	}
	for _, c := range cases {
		got, err := f.Allow(c.d)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if got != c.want {
			t.Errorf("%s conf=%v: got %v, want %v", c.d.Key, c.d.Confidence, got, c.want)
		}
	}
}

func TestFilter_PathFunctions(t *testing.T) {
	f, err := policy.Compile(`path startsWith "/components/" && verdict == "widen"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if ok, _ := f.Allow(disc(specdrift.KindMaxLength, 1)); !ok {
		t.Fatalf("expected allow")
	}
}

func TestCompile_Errors(t *testing.T) {
	if _, err := policy.Compile(`confidence +`); err == nil {
		t.Fatalf("expected syntax error")
	}
	if _, err := policy.Compile(`confidence`); err == nil {
		t.Fatalf("expected non-bool error")
	}
	if _, err := policy.Compile(`unknown == 1`); err == nil {
		t.Fatalf("expected unknown name error")
	}
}
