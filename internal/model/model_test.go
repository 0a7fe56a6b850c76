package model

import "testing"

func TestPreferenceResolve(t *testing.T) {
	cases := []struct {
		pref    Preference
		enabled bool
		want    bool
	}{
		{PreferenceTrue, false, true},
		{PreferenceFalse, true, false},
		{PreferenceUndefined, true, true},
		{PreferenceUndefined, false, false},
	}
	for _, c := range cases {
		if got := c.pref.Resolve(c.enabled); got != c.want {
			t.Errorf("Preference(%d).Resolve(%v) = %v, want %v", c.pref, c.enabled, got, c.want)
		}
	}
}

func TestRelationKeyNormalizesOrder(t *testing.T) {
	a := Relation{LeftID: 5, RightID: 2, Type: "DUPLICATE"}
	b := Relation{LeftID: 2, RightID: 5, Type: "DUPLICATE"}
	al, ar, at := a.Key()
	bl, br, bt := b.Key()
	if al != bl || ar != br || at != bt {
		t.Fatalf("expected symmetric relations to share a key: (%d,%d,%s) vs (%d,%d,%s)", al, ar, at, bl, br, bt)
	}
}

func TestItemHasFlag(t *testing.T) {
	it := &Item{Flags: []string{`\Seen`, `\Flagged`}}
	if !it.HasFlag(`\Seen`) {
		t.Fatal("expected HasFlag to find \\Seen")
	}
	if it.HasFlag(`\Deleted`) {
		t.Fatal("did not expect HasFlag to find \\Deleted")
	}
}

func TestPartIsPayload(t *testing.T) {
	if !(Part{Name: "PLD:RFC822"}).IsPayload() {
		t.Fatal("expected PLD: prefix to be a payload part")
	}
	if (Part{Name: "ATR:ENVELOPE"}).IsPayload() {
		t.Fatal("did not expect ATR: prefix to be a payload part")
	}
}

func TestSameCollectionModifyTarget(t *testing.T) {
	a := Notification{Type: NotifyCollection, Operation: OpModify, Entities: []EntityRef{{ID: 9}}}
	b := Notification{Type: NotifyCollection, Operation: OpModify, Entities: []EntityRef{{ID: 9}}}
	c := Notification{Type: NotifyCollection, Operation: OpModify, Entities: []EntityRef{{ID: 10}}}
	if !a.SameCollectionModifyTarget(b) {
		t.Fatal("expected matching collection modifies to merge")
	}
	if a.SameCollectionModifyTarget(c) {
		t.Fatal("did not expect different collections to merge")
	}
}
