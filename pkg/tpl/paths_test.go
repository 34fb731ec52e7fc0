package tpl

import (
	"slices"
	"testing"
)

func collect(seq func(func(string) bool)) []string {
	var out []string
	for p := range seq {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func TestIterPathsUnconfigured(t *testing.T) {
	m, _ := setupManager(t)
	mustFinalize(t, m)

	if got := collect(m.IterPaths("")); len(got) != 0 {
		t.Errorf("IterPaths = %v, want none", got)
	}
}

func TestIterPathsAll(t *testing.T) {
	m, _ := setupManager(t)
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustFinalize(t, m)

	want := []string{"a.tpl", "b.tpl", "empty.tpl"}
	if got := collect(m.IterPaths("")); !slices.Equal(got, want) {
		t.Errorf("IterPaths = %v, want %v", got, want)
	}
}

func TestIterPathsSkipsUnclassifiable(t *testing.T) {
	m, _ := setupManager(t)
	loader := &mockLoader{contents: map[string]string{
		"good.tpl":      "x",
		"weird.unknown": "y",
	}}
	if err := m.SetLoaders("tpl", loader); err != nil {
		t.Fatalf("SetLoaders failed: %v", err)
	}
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustFinalize(t, m)

	want := []string{"good.tpl"}
	if got := collect(m.IterPaths("")); !slices.Equal(got, want) {
		t.Errorf("IterPaths = %v, want %v", got, want)
	}
}

func TestIterPathsByMimetype(t *testing.T) {
	m, root := setupManager(t)
	writeFixture(t, root, "path/to/file.tpl.xml", "<x/>")
	writeFixture(t, root, "data.xml", "<d/>")
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustAddExtension(t, m.FileType("text/xml"), "xml")
	mustFinalize(t, m)

	// The filetype of file.tpl.xml is decided by the extension component
	// right after the stem, so it belongs to text/plain, not text/xml.
	plain := collect(m.IterPaths("text/plain"))
	want := []string{"a.tpl", "b.tpl", "empty.tpl", "path/to/file.tpl.xml"}
	if !slices.Equal(plain, want) {
		t.Errorf("IterPaths(text/plain) = %v, want %v", plain, want)
	}

	xml := collect(m.IterPaths("text/xml"))
	if !slices.Equal(xml, []string{"data.xml"}) {
		t.Errorf("IterPaths(text/xml) = %v, want [data.xml]", xml)
	}

	if got := collect(m.IterPaths("text/unknown")); len(got) != 0 {
		t.Errorf("IterPaths(text/unknown) = %v, want none", got)
	}
}

func TestIterPathsRestartable(t *testing.T) {
	m, _ := setupManager(t)
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustFinalize(t, m)

	seq := m.IterPaths("")
	first := collect(seq)
	second := collect(seq)
	if !slices.Equal(first, second) {
		t.Errorf("restarted sequence differs: %v vs %v", first, second)
	}
}

func TestIterPathsEarlyStop(t *testing.T) {
	m, _ := setupManager(t)
	mustAddExtension(t, m.FileType("text/plain"), "tpl")
	mustFinalize(t, m)

	var got []string
	for p := range m.IterPaths("") {
		got = append(got, p)
		break
	}
	if len(got) != 1 {
		t.Errorf("early stop yielded %v", got)
	}
}
