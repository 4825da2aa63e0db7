package normalize

import "testing"

func TestTitleDropsStopWordsAndPunctuation(t *testing.T) {
	got, ok := Title("A Study of the Things: An Overview!")
	if !ok {
		t.Fatal("expected ok")
	}
	want := "study things overview"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTitleEmptyIsNotOK(t *testing.T) {
	if _, ok := Title(""); ok {
		t.Fatal("expected not ok for empty title")
	}
	if _, ok := Title("   "); ok {
		t.Fatal("expected not ok for blank title")
	}
}

func TestTitleAllStopWordsIsNotOK(t *testing.T) {
	if _, ok := Title("the of and"); ok {
		t.Fatal("expected not ok when every token is a stop word")
	}
}

func TestTitleTruncatesTo200(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "antidisestablishment "
	}
	got, ok := Title(long)
	if !ok {
		t.Fatal("expected ok")
	}
	if len(got) > 200 {
		t.Fatalf("title not truncated: len=%d", len(got))
	}
}

func TestTitleForOverlapKeepsStopWordsStripsBracketsAndTrailingPeriod(t *testing.T) {
	got := TitleForOverlap("A Study of Things [Review].")
	want := "a study of things"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestTitleForOverlapEmptyInputIsEmptyString(t *testing.T) {
	if got := TitleForOverlap(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestFirstAuthorCommaForm(t *testing.T) {
	got, ok := FirstAuthor([]string{"Smith, Jane"})
	if !ok || got != "smith" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestFirstAuthorSpaceForm(t *testing.T) {
	got, ok := FirstAuthor([]string{"Jane Van Der Smith"})
	if !ok || got != "smith" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestFirstAuthorEmptyList(t *testing.T) {
	if _, ok := FirstAuthor(nil); ok {
		t.Fatal("expected not ok")
	}
}

func TestAuthorsStringSplitsOnSemicolonNotComma(t *testing.T) {
	got := Authors("Smith, Jane; Doe, John")
	want := []string{"smith", "doe"}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestAuthorsSliceInput(t *testing.T) {
	got := Authors([]string{"Jane Smith", "John Doe"})
	want := []string{"smith", "doe"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestExtractYearFindsFirstPlausibleYear(t *testing.T) {
	y, ok := ExtractYear("2019 Jun;45(2):123")
	if !ok || y != 2019 {
		t.Fatalf("got %d ok=%v", y, ok)
	}
}

func TestExtractYearRejectsOutOfRange(t *testing.T) {
	if _, ok := ExtractYear("3019"); ok {
		t.Fatal("expected no match for implausible year")
	}
}

func TestVolumeStripsPrefix(t *testing.T) {
	got, ok := Volume("Vol. 12")
	if !ok || got != "12" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}

func TestDOILowercasesAndTrims(t *testing.T) {
	got, ok := DOI("  10.1000/ABC123  ")
	if !ok || got != "10.1000/abc123" {
		t.Fatalf("got %q ok=%v", got, ok)
	}
}
