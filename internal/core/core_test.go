package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestCombinedText(t *testing.T) {
	tests := []struct {
		name       string
		title      string
		summary    string
		hasSummary bool
		want       string
	}{
		{"with summary", "Rates rise", "The bank moved.", true, "Rates rise \n\n The bank moved."},
		{"nil sentinel", "Rates rise", "nil", true, "Rates rise \n\n "},
		{"empty summary", "Rates rise", "", true, "Rates rise \n\n "},
		{"no summary column", "Rates rise", "", false, "Rates rise"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CombinedText(tt.title, tt.summary, tt.hasSummary); got != tt.want {
				t.Errorf("CombinedText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHighlightText(t *testing.T) {
	a := Article{Title: "Cup final", Text: "Cup final \n\n Late winner."}
	if got := HighlightText(a); got != "Cup final. Cup final \n\n Late winner." {
		t.Errorf("HighlightText() = %q", got)
	}
}

func TestErrorsUnwrap(t *testing.T) {
	root := errors.New("boom")

	var perr *ProviderError
	if !errors.As(fmt.Errorf("wrap: %w", &ProviderError{Op: "embed", Err: root}), &perr) {
		t.Fatal("expected ProviderError through wrapping")
	}
	if !errors.Is(perr, root) {
		t.Error("ProviderError should unwrap to its cause")
	}

	ierr := &IndexError{Op: "upsert", Collection: CollectionArticles, Err: root}
	if !errors.Is(ierr, root) {
		t.Error("IndexError should unwrap to its cause")
	}

	in := &InputDataError{Path: "news.csv", Reason: "missing Title column"}
	if in.Error() != "invalid input data in news.csv: missing Title column" {
		t.Errorf("unexpected message %q", in.Error())
	}
}
