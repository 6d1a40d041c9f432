package handlers

import "testing"

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()

	for _, name := range []string{"process", "index", "ask", "chat", "highlights", "serve"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("Expected subcommand %q to be registered", name)
		}
	}

	if root.PersistentFlags().Lookup("config") == nil {
		t.Error("Expected persistent --config flag")
	}

	highlights, _, _ := root.Find([]string{"highlights"})
	if highlights.Flags().Lookup("category") == nil {
		t.Error("Expected --category flag on highlights")
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	ask := NewAskCmd()
	if err := ask.Args(ask, nil); err == nil {
		t.Error("Expected ask without arguments to be rejected")
	}
}
