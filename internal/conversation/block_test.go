package conversation

import "testing"

func TestHasResult(t *testing.T) {
	block := ContextBlock{}
	if block.HasResult() {
		t.Fatal("block without result should report false")
	}
	block.ExecutionResult = &ExecutionResult{RowCount: 3}
	if block.HasResult() {
		t.Fatal("result without rows is malformed, should report false")
	}
	block.ExecutionResult.Rows = [][]any{}
	if !block.HasResult() {
		t.Fatal("empty row set is still a result")
	}
}

func TestTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusFailed:     true,
	}
	for status, want := range cases {
		if got := (ContextBlock{Status: status}).Terminal(); got != want {
			t.Fatalf("Terminal() with %q = %v, want %v", status, got, want)
		}
	}
}
