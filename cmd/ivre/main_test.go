package main

import (
	"bytes"
	"testing"
)

func TestPassiveTopCountsDistinctByDefault(t *testing.T) {
	cmd := newPassiveTopCmd()
	weighted, err := cmd.Flags().GetBool("weighted")
	if err != nil {
		t.Fatalf("weighted flag: %v", err)
	}
	if weighted {
		t.Error("occurrence-count weighting must be opt-in")
	}
}

func TestRootCommandOnEmptyDatabase(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"--db", t.TempDir(), "passive", "top", "sensor"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
}
