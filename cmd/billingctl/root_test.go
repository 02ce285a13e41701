package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"management-fees", "export", "reconcile", "validate-fees"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestCommands_RejectBadArgumentsBeforeLoadingConfig(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"year not a number", []string{"management-fees", "abc"}, `invalid year "abc"`},
		{"year too old", []string{"management-fees", "1999"}, `invalid year "1999"`},
		{"missing year", []string{"management-fees"}, "accepts 1 arg"},
		{"unknown status", []string{"export", "--status", "LOST"}, `invalid status "LOST"`},
		{"unknown bill type", []string{"export", "--type", "donations"}, `invalid bill type "donations"`},
		{"non positive limit", []string{"reconcile", "--limit", "0"}, "limit must be positive"},
		{"missing workbook", []string{"validate-fees", "/nonexistent/fees.xlsx"}, "failed to open"},
	}

	// flag values persist across Execute calls, so the order matters
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			rootCmd.SetOut(&out)
			rootCmd.SetErr(&out)
			rootCmd.SetArgs(append(tt.args, "--config", "/nonexistent/config.yaml"))

			err := rootCmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
