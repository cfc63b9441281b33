package migration

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	version uint
	dirty   bool
	forced  int
	upErr   error
}

func (f *fakeMigrator) Up(context.Context) error {
	if f.upErr != nil {
		return f.upErr
	}
	f.version = 1
	return nil
}

func (f *fakeMigrator) Down(context.Context) error {
	f.version = 0
	return nil
}

func (f *fakeMigrator) Force(_ context.Context, v int) error {
	f.forced = v
	f.version = uint(v)
	f.dirty = false
	return nil
}

func (f *fakeMigrator) Version(context.Context) (uint, bool, error) {
	return f.version, f.dirty, nil
}

func (f *fakeMigrator) Status(context.Context) ([]MigrationStatus, error) {
	return []MigrationStatus{{
		Version: 1,
		Name:    "create_compute_ledger",
		Applied: f.version >= 1,
		Dirty:   f.dirty && f.version == 1,
	}}, nil
}

func (f *fakeMigrator) Info(ctx context.Context) (*MigrationInfo, error) {
	applied := 0
	if f.version >= 1 {
		applied = 1
	}
	return &MigrationInfo{
		CurrentVersion:    f.version,
		Dirty:             f.dirty,
		TotalMigrations:   1,
		AppliedMigrations: applied,
		PendingMigrations: 1 - applied,
	}, nil
}

func (f *fakeMigrator) Close() error { return nil }

func TestCLI_Run(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		start   fakeMigrator
		command string
		args    []string
		want    string
		wantErr string
	}{
		{name: "up", command: "up", want: "Migrations complete. Current version: 1"},
		{name: "down", start: fakeMigrator{version: 1}, command: "down", want: "Rollback complete. Current version: 0"},
		{name: "version dirty", start: fakeMigrator{version: 1, dirty: true}, command: "version", want: "Current version: 1 (dirty)"},
		{name: "status pending", command: "status", want: "Total: 1, Applied: 0, Pending: 1"},
		{name: "info", start: fakeMigrator{version: 1}, command: "info", want: "Applied Migrations: 1"},
		{name: "force", start: fakeMigrator{version: 1, dirty: true}, command: "force", args: []string{"1"}, want: "Version forced to 1"},
		{name: "force missing arg", command: "force", wantErr: "exactly one version"},
		{name: "force bad arg", command: "force", args: []string{"x"}, wantErr: "invalid version"},
		{name: "unknown", command: "goto", wantErr: "unknown migrate command"},
		{name: "up failure", start: fakeMigrator{upErr: errors.New("locked")}, command: "up", wantErr: "migration failed: locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.start
			var out bytes.Buffer
			cli := NewCLI(&m)
			cli.SetOutput(&out)

			err := cli.Run(ctx, tt.command, tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}
