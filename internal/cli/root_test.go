package cli

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firerestore-dev/firerestore/internal/cli/commands"
	"github.com/firerestore-dev/firerestore/internal/gcloud"
	"github.com/firerestore-dev/firerestore/internal/gcloud/gcloudtest"
)

func TestRootCommand(t *testing.T) {
	r := gcloudtest.NewRunner().On(gcloudtest.ProjectsCommand, gcloudtest.OK("proj1\nproj2\n"))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"version", []string{"version"}, "firerestore version dev\n"},
		{"projects", []string{"projects"}, "proj1\nproj2\n"},
		{"projects as json", []string{"--json", "projects"}, "[\n  \"proj1\",\n  \"proj2\"\n]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			env := &commands.Env{
				Gateway: gcloud.New(r, gcloud.DefaultOptions(), zerolog.Nop()),
				Logger:  zerolog.Nop(),
			}
			cmd := NewRootCmd(env)
			cmd.SetOut(&out)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestRestoreRequiresBackupFlag(t *testing.T) {
	env := &commands.Env{
		Gateway: gcloud.New(gcloudtest.NewRunner(), gcloud.DefaultOptions(), zerolog.Nop()),
		Logger:  zerolog.Nop(),
	}
	cmd := NewRootCmd(env)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"restore", "--project", "proj1"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup")
}
