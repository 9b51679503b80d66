package backuptool

import (
	"strings"
	"testing"

	"github.com/fgeck/hotbackup/internal/models"
	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHost() models.HostRecord {
	return models.HostRecord{
		Name:     "db1",
		User:     "u",
		Password: "p",
		Host:     "10.0.0.5",
		Port:     3306,
		Datadir:  "/var/lib/mysql",
	}
}

func TestXtrabackup_Command(t *testing.T) {
	cmd := (&Xtrabackup{}).Command(testHost())

	assert.Equal(t, "innobackupex", cmd.Name)
	assert.Equal(t, []string{
		"--user=u",
		"--password=p",
		"--host=10.0.0.5",
		"--port=3306",
		"--stream=tar",
		"/var/lib/mysql",
	}, cmd.Args)
	assert.Empty(t, cmd.Env)
}

func TestXtrabackup_Command_NoPassword(t *testing.T) {
	host := testHost()
	host.Password = ""

	cmd := (&Xtrabackup{}).Command(host)

	for _, a := range cmd.Args {
		assert.NotContains(t, a, "--password")
	}
}

func TestXtrabackup_Command_BinaryOverride(t *testing.T) {
	host := testHost()
	host.Binary = "/opt/xtrabackup/bin/xtrabackup"

	cmd := (&Xtrabackup{}).Command(host)

	assert.Equal(t, "/opt/xtrabackup/bin/xtrabackup", cmd.Name)
}

func TestXtrabackup_Command_ArgumentsAreNotInterpreted(t *testing.T) {
	host := testHost()
	host.Password = "p; rm -rf /"

	cmd := (&Xtrabackup{}).Command(host)

	// One argv element, never split or interpreted.
	assert.Contains(t, cmd.Args, "--password=p; rm -rf /")
}

func TestPgBasebackup_Command(t *testing.T) {
	host := testHost()
	host.Engine = models.EnginePgBasebackup
	host.Port = 5432

	cmd := (&PgBasebackup{}).Command(host)

	assert.Equal(t, "pg_basebackup", cmd.Name)
	assert.Equal(t, []string{
		"-h", "10.0.0.5",
		"-p", "5432",
		"-U", "u",
		"-D", "-",
		"-Ft",
		"-X", "fetch",
		"-w",
	}, cmd.Args)
	assert.Equal(t, []string{"PGPASSWORD=p"}, cmd.Env)
}

func TestPgBasebackup_Command_NoPassword(t *testing.T) {
	host := testHost()
	host.Password = ""

	cmd := (&PgBasebackup{}).Command(host)

	assert.Empty(t, cmd.Env)
}

func TestForEngine(t *testing.T) {
	tests := []struct {
		engine   string
		expected Tool
	}{
		{"", &Xtrabackup{}},
		{models.EngineXtrabackup, &Xtrabackup{}},
		{models.EnginePgBasebackup, &PgBasebackup{}},
	}

	for _, tt := range tests {
		t.Run(tt.engine, func(t *testing.T) {
			tool, err := ForEngine(tt.engine)

			require.NoError(t, err)
			assert.IsType(t, tt.expected, tool)
		})
	}

	_, err := ForEngine("mongodump")
	assert.Error(t, err)
}

func TestShellCommand(t *testing.T) {
	cmd := models.ToolCommand{
		Name: "innobackupex",
		Args: []string{"--password=it's", "--stream=tar", "/var/lib/mysql"},
	}

	line := ShellCommand(cmd)

	assert.True(t, strings.HasPrefix(line, "innobackupex "))
	words, err := shellquote.Split(line)
	require.NoError(t, err)
	assert.Equal(t, []string{"innobackupex", "--password=it's", "--stream=tar", "/var/lib/mysql"}, words)
}

func TestShellCommand_WithEnv(t *testing.T) {
	cmd := models.ToolCommand{
		Name: "pg_basebackup",
		Args: []string{"-D", "-"},
		Env:  []string{"PGPASSWORD=$(whoami)"},
	}

	line := ShellCommand(cmd)

	assert.True(t, strings.HasPrefix(line, "env "))
	assert.NotContains(t, line, " PGPASSWORD=$(whoami) ")
	words, err := shellquote.Split(line)
	require.NoError(t, err)
	assert.Equal(t, []string{"env", "PGPASSWORD=$(whoami)", "pg_basebackup", "-D", "-"}, words)
}

func TestShellCommand_HostileCredentials(t *testing.T) {
	passwords := []string{
		"pa$$w0rd",
		"S3cr$tKey",
		`it's "quoted"`,
		"semi;colon && rm -rf /",
		"back`tick`\\slash",
		"",
	}

	for _, pw := range passwords {
		t.Run(pw, func(t *testing.T) {
			cmd := (&Xtrabackup{}).Command(models.HostRecord{
				User: "u", Password: pw, Host: "h", Port: 3306, Datadir: "/data dir",
			})

			words, err := shellquote.Split(ShellCommand(cmd))
			require.NoError(t, err)
			assert.Equal(t, append([]string{cmd.Name}, cmd.Args...), words)
		})
	}
}

func TestRedact(t *testing.T) {
	cmd := models.ToolCommand{
		Name: "innobackupex",
		Args: []string{"--user=u", "--password=p"},
		Env:  []string{"PGPASSWORD=secret", "LANG=C"},
	}

	redacted := Redact(cmd)

	assert.Equal(t, []string{"--user=u", "--password=***"}, redacted.Args)
	assert.Equal(t, []string{"PGPASSWORD=***", "LANG=C"}, redacted.Env)
	// Input is untouched
	assert.Equal(t, "--password=p", cmd.Args[1])
}
