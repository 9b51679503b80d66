package backuptool

import (
	"fmt"

	"github.com/fgeck/hotbackup/internal/models"
)

// DefaultPgBasebackupBinary is used when a host sets no binary.
const DefaultPgBasebackupBinary = "pg_basebackup"

// PgBasebackup streams a PostgreSQL cluster as tar via pg_basebackup.
// The whole cluster is copied, so the host's datadir is ignored.
type PgBasebackup struct{}

// Command builds the pg_basebackup invocation for host.
func (p *PgBasebackup) Command(host models.HostRecord) models.ToolCommand {
	name := host.Binary
	if name == "" {
		name = DefaultPgBasebackupBinary
	}

	// Tar output to stdout only works with fetched (not streamed) WAL.
	args := []string{
		"-h", host.Host,
		"-p", fmt.Sprintf("%d", host.Port),
		"-U", host.User,
		"-D", "-",
		"-Ft",
		"-X", "fetch",
		"-w",
	}

	env := []string{}
	if host.Password != "" {
		env = append(env, fmt.Sprintf("PGPASSWORD=%s", host.Password))
	}

	return models.ToolCommand{Name: name, Args: args, Env: env}
}
