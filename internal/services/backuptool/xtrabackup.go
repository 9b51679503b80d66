package backuptool

import (
	"fmt"

	"github.com/fgeck/hotbackup/internal/models"
)

// DefaultXtrabackupBinary is the Percona XtraBackup wrapper used when a host sets no binary.
const DefaultXtrabackupBinary = "innobackupex"

// Xtrabackup streams a MySQL data directory as tar via innobackupex.
type Xtrabackup struct{}

// Command builds the innobackupex invocation for host.
func (x *Xtrabackup) Command(host models.HostRecord) models.ToolCommand {
	name := host.Binary
	if name == "" {
		name = DefaultXtrabackupBinary
	}

	args := []string{fmt.Sprintf("--user=%s", host.User)}
	if host.Password != "" {
		args = append(args, fmt.Sprintf("--password=%s", host.Password))
	}
	args = append(args,
		fmt.Sprintf("--host=%s", host.Host),
		fmt.Sprintf("--port=%d", host.Port),
		"--stream=tar",
		host.Datadir,
	)

	return models.ToolCommand{Name: name, Args: args}
}
