package models

// Supported backup engines.
const (
	EngineXtrabackup   = "xtrabackup"
	EnginePgBasebackup = "pg_basebackup"
)

// HostRecord describes one database host to back up.
type HostRecord struct {
	Name     string
	User     string
	Password string
	Host     string
	Port     int
	Datadir  string

	Engine string     // EngineXtrabackup (default) or EnginePgBasebackup
	Binary string     // overrides the engine's default executable
	SSH    *SSHConfig // nil runs the tool locally
	WOL    *WOLConfig // nil if not configured
}

// ToolCommand is a fully resolved backup tool invocation.
type ToolCommand struct {
	Name string
	Args []string
	Env  []string
}
