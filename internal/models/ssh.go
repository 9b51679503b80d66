package models

// SSHConfig describes how to reach the machine the backup tool runs on.
type SSHConfig struct {
	Host           string
	Port           int
	Username       string
	PrivateKey     []byte // loaded from KeyPath when nil
	KeyPath        string
	KnownHostsFile string // empty disables host key verification
}
