package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "profile":
		return profileTemplate, nil
	case "sender":
		return senderTemplate, nil
	case "receiver":
		return receiverTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const profileTemplate = `# Wire profile. Sender and receiver must load identical values.
chunk_size = 988
index_width = 4
checksum = "md5-hex"
# "packet" digests payload and index; "index" digests only the index field.
checksum_scope = "packet"
max_message_size = 1024
`

const senderTemplate = `profile = "profile.toml"
workers = 24
listen = "127.0.0.1:50006"
peer = "127.0.0.1:50005"
ack_timeout = "200ms"
ack_timeout_max = "1s"
ack_backoff = 1.0
ack_jitter = false
termination_wait = "500ms"
termination_rounds = 10
sentinel_burst = 3

[impairment]
loss = 0.0
corrupt = 0.0
duplicate = 0.0
seed = 0

[status]
addr = ""
token = ""
cors_origins = ["http://localhost:3000"]
`

const receiverTemplate = `profile = "profile.toml"
listen = "127.0.0.1:50005"
peer = "127.0.0.1:50006"
idle_timeout = "5s"
start_timeout = "30s"
sentinel_burst = 3

[impairment]
loss = 0.0
corrupt = 0.0
duplicate = 0.0
seed = 0

[status]
addr = ""
token = ""
cors_origins = ["http://localhost:3000"]
`
