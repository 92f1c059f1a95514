package observability

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TransferLogger derives a child of the global logger tagged with the
// transfer role and session id.
func TransferLogger(role, transferID string) zerolog.Logger {
	return log.Logger.With().
		Str("role", role).
		Str("transfer", transferID).
		Logger()
}
